package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rill.vm")

// ---------------------------------------------------------------------------
// VM: The Rill Virtual Machine
// ---------------------------------------------------------------------------

// VM executes compiled chunks. Globals survive between calls to Run, so a
// REPL can feed one chunk per line into the same VM. A VM is not safe for
// concurrent use.
type VM struct {
	id      uuid.UUID
	globals map[string]Value
	out     io.Writer
	trace   bool

	stack  []Value
	frames []Frame
	open   []*Upvalue // open upvalues, sorted by stack slot
}

// Option configures a VM.
type Option func(*VM)

// WithOutput sets the writer used by print. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithNative registers a host function under its name.
func WithNative(n *Native) Option {
	return func(vm *VM) { vm.globals[n.Name] = FunctionOf(n) }
}

// WithGlobals seeds additional globals. Later entries replace predefined ones.
func WithGlobals(globals map[string]Value) Option {
	return func(vm *VM) {
		for name, v := range globals {
			vm.globals[name] = v
		}
	}
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(trace bool) Option {
	return func(vm *VM) { vm.trace = trace }
}

// New creates a VM with the predefined natives and constants installed.
func New(opts ...Option) *VM {
	vm := &VM{
		id:      uuid.New(),
		globals: make(map[string]Value),
		out:     os.Stdout,
	}
	for name, v := range predefined() {
		vm.globals[name] = v
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// ID identifies this VM instance in log output.
func (vm *VM) ID() uuid.UUID { return vm.id }

// Global returns the value bound to a global name.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// DefineGlobal binds a global name, replacing any previous binding.
func (vm *VM) DefineGlobal(name string, v Value) {
	vm.globals[name] = v
}

// Run executes chunk from its first instruction until the top-level frame
// returns, and yields the returned value.
func (vm *VM) Run(chunk *Chunk) (Value, error) {
	vm.truncate(0)
	vm.frames = append(vm.frames[:0], Frame{Chunk: chunk})

	log.Infof("vm %s: run %d instructions", vm.id, len(chunk.Instructions))
	result, err := vm.execute()
	if err != nil {
		log.Debugf("vm %s: %s", vm.id, err)
		// Closures that escaped into globals must not keep reading this
		// run's stack slots.
		vm.truncate(0)
		vm.frames = vm.frames[:0]
		return Nil, err
	}
	log.Infof("vm %s: finished with %s", vm.id, result.TypeName())
	return result, nil
}

// ---------------------------------------------------------------------------
// Execution loop
// ---------------------------------------------------------------------------

func (vm *VM) execute() (Value, error) {
	tracing := vm.trace && log.AllowLevel(commonlog.Debug)

	for {
		f, err := vm.frame()
		if err != nil {
			return Nil, vm.fail(err, "")
		}
		code := f.Chunk.Instructions
		if f.PC < 0 || f.PC >= len(code) {
			return Nil, vm.fail(ErrUnsupportedInstruction, "pc outside chunk (%d instructions)", len(code))
		}
		in := code[f.PC]
		if tracing {
			log.Debugf("%04d %-22s stack=%d frames=%d", f.PC, in, len(vm.stack), len(vm.frames))
		}

		switch in.Op {
		case OpNil:
			vm.push(Nil)
		case OpUnit:
			vm.push(Unit)
		case OpTrue:
			vm.push(True)
		case OpFalse:
			vm.push(False)
		case OpConstant:
			k, err := vm.constant(f, in)
			if err != nil {
				return Nil, err
			}
			vm.push(k)

		case OpPop:
			if _, err := vm.pop(); err != nil {
				return Nil, vm.fail(err, "")
			}
		case OpPrint:
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, "")
			}
			if _, err := fmt.Fprintln(vm.out, v.String()); err != nil {
				return Nil, vm.fail(err, "print")
			}

		case OpReturn:
			done, result, err := vm.ret(in.B)
			if err != nil {
				return Nil, err
			}
			if done {
				return result, nil
			}

		case OpBin:
			if err := vm.binary(in.BinaryOp()); err != nil {
				return Nil, err
			}
		case OpUnary:
			if err := vm.unary(in.UnaryOp()); err != nil {
				return Nil, err
			}

		case OpGetGlobal:
			name, err := vm.constantName(f, in)
			if err != nil {
				return Nil, err
			}
			v, ok := vm.globals[name]
			if !ok {
				re := vm.fail(ErrUndefinedVariable, "")
				re.Name = name
				return Nil, re
			}
			vm.push(v)
		case OpSetGlobal:
			name, err := vm.constantName(f, in)
			if err != nil {
				return Nil, err
			}
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, "")
			}
			vm.globals[name] = v
		case OpGetLocal:
			slot := f.Base + in.Index()
			if slot >= len(vm.stack) {
				return Nil, vm.fail(ErrEmptyStack, "local slot %d not on stack", in.Index())
			}
			vm.push(vm.stack[slot])
		case OpSetLocal:
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, "")
			}
			slot := f.Base + in.Index()
			switch {
			case slot < len(vm.stack):
				vm.stack[slot] = v
			case slot == len(vm.stack):
				vm.push(v)
			default:
				return Nil, vm.fail(ErrEmptyStack, "local slot %d not on stack", in.Index())
			}
		case OpGetUpval:
			uv, err := vm.upvalue(f, in)
			if err != nil {
				return Nil, err
			}
			vm.push(uv.Get())
		case OpSetUpval:
			uv, err := vm.upvalue(f, in)
			if err != nil {
				return Nil, err
			}
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, "")
			}
			uv.Set(v)

		case OpJump:
			f.PC += int(in.Offset()) - 1
		case OpJumpIf:
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, "")
			}
			if v.Truthy() == in.B {
				f.PC += int(in.Offset()) - 1
			}

		case OpInitTable:
			if err := vm.initTable(in.Index(), in.B); err != nil {
				return Nil, err
			}
		case OpGetField:
			if err := vm.getField(); err != nil {
				return Nil, err
			}
		case OpGetFieldImm:
			key, err := vm.constant(f, in)
			if err != nil {
				return Nil, err
			}
			t, err := vm.popTable()
			if err != nil {
				return Nil, err
			}
			v, err := t.Get(key)
			if err != nil {
				return Nil, vm.fail(err, "")
			}
			vm.push(v)
		case OpSetField:
			if err := vm.setField(); err != nil {
				return Nil, err
			}
		case OpSetFieldImm:
			key, err := vm.constant(f, in)
			if err != nil {
				return Nil, err
			}
			t, err := vm.popTable()
			if err != nil {
				return Nil, err
			}
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, "")
			}
			if err := t.Set(key, v); err != nil {
				return Nil, vm.fail(err, "")
			}
		case OpTuple:
			n := in.Index()
			if n > len(vm.stack)-f.Base {
				return Nil, vm.fail(ErrEmptyStack, "tuple of %d", n)
			}
			start := len(vm.stack) - n
			tuple := TupleOf(vm.stack[start:]...)
			for range n {
				vm.pop()
			}
			vm.push(tuple)

		case OpFuncDef:
			if err := vm.funcDef(f, in.Index()); err != nil {
				return Nil, err
			}
		case OpCall:
			if err := vm.call(in.Index()); err != nil {
				return Nil, err
			}

		default:
			re := vm.fail(ErrUnsupportedInstruction, "")
			re.Instr = in
			return Nil, re
		}

		// Calls and returns change the active frame, so look it up again.
		f, err = vm.frame()
		if err != nil {
			return Nil, vm.fail(err, "")
		}
		f.PC++
	}
}

func (vm *VM) constant(f *Frame, in Instruction) (Value, error) {
	i := in.Index()
	if i >= len(f.Chunk.Constants) {
		re := vm.fail(ErrUnsupportedInstruction, "constant %d out of range", i)
		re.Instr = in
		return Nil, re
	}
	return f.Chunk.Constants[i], nil
}

func (vm *VM) constantName(f *Frame, in Instruction) (string, error) {
	k, err := vm.constant(f, in)
	if err != nil {
		return "", err
	}
	name, ok := k.AsString()
	if !ok {
		return "", vm.fail(ErrTypeError, "global name is %s", k.TypeName())
	}
	return name, nil
}

func (vm *VM) upvalue(f *Frame, in Instruction) (*Upvalue, error) {
	if f.Closure == nil || in.Index() >= len(f.Closure.Upvalues) {
		re := vm.fail(ErrUnsupportedInstruction, "no upvalue %d in this frame", in.Index())
		re.Instr = in
		return nil, re
	}
	return f.Closure.Upvalues[in.Index()], nil
}

// ret implements RETURN. done is set once the outermost frame has returned.
func (vm *VM) ret(hasValue bool) (done bool, result Value, err error) {
	result = Unit
	if hasValue {
		if result, err = vm.pop(); err != nil {
			return false, Nil, vm.fail(err, "")
		}
	}
	f, err := vm.frame()
	if err != nil {
		return false, Nil, vm.fail(err, "")
	}
	vm.truncate(f.Base)
	vm.push(result)
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) > 0 {
		return false, result, nil
	}
	result, err = vm.pop()
	if err != nil {
		return false, Nil, vm.fail(err, "")
	}
	return true, result, nil
}

func (vm *VM) call(argc int) error {
	callee, err := vm.pop()
	if err != nil {
		return vm.fail(err, "")
	}
	fn, ok := callee.AsFunction()
	if !ok {
		return vm.fail(ErrTypeError, "cannot call %s", callee.TypeName())
	}
	if fn.Arity() != argc {
		return vm.fail(ErrArityMismatch, "%s expects %d, got %d", callee, fn.Arity(), argc)
	}
	f, err := vm.frame()
	if err != nil {
		return vm.fail(err, "")
	}
	if argc > len(vm.stack)-f.Base {
		return vm.fail(ErrEmptyStack, "call with %d arguments", argc)
	}

	switch fn := fn.(type) {
	case *Closure:
		vm.frames = append(vm.frames, Frame{
			PC:      fn.Proto.CodeStart,
			Base:    len(vm.stack) - argc,
			Chunk:   fn.Chunk,
			Closure: fn,
		})
	case *Native:
		args := make([]Value, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i], _ = vm.pop()
		}
		result, err := fn.Fn(args)
		if err != nil {
			var re *RuntimeError
			if errors.As(err, &re) {
				return err
			}
			return vm.fail(err, "native %s", fn.Name)
		}
		vm.push(result)
	}
	return nil
}

func (vm *VM) funcDef(f *Frame, index int) error {
	if index >= len(f.Chunk.Prototypes) {
		return vm.fail(ErrUnsupportedInstruction, "prototype %d out of range", index)
	}
	proto := &f.Chunk.Prototypes[index]
	c := &Closure{Proto: proto, Chunk: f.Chunk, Upvalues: make([]*Upvalue, len(proto.Upvalues))}
	for i, desc := range proto.Upvalues {
		switch desc.Source {
		case VarSourceLocal:
			c.Upvalues[i] = vm.captureUpvalue(f.Base + int(desc.Index))
		case VarSourceCapture:
			if f.Closure == nil || int(desc.Index) >= len(f.Closure.Upvalues) {
				return vm.fail(ErrUnsupportedInstruction, "prototype %d recaptures missing upvalue %d", index, desc.Index)
			}
			c.Upvalues[i] = f.Closure.Upvalues[desc.Index]
		}
	}
	vm.push(FunctionOf(c))
	return nil
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

func (vm *VM) popTable() (*Table, error) {
	v, err := vm.pop()
	if err != nil {
		return nil, vm.fail(err, "")
	}
	t, ok := v.AsTable()
	if !ok {
		return nil, vm.fail(ErrTypeError, "field access on %s", v.TypeName())
	}
	return t, nil
}

// initTable builds a table from the top n entries (or n key/value pairs).
// Keyed pairs are applied in source order; positional values were pushed
// last-to-first so the first pop is element 0.
func (vm *VM) initTable(n int, hasKeys bool) error {
	f, err := vm.frame()
	if err != nil {
		return vm.fail(err, "")
	}
	width := n
	if hasKeys {
		width = 2 * n
	}
	if width > len(vm.stack)-f.Base {
		return vm.fail(ErrEmptyStack, "table of %d", n)
	}

	var t *Table
	if hasKeys {
		t = NewTable()
		start := len(vm.stack) - width
		for i := start; i < len(vm.stack); i += 2 {
			t.set(vm.stack[i], vm.stack[i+1])
		}
	} else {
		values := make([]Value, n)
		for i := range values {
			values[i] = vm.stack[len(vm.stack)-1-i]
		}
		t = NewArrayTable(values)
	}
	for range width {
		vm.pop()
	}
	vm.push(TableOf(t))
	return nil
}

func (vm *VM) getField() error {
	key, err := vm.pop()
	if err != nil {
		return vm.fail(err, "")
	}
	t, err := vm.popTable()
	if err != nil {
		return err
	}
	v, err := t.Get(key)
	if err != nil {
		return vm.fail(err, "")
	}
	vm.push(v)
	return nil
}

func (vm *VM) setField() error {
	t, err := vm.popTable()
	if err != nil {
		return err
	}
	key, err := vm.pop()
	if err != nil {
		return vm.fail(err, "")
	}
	v, err := vm.pop()
	if err != nil {
		return vm.fail(err, "")
	}
	if err := t.Set(key, v); err != nil {
		return vm.fail(err, "")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (vm *VM) binary(op BinaryOp) error {
	right, err := vm.pop()
	if err != nil {
		return vm.fail(err, "")
	}
	left, err := vm.pop()
	if err != nil {
		return vm.fail(err, "")
	}
	result, err := EvalBinary(op, left, right)
	if err != nil {
		re := vm.fail(err, "")
		var be *BinaryError
		if errors.As(err, &be) {
			re.Err = be.Err
			re.Value = be.Value
			re.Op = be.Op
		}
		return re
	}
	vm.push(result)
	return nil
}

func (vm *VM) unary(op UnaryOp) error {
	v, err := vm.pop()
	if err != nil {
		return vm.fail(err, "")
	}
	result, err := EvalUnary(op, v)
	if err != nil {
		return vm.fail(err, "%s%s", op, v.TypeName())
	}
	vm.push(result)
	return nil
}

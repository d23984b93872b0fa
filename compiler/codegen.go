package compiler

import (
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/rill/vm"
)

var log = commonlog.GetLogger("rill.compiler")

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Compiler lowers statements into a single chunk. The top-level script and
// every function body share one instruction stream.
type Compiler struct {
	chunk  *vm.Chunk
	locals []local
	depth  int
	scopes []closureScope
}

// NewCompiler creates a compiler with a fresh chunk.
func NewCompiler() *Compiler {
	return &Compiler{
		chunk:  vm.NewChunk(),
		scopes: []closureScope{{}},
	}
}

// Compile compiles a program into a chunk. The first error aborts
// compilation.
func Compile(stmts []Stmt) (*vm.Chunk, error) {
	c := NewCompiler()
	for _, stmt := range stmts {
		if err := c.compileStmt(stmt); err != nil {
			return nil, err
		}
	}
	c.chunk.Emit(vm.Return(false))

	log.Debugf("compiled %d statements: %d instructions, %d constants, %d prototypes",
		len(stmts), len(c.chunk.Instructions), len(c.chunk.Constants), len(c.chunk.Prototypes))
	return c.chunk, nil
}

// CompileSource parses and compiles source text.
func CompileSource(source string) (*vm.Chunk, error) {
	stmts, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return Compile(stmts)
}

// fail wraps err as a CompileError located at n.
func fail(n Node, err error, format string, args ...any) *CompileError {
	ce := &CompileError{Err: err}
	if n != nil {
		ce.Pos = n.Span().Start
	}
	if format != "" {
		ce.Detail = fmt.Sprintf(format, args...)
	}
	return ce
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *ExprStmt:
		// Assignments leave nothing on the stack.
		if set, ok := s.Expr.(*Set); ok {
			return c.compileSet(set)
		}
		if err := c.compileExpr(s.Expr); err != nil {
			return err
		}
		c.chunk.Emit(vm.Simple(vm.OpPop))
		return nil

	case *LetStmt:
		// A function literal sees its own name so it can recurse. Any other
		// initializer resolves the name in the enclosing scope.
		if _, ok := s.Value.(*FunctionExpr); ok {
			if err := c.pushLocal(s.Name); err != nil {
				return fail(s, err, "%s", s.Name)
			}
			return c.compileExpr(s.Value)
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if err := c.pushLocal(s.Name); err != nil {
			return fail(s, err, "%s", s.Name)
		}
		return nil

	case *BlockStmt:
		c.scopeIncr()
		for _, inner := range s.Body {
			if err := c.compileStmt(inner); err != nil {
				return err
			}
		}
		c.emitPops(c.scopeDecr())
		return nil

	case *IfStmt:
		return c.compileIf(s)

	case *WhileStmt:
		return c.compileWhile(s)

	case *PrintStmt:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.chunk.Emit(vm.Simple(vm.OpPrint))
		return nil

	case *ReturnStmt:
		if s.Value == nil {
			c.chunk.Emit(vm.Return(false))
			return nil
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.chunk.Emit(vm.Return(true))
		return nil
	}
	return fail(stmt, ErrUnimplementedExpr, "statement %T", stmt)
}

func (c *Compiler) emitPops(n int) {
	for range n {
		c.chunk.Emit(vm.Simple(vm.OpPop))
	}
}

// compileBranch compiles an if or while body in its own scope.
func (c *Compiler) compileBranch(stmt Stmt) error {
	c.scopeIncr()
	if err := c.compileStmt(stmt); err != nil {
		return err
	}
	c.emitPops(c.scopeDecr())
	return nil
}

// patch turns the placeholder at from into a jump landing on to.
func (c *Compiler) patch(n Node, from, to int, cond vm.JumpCondition) error {
	offset := to - from
	if offset < math.MinInt8 || offset > math.MaxInt8 {
		return fail(n, ErrTooLongToJump, "offset %d", offset)
	}
	if err := c.chunk.PatchJump(from, int8(offset), cond); err != nil {
		return fail(n, err, "")
	}
	return nil
}

func (c *Compiler) compileIf(s *IfStmt) error {
	if err := c.compileExpr(s.Condition); err != nil {
		return err
	}
	thenJump := c.chunk.EmitPlaceholder()
	if err := c.compileBranch(s.Then); err != nil {
		return err
	}

	if s.Else == nil {
		return c.patch(s, thenJump, c.chunk.Len(), vm.JumpWhenFalse)
	}

	elseJump := c.chunk.EmitPlaceholder()
	// The false branch starts after the else jump.
	if err := c.patch(s, thenJump, elseJump+1, vm.JumpWhenFalse); err != nil {
		return err
	}
	if err := c.compileBranch(s.Else); err != nil {
		return err
	}
	return c.patch(s, elseJump, c.chunk.Len(), vm.JumpAlways)
}

func (c *Compiler) compileWhile(s *WhileStmt) error {
	head := c.chunk.Len()
	if err := c.compileExpr(s.Condition); err != nil {
		return err
	}
	exit := c.chunk.EmitPlaceholder()
	if err := c.compileBranch(s.Body); err != nil {
		return err
	}

	back := c.chunk.EmitPlaceholder()
	if err := c.patch(s, back, head, vm.JumpAlways); err != nil {
		return err
	}
	return c.patch(s, exit, c.chunk.Len(), vm.JumpWhenFalse)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) compileExpr(expr Expr) error {
	switch e := expr.(type) {
	case *NilLiteral:
		c.chunk.Emit(vm.Simple(vm.OpNil))
	case *UnitLiteral:
		c.chunk.Emit(vm.Simple(vm.OpUnit))
	case *BoolLiteral:
		if e.Value {
			c.chunk.Emit(vm.Simple(vm.OpTrue))
		} else {
			c.chunk.Emit(vm.Simple(vm.OpFalse))
		}
	case *NumberLiteral:
		return c.compileNumber(e)
	case *StringLiteral:
		index, err := c.constant(e, vm.Str(e.Value))
		if err != nil {
			return err
		}
		c.chunk.Emit(vm.Constant(index))

	case *Identifier:
		return c.compileIdentifier(e)

	case *UnaryExpr:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		op := vm.UnaryNegate
		if e.Op == UnaryBang {
			op = vm.UnaryNot
		}
		c.chunk.Emit(vm.Unary(op))

	case *BinaryExpr:
		if err := c.compileExpr(e.Left); err != nil {
			return err
		}
		if err := c.compileExpr(e.Right); err != nil {
			return err
		}
		c.chunk.Emit(vm.Bin(vmBinaryOps[e.Op]))

	case *Grouping:
		return c.compileExpr(e.Inner)

	case *TupleExpr:
		if len(e.Elements) > math.MaxUint8 {
			return fail(e, ErrTooManyArguments, "tuple of %d elements", len(e.Elements))
		}
		for _, el := range e.Elements {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.chunk.Emit(vm.Tuple(uint8(len(e.Elements))))

	case *Access:
		if err := c.compileExpr(e.Table); err != nil {
			return err
		}
		if key, ok := e.Field.(*StringLiteral); ok {
			return c.emitFieldImm(key, key.Value, vm.GetFieldImm)
		}
		if err := c.compileExpr(e.Field); err != nil {
			return err
		}
		c.chunk.Emit(vm.Simple(vm.OpGetField))

	case *SelfAccess:
		if err := c.compileExpr(e.Table); err != nil {
			return err
		}
		return c.emitFieldImm(e, e.Field, vm.GetFieldImm)

	case *Set:
		return fail(e, ErrUnimplementedExpr, "assignment used as a value")

	case *TableInit:
		return c.compileTable(e)

	case *FunctionExpr:
		return c.compileFunction(e)

	case *Call:
		if len(e.Args) > math.MaxUint8 {
			return fail(e, ErrTooManyArguments, "call with %d arguments", len(e.Args))
		}
		for _, arg := range e.Args {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		if err := c.compileExpr(e.Callee); err != nil {
			return err
		}
		c.chunk.Emit(vm.Call(uint8(len(e.Args))))

	default:
		return fail(expr, ErrUnimplementedExpr, "%T", expr)
	}
	return nil
}

var vmBinaryOps = map[BinaryOp]vm.BinaryOp{
	BinaryPlus:         vm.BinAdd,
	BinaryMinus:        vm.BinSub,
	BinaryStar:         vm.BinMul,
	BinarySlash:        vm.BinDiv,
	BinaryGreater:      vm.BinGt,
	BinaryLess:         vm.BinLt,
	BinaryGreaterEqual: vm.BinGe,
	BinaryLessEqual:    vm.BinLe,
	BinaryEqualEqual:   vm.BinEq,
	BinaryBangEqual:    vm.BinNe,
}

// constant adds v to the pool, deduplicating strings.
func (c *Compiler) constant(n Node, v vm.Value) (uint8, error) {
	index, err := c.chunk.AddConstant(v)
	if err != nil {
		return 0, fail(n, err, "")
	}
	return index, nil
}

// compileNumber emits an Int constant when the literal is integral and fits
// in 32 bits, and a Number constant otherwise. Numbers are never shared.
func (c *Compiler) compileNumber(e *NumberLiteral) error {
	v := vm.Number(e.Value)
	if e.Value == math.Trunc(e.Value) && e.Value >= math.MinInt32 && e.Value <= math.MaxInt32 {
		v = vm.Int(int32(e.Value))
	}
	index, err := c.chunk.PushConstant(v)
	if err != nil {
		return fail(e, err, "")
	}
	c.chunk.Emit(vm.Constant(index))
	return nil
}

func (c *Compiler) compileIdentifier(e *Identifier) error {
	r, err := c.resolve(e.Name)
	if err != nil {
		return fail(e, err, "%s", e.Name)
	}
	switch r.kind {
	case varLocal:
		c.chunk.Emit(vm.GetLocal(r.index))
	case varUpvalue:
		c.chunk.Emit(vm.GetUpval(r.index))
	default:
		index, err := c.constant(e, vm.Str(e.Name))
		if err != nil {
			return err
		}
		c.chunk.Emit(vm.GetGlobal(index))
	}
	return nil
}

func (c *Compiler) emitFieldImm(n Node, name string, op func(uint8) vm.Instruction) error {
	index, err := c.constant(n, vm.Str(name))
	if err != nil {
		return err
	}
	c.chunk.Emit(op(index))
	return nil
}

// compileSet lowers an assignment statement. Field stores push the value
// first so the VM pops table, key, value in that order.
func (c *Compiler) compileSet(s *Set) error {
	switch target := s.Target.(type) {
	case *Identifier:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		r, err := c.resolve(target.Name)
		if err != nil {
			return fail(target, err, "%s", target.Name)
		}
		switch r.kind {
		case varLocal:
			c.chunk.Emit(vm.SetLocal(r.index))
		case varUpvalue:
			c.chunk.Emit(vm.SetUpval(r.index))
		default:
			index, err := c.constant(target, vm.Str(target.Name))
			if err != nil {
				return err
			}
			c.chunk.Emit(vm.SetGlobal(index))
		}
		return nil

	case *SelfAccess:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if err := c.compileExpr(target.Table); err != nil {
			return err
		}
		return c.emitFieldImm(target, target.Field, vm.SetFieldImm)

	case *Access:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if key, ok := target.Field.(*StringLiteral); ok {
			if err := c.compileExpr(target.Table); err != nil {
				return err
			}
			return c.emitFieldImm(key, key.Value, vm.SetFieldImm)
		}
		if err := c.compileExpr(target.Field); err != nil {
			return err
		}
		if err := c.compileExpr(target.Table); err != nil {
			return err
		}
		c.chunk.Emit(vm.Simple(vm.OpSetField))
		return nil
	}
	return fail(s.Target, ErrInvalidAssignmentTarget, "%T", s.Target)
}

// compileTable pushes k0 v0 k1 v1 ... for the keyed form and the values
// last-to-first for the positional form.
func (c *Compiler) compileTable(e *TableInit) error {
	if len(e.Values) > math.MaxUint16 {
		return fail(e, ErrTooManyArguments, "table of %d entries", len(e.Values))
	}
	if e.Keys != nil {
		if len(e.Keys) != len(e.Values) {
			return fail(e, ErrUnimplementedExpr, "%d keys for %d values", len(e.Keys), len(e.Values))
		}
		for i := range e.Keys {
			if err := c.compileExpr(e.Keys[i]); err != nil {
				return err
			}
			if err := c.compileExpr(e.Values[i]); err != nil {
				return err
			}
		}
	} else {
		for i := len(e.Values) - 1; i >= 0; i-- {
			if err := c.compileExpr(e.Values[i]); err != nil {
				return err
			}
		}
	}
	c.chunk.Emit(vm.InitTable(uint16(len(e.Values)), e.Keys != nil))
	return nil
}

// compileFunction emits a jump over the body, the body itself, and a
// FUNC_DEF that builds the closure at runtime.
func (c *Compiler) compileFunction(e *FunctionExpr) error {
	if len(e.Params) > math.MaxUint8 {
		return fail(e, ErrTooManyArguments, "function with %d parameters", len(e.Params))
	}

	skip := c.chunk.EmitPlaceholder()
	c.enterFunction()
	for _, param := range e.Params {
		if err := c.pushLocal(param); err != nil {
			return fail(e, err, "%s", param)
		}
	}
	for _, stmt := range e.Body {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	pops, scope := c.exitFunction()
	c.emitPops(pops)
	c.chunk.Emit(vm.Return(false))

	if err := c.patch(e, skip, c.chunk.Len(), vm.JumpAlways); err != nil {
		return err
	}

	proto := c.chunk.AddProto(vm.FuncProto{
		Params:    uint8(len(e.Params)),
		Upvalues:  scope.upvalues,
		CodeStart: skip,
	})
	if proto > math.MaxUint16 {
		return fail(e, ErrTooManyArguments, "prototype %d", proto)
	}
	c.chunk.Emit(vm.FuncDef(uint16(proto)))
	return nil
}

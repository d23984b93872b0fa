package vm

import (
	"fmt"
)

// Function is a callable value: a user *Closure or a host *Native.
type Function interface {
	Arity() int
	function()
}

func sameFunction(a, b Function) bool { return a == b }

// ---------------------------------------------------------------------------
// Prototypes and capture descriptors
// ---------------------------------------------------------------------------

// VarSource tells a closure where a captured variable comes from.
type VarSource uint8

const (
	// VarSourceLocal captures a local slot of the immediately enclosing frame.
	VarSourceLocal VarSource = iota
	// VarSourceCapture re-captures an upvalue of the enclosing closure.
	VarSourceCapture
)

func (s VarSource) String() string {
	switch s {
	case VarSourceLocal:
		return "local"
	case VarSourceCapture:
		return "upval"
	default:
		return fmt.Sprintf("VarSource(%d)", s)
	}
}

// UpvalueDesc describes one captured variable as seen from one closure level.
type UpvalueDesc struct {
	Source VarSource
	Index  uint16
}

// FuncProto is a compiled function. Its body lives in the chunk's shared
// instruction stream; CodeStart is the slot just before the first body
// instruction, so the post-call advance lands on the body.
type FuncProto struct {
	Params    uint8
	Upvalues  []UpvalueDesc
	CodeStart int
}

// ---------------------------------------------------------------------------
// Runtime functions
// ---------------------------------------------------------------------------

// Upvalue is a shared cell holding a captured variable. While the variable's
// slot is still live on the operand stack the cell is open and reads through
// to the stack; once the slot is popped the cell is closed and owns the value.
type Upvalue struct {
	stack  *[]Value
	slot   int
	closed Value
	open   bool
}

func (u *Upvalue) Get() Value {
	if u.open {
		s := *u.stack
		if u.slot < len(s) {
			return s[u.slot]
		}
		return Nil
	}
	return u.closed
}

func (u *Upvalue) Set(v Value) {
	if u.open {
		s := *u.stack
		if u.slot < len(s) {
			s[u.slot] = v
		}
		return
	}
	u.closed = v
}

func (u *Upvalue) close() {
	if !u.open {
		return
	}
	u.closed = u.Get()
	u.open = false
	u.stack = nil
}

// Closure is a user function: a prototype plus its realized captures. Chunk
// is the chunk that defined it, so a closure stored in a global keeps running
// its own code when called from a later Run.
type Closure struct {
	Proto    *FuncProto
	Chunk    *Chunk
	Upvalues []*Upvalue
}

func (c *Closure) Arity() int { return int(c.Proto.Params) }
func (*Closure) function()    {}

// NativeFunc is the host callback behind a Native. args are in call order.
type NativeFunc func(args []Value) (Value, error)

// Native is a host-provided function.
type Native struct {
	Name   string
	Params uint8
	Fn     NativeFunc
}

func (n *Native) Arity() int { return int(n.Params) }
func (*Native) function()    {}

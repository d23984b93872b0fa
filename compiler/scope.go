package compiler

import (
	"math"

	"github.com/chazu/rill/vm"
)

// ---------------------------------------------------------------------------
// Locals and closure scopes
// ---------------------------------------------------------------------------

// local is one in-scope binding. Its stack slot is its position in the
// locals slice minus the owning scope's localStart.
type local struct {
	name  string
	depth int
	scope int // index into Compiler.scopes
}

// closureScope is the compile-time record of one function body. scopes[0] is
// the top-level script; every function literal pushes another.
type closureScope struct {
	depth      int
	localStart int
	upvalues   []vm.UpvalueDesc
}

type varKind int

const (
	varGlobal varKind = iota
	varLocal
	varUpvalue
)

// resolution says where an identifier lives: a slot in the current frame,
// an upvalue of the current closure, or a global looked up by name.
type resolution struct {
	kind  varKind
	index uint16
}

func (c *Compiler) current() int { return len(c.scopes) - 1 }

func (c *Compiler) scopeIncr() { c.depth++ }

// scopeDecr leaves a block and returns how many locals it dropped.
func (c *Compiler) scopeDecr() int {
	c.depth--
	n := 0
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.depth {
		c.locals = c.locals[:len(c.locals)-1]
		n++
	}
	return n
}

func (c *Compiler) enterFunction() {
	c.scopeIncr()
	c.scopes = append(c.scopes, closureScope{
		depth:      c.depth,
		localStart: len(c.locals),
	})
}

// exitFunction pops the innermost closure scope and returns it with the
// number of locals left to pop.
func (c *Compiler) exitFunction() (int, closureScope) {
	scope := c.scopes[c.current()]
	c.scopes = c.scopes[:c.current()]
	return c.scopeDecr(), scope
}

func (c *Compiler) pushLocal(name string) error {
	slot := len(c.locals) - c.scopes[c.current()].localStart
	if slot > math.MaxUint16 {
		return ErrTooManyLocals
	}
	c.locals = append(c.locals, local{name: name, depth: c.depth, scope: c.current()})
	return nil
}

// resolve finds the innermost binding of name. A binding owned by an
// enclosing function becomes an upvalue: each function boundary between the
// owner and the current function gets one descriptor, the first capturing
// the owner's local slot and each later one re-capturing its parent's
// upvalue.
func (c *Compiler) resolve(name string) (resolution, error) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.name != name {
			continue
		}
		slot := uint16(i - c.scopes[l.scope].localStart)
		if l.scope == c.current() {
			return resolution{kind: varLocal, index: slot}, nil
		}

		index, err := c.addUpvalue(l.scope+1, vm.UpvalueDesc{Source: vm.VarSourceLocal, Index: slot})
		if err != nil {
			return resolution{}, err
		}
		for s := l.scope + 2; s <= c.current(); s++ {
			index, err = c.addUpvalue(s, vm.UpvalueDesc{Source: vm.VarSourceCapture, Index: index})
			if err != nil {
				return resolution{}, err
			}
		}
		return resolution{kind: varUpvalue, index: index}, nil
	}
	return resolution{kind: varGlobal}, nil
}

// addUpvalue appends desc to a scope's capture list unless an identical
// descriptor is already there, and returns its index.
func (c *Compiler) addUpvalue(scope int, desc vm.UpvalueDesc) (uint16, error) {
	s := &c.scopes[scope]
	for i, d := range s.upvalues {
		if d == desc {
			return uint16(i), nil
		}
	}
	if len(s.upvalues) > math.MaxUint16 {
		return 0, ErrTooManyLocals
	}
	s.upvalues = append(s.upvalues, desc)
	return uint16(len(s.upvalues) - 1), nil
}

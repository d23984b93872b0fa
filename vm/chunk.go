package vm

import (
	"fmt"
)

// MaxConstants is the capacity of a chunk's constant pool. Constant indices
// are encoded in 8 bits.
const MaxConstants = 255

// JumpCondition selects which jump a placeholder is patched into.
type JumpCondition uint8

const (
	JumpAlways JumpCondition = iota
	JumpWhenTrue
	JumpWhenFalse
)

// Chunk is the unit of compiled output: one instruction stream shared by the
// top-level script and every function body, a constant pool, and the
// prototype table.
//
// A chunk is built append-only by the compiler. The only slots rewritten
// after emission are placeholders and jumps, through PatchJump.
type Chunk struct {
	Instructions []Instruction
	Constants    []Value
	Prototypes   []FuncProto
}

// NewChunk returns an empty chunk whose constant pool is seeded with the
// names of the predefined globals.
func NewChunk() *Chunk {
	c := &Chunk{}
	for _, name := range PredefinedNames() {
		c.Constants = append(c.Constants, Embedded(name))
	}
	return c
}

// Len returns the number of emitted instructions.
func (c *Chunk) Len() int { return len(c.Instructions) }

// Emit appends an instruction and returns its index.
func (c *Chunk) Emit(in Instruction) int {
	c.Instructions = append(c.Instructions, in)
	return len(c.Instructions) - 1
}

// EmitPlaceholder reserves a slot to be patched into a jump later.
func (c *Chunk) EmitPlaceholder() int {
	return c.Emit(Placeholder())
}

// AddConstant adds a constant and returns its index. String constants are
// deduplicated by text; everything else is appended.
func (c *Chunk) AddConstant(v Value) (uint8, error) {
	if s, ok := v.AsString(); ok {
		if i, found := c.FindString(s); found {
			return i, nil
		}
	}
	return c.PushConstant(v)
}

// PushConstant appends a constant without deduplication.
func (c *Chunk) PushConstant(v Value) (uint8, error) {
	if len(c.Constants) >= MaxConstants {
		return 0, ErrTooManyConstants
	}
	c.Constants = append(c.Constants, v)
	return uint8(len(c.Constants) - 1), nil
}

// FindString returns the index of a Str or Embedded constant with text s.
func (c *Chunk) FindString(s string) (uint8, bool) {
	for i, k := range c.Constants {
		if t, ok := k.AsString(); ok && t == s {
			return uint8(i), true
		}
	}
	return 0, false
}

// PatchJump rewrites the slot at index into a jump. The slot must hold a
// placeholder or a jump.
func (c *Chunk) PatchJump(index int, offset int8, cond JumpCondition) error {
	if index < 0 || index >= len(c.Instructions) {
		return fmt.Errorf("%w: slot %d out of range", ErrWrongPatch, index)
	}
	cur := c.Instructions[index]
	if cur.Op != OpPlaceholder && !cur.Op.IsJump() {
		return fmt.Errorf("%w: slot %d holds %s", ErrWrongPatch, index, cur)
	}
	switch cond {
	case JumpWhenTrue:
		c.Instructions[index] = JumpIf(true, offset)
	case JumpWhenFalse:
		c.Instructions[index] = JumpIf(false, offset)
	default:
		c.Instructions[index] = Jump(offset)
	}
	return nil
}

// AddProto registers a prototype and returns its index.
func (c *Chunk) AddProto(p FuncProto) int {
	c.Prototypes = append(c.Prototypes, p)
	return len(c.Prototypes) - 1
}

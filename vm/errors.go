package vm

import (
	"errors"
	"fmt"
)

// Runtime error kinds. Every error returned by Run wraps one of these.
var (
	ErrTypeError              = errors.New("type error")
	ErrUnsupportedBinary      = fmt.Errorf("%w: unsupported binary operation", ErrTypeError)
	ErrUndefinedVariable      = errors.New("undefined variable")
	ErrEmptyStack             = errors.New("operand stack is empty")
	ErrEmptyFrame             = errors.New("frame stack is empty")
	ErrUnsupportedInstruction = errors.New("unsupported instruction")
	ErrDivisionByZero         = errors.New("division by zero")
	ErrArityMismatch          = errors.New("wrong number of arguments")
	ErrBorrowConflict         = errors.New("table already borrowed")
)

// Chunk construction errors. The compiler surfaces these unchanged.
var (
	ErrTooManyConstants = errors.New("too many constants in one chunk")
	ErrTooLongToJump    = errors.New("jump offset does not fit in 8 bits")
	ErrWrongPatch       = errors.New("patched slot is not a placeholder or jump")
)

// RuntimeError is the error returned by Run. It records where execution
// stopped along with the operands that describe the failure.
type RuntimeError struct {
	Err    error
	PC     int
	Detail string

	// Populated for UnsupportedBinary.
	Value Value
	Op    BinaryOp

	// Populated for UndefinedVariable.
	Name string

	// Populated for UnsupportedInstruction.
	Instr Instruction
}

func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("runtime error at pc %d: %v", e.PC, e.Err)
	switch {
	case errors.Is(e.Err, ErrUnsupportedBinary):
		msg += fmt.Sprintf(" (%s %s)", e.Value.TypeName(), e.Op)
	case errors.Is(e.Err, ErrUndefinedVariable):
		msg += fmt.Sprintf(" %q", e.Name)
	case errors.Is(e.Err, ErrUnsupportedInstruction):
		msg += fmt.Sprintf(" %s", e.Instr)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func (vm *VM) fail(err error, format string, args ...any) *RuntimeError {
	re := &RuntimeError{Err: err, PC: vm.pc()}
	if format != "" {
		re.Detail = fmt.Sprintf(format, args...)
	}
	return re
}

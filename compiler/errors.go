package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/rill/vm"
)

// Compile error kinds. Chunk-level kinds come from the vm package, where the
// chunk builder detects them.
var (
	ErrTooManyConstants        = vm.ErrTooManyConstants
	ErrTooLongToJump           = vm.ErrTooLongToJump
	ErrWrongPatch              = vm.ErrWrongPatch
	ErrInvalidAssignmentTarget = errors.New("invalid assignment target")
	ErrUnimplementedExpr       = errors.New("expression has no lowering")
	ErrTooManyLocals           = errors.New("too many locals in one function")
	ErrTooManyArguments        = errors.New("too many arguments")
	ErrParse                   = errors.New("parse error")
)

// CompileError is the error returned by Compile. Pos locates the offending
// node when one is known.
type CompileError struct {
	Err    error
	Pos    Position
	Detail string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	if e.Pos.Line > 0 {
		fmt.Fprintf(&sb, "line %d: ", e.Pos.Line)
	}
	sb.WriteString(e.Err.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// ParseError collects every syntax error found in one source text.
type ParseError struct {
	Messages []string
}

func (e *ParseError) Error() string {
	if len(e.Messages) == 1 {
		return "parse error: " + e.Messages[0]
	}
	return fmt.Sprintf("%d parse errors:\n  %s", len(e.Messages), strings.Join(e.Messages, "\n  "))
}

func (e *ParseError) Unwrap() error { return ErrParse }

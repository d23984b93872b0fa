package vm

import (
	"fmt"
)

// BinaryError reports an operand combination an operator is not defined for.
type BinaryError struct {
	Err   error
	Value Value // the operand that could not be used
	Op    BinaryOp
}

func (e *BinaryError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.Err, e.Value.TypeName(), e.Op)
}

func (e *BinaryError) Unwrap() error { return e.Err }

// EvalBinary applies a binary operator.
//
// == and != are defined for every pair of values. Arithmetic and ordering
// need numbers: Int with Int stays Int (division truncates), any Number
// promotes the other side. Strings support + as concatenation.
func EvalBinary(op BinaryOp, left, right Value) (Value, error) {
	switch op {
	case BinEq:
		return Bool(left.Equal(right)), nil
	case BinNe:
		return Bool(!left.Equal(right)), nil
	}

	switch {
	case left.kind == KindInt && right.kind == KindInt:
		a, _ := left.AsInt()
		b, _ := right.AsInt()
		return intBinary(op, a, b, left)
	case left.IsNumeric() && right.IsNumeric():
		a, _ := left.AsNumber()
		b, _ := right.AsNumber()
		return numberBinary(op, a, b, left)
	case left.IsString() && right.IsString():
		if op == BinAdd {
			a, _ := left.AsString()
			b, _ := right.AsString()
			return Str(a + b), nil
		}
		return Nil, &BinaryError{Err: ErrUnsupportedBinary, Value: left, Op: op}
	}

	// Name the operand that does not fit the other side.
	offending := left
	if (left.IsNumeric() && !right.IsNumeric()) || (left.IsString() && !right.IsString()) {
		offending = right
	}
	return Nil, &BinaryError{Err: ErrUnsupportedBinary, Value: offending, Op: op}
}

func intBinary(op BinaryOp, a, b int32, left Value) (Value, error) {
	switch op {
	case BinAdd:
		return Int(a + b), nil
	case BinSub:
		return Int(a - b), nil
	case BinMul:
		return Int(a * b), nil
	case BinDiv:
		if b == 0 {
			return Nil, ErrDivisionByZero
		}
		return Int(a / b), nil
	case BinGt:
		return Bool(a > b), nil
	case BinLt:
		return Bool(a < b), nil
	case BinGe:
		return Bool(a >= b), nil
	case BinLe:
		return Bool(a <= b), nil
	}
	return Nil, &BinaryError{Err: ErrUnsupportedBinary, Value: left, Op: op}
}

func numberBinary(op BinaryOp, a, b float64, left Value) (Value, error) {
	switch op {
	case BinAdd:
		return Number(a + b), nil
	case BinSub:
		return Number(a - b), nil
	case BinMul:
		return Number(a * b), nil
	case BinDiv:
		return Number(a / b), nil
	case BinGt:
		return Bool(a > b), nil
	case BinLt:
		return Bool(a < b), nil
	case BinGe:
		return Bool(a >= b), nil
	case BinLe:
		return Bool(a <= b), nil
	}
	return Nil, &BinaryError{Err: ErrUnsupportedBinary, Value: left, Op: op}
}

// EvalUnary applies a unary operator. Negation needs a number and logical
// not needs a bool.
func EvalUnary(op UnaryOp, v Value) (Value, error) {
	switch op {
	case UnaryNegate:
		switch v.kind {
		case KindInt:
			i, _ := v.AsInt()
			return Int(-i), nil
		case KindNumber:
			f, _ := v.AsNumber()
			return Number(-f), nil
		}
	case UnaryNot:
		if b, ok := v.AsBool(); ok {
			return Bool(!b), nil
		}
	}
	return Nil, ErrTypeError
}

package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the runtime tag of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindUnit
	KindBool
	KindInt
	KindNumber
	KindStr
	KindEmbedded
	KindTable
	KindTuple
	KindFunction
)

var kindNames = [...]string{
	KindNil:      "nil",
	KindUnit:     "unit",
	KindBool:     "bool",
	KindInt:      "int",
	KindNumber:   "number",
	KindStr:      "string",
	KindEmbedded: "string",
	KindTable:    "table",
	KindTuple:    "tuple",
	KindFunction: "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a tagged runtime value.
//
// Scalars live in bits (bool as 0/1, Int as a sign-extended int32, Number as
// its IEEE 754 bit pattern). Strings, tables, tuples, and functions live in
// ref. The zero Value is Nil.
type Value struct {
	kind Kind
	bits uint64
	ref  any
}

// Pre-defined singleton values
var (
	Nil   = Value{}
	Unit  = Value{kind: KindUnit}
	True  = Value{kind: KindBool, bits: 1}
	False = Value{kind: KindBool}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Int(i int32) Value {
	return Value{kind: KindInt, bits: uint64(int64(i))}
}

func Number(f float64) Value {
	return Value{kind: KindNumber, bits: math.Float64bits(f)}
}

// Str returns a heap string value.
func Str(s string) Value {
	return Value{kind: KindStr, ref: s}
}

// Embedded returns a static string value used for built-in names. It compares
// and hashes the same as the Str with the same text.
func Embedded(s string) Value {
	return Value{kind: KindEmbedded, ref: s}
}

func TableOf(t *Table) Value {
	return Value{kind: KindTable, ref: t}
}

// TupleOf copies vs into a new tuple value.
func TupleOf(vs ...Value) Value {
	elems := make([]Value, len(vs))
	copy(elems, vs)
	return Value{kind: KindTuple, ref: elems}
}

func FunctionOf(f Function) Value {
	return Value{kind: KindFunction, ref: f}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNil }

// IsNumeric reports whether v is an Int or a Number.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindNumber }

// IsString reports whether v is a Str or an Embedded string.
func (v Value) IsString() bool { return v.kind == KindStr || v.kind == KindEmbedded }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.bits != 0, true
}

// AsInt returns the integer held by v. Numbers with no fractional part that
// fit in 32 bits convert.
func (v Value) AsInt() (int32, bool) {
	switch v.kind {
	case KindInt:
		return int32(int64(v.bits)), true
	case KindNumber:
		f := math.Float64frombits(v.bits)
		if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
			return int32(f), true
		}
	}
	return 0, false
}

// AsNumber returns v as a float64, promoting Int.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(int32(int64(v.bits))), true
	case KindNumber:
		return math.Float64frombits(v.bits), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	if !v.IsString() {
		return "", false
	}
	return v.ref.(string), true
}

func (v Value) AsTable() (*Table, bool) {
	if v.kind != KindTable {
		return nil, false
	}
	return v.ref.(*Table), true
}

// AsTuple returns the tuple elements. The slice must not be modified.
func (v Value) AsTuple() ([]Value, bool) {
	if v.kind != KindTuple {
		return nil, false
	}
	return v.ref.([]Value), true
}

func (v Value) AsFunction() (Function, bool) {
	if v.kind != KindFunction {
		return nil, false
	}
	return v.ref.(Function), true
}

// Truthy reports the boolean interpretation used by conditional jumps:
// Nil and false are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.bits != 0
	default:
		return true
	}
}

// TypeName returns the script-visible name of the value's type.
func (v Value) TypeName() string {
	if v.kind == KindFunction {
		if _, ok := v.ref.(*Native); ok {
			return "native"
		}
	}
	return v.kind.String()
}

// ---------------------------------------------------------------------------
// Equality and hashing
// ---------------------------------------------------------------------------

// Equal reports whether two values are equal. Scalars, strings, and tuples
// compare structurally; tables and functions compare by identity. Int and
// Number are distinct kinds, so Int(1) does not equal Number(1).
func (v Value) Equal(o Value) bool {
	if v.IsString() && o.IsString() {
		return v.ref.(string) == o.ref.(string)
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil, KindUnit:
		return true
	case KindBool, KindInt:
		return v.bits == o.bits
	case KindNumber:
		return math.Float64frombits(v.bits) == math.Float64frombits(o.bits)
	case KindTable:
		return v.ref.(*Table) == o.ref.(*Table)
	case KindTuple:
		a, b := v.ref.([]Value), o.ref.([]Value)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case KindFunction:
		return sameFunction(v.ref.(Function), o.ref.(Function))
	}
	return false
}

// tableKey is the comparable form of a Value used as a Go map key. Equal
// values always produce equal keys.
type tableKey struct {
	kind Kind
	bits uint64
	str  string
	ref  any
}

func (v Value) key() tableKey {
	switch v.kind {
	case KindNumber:
		f := math.Float64frombits(v.bits)
		if f == 0 {
			f = 0 // fold -0
		}
		return tableKey{kind: KindNumber, bits: math.Float64bits(f)}
	case KindStr, KindEmbedded:
		return tableKey{kind: KindStr, str: v.ref.(string)}
	case KindTuple:
		var sb strings.Builder
		writeTupleKey(&sb, v.ref.([]Value))
		return tableKey{kind: KindTuple, str: sb.String()}
	case KindTable, KindFunction:
		return tableKey{kind: v.kind, ref: v.ref}
	default:
		return tableKey{kind: v.kind, bits: v.bits}
	}
}

// writeTupleKey encodes tuple elements into a string that is unique per
// structurally-equal tuple. Reference elements are encoded by address.
func writeTupleKey(sb *strings.Builder, elems []Value) {
	sb.WriteByte('(')
	for i, e := range elems {
		if i > 0 {
			sb.WriteByte(',')
		}
		k := e.key()
		fmt.Fprintf(sb, "%d:", k.kind)
		switch k.kind {
		case KindStr, KindTuple:
			sb.WriteString(strconv.Quote(k.str))
		case KindTable, KindFunction:
			fmt.Fprintf(sb, "%p", k.ref)
		default:
			sb.WriteString(strconv.FormatUint(k.bits, 16))
		}
	}
	sb.WriteByte(')')
}

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// String returns the text written by print.
func (v Value) String() string {
	var sb strings.Builder
	v.display(&sb)
	return sb.String()
}

func (v Value) display(sb *strings.Builder) {
	switch v.kind {
	case KindNil:
		sb.WriteString("Nil")
	case KindUnit:
		sb.WriteString("()")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.bits != 0))
	case KindInt:
		n, _ := v.AsInt()
		sb.WriteString(strconv.FormatInt(int64(n), 10))
	case KindNumber:
		sb.WriteString(formatNumber(math.Float64frombits(v.bits)))
	case KindStr, KindEmbedded:
		sb.WriteString(v.ref.(string))
	case KindTuple:
		sb.WriteByte('(')
		for i, e := range v.ref.([]Value) {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.display(sb)
		}
		sb.WriteByte(')')
	case KindTable:
		v.ref.(*Table).display(sb)
	case KindFunction:
		f := v.ref.(Function)
		if _, ok := f.(*Native); ok {
			sb.WriteString("native ")
		}
		fmt.Fprintf(sb, "fn(%d args)", f.Arity())
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

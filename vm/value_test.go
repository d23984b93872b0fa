package vm

import (
	"errors"
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Scalar tests
// ---------------------------------------------------------------------------

func TestIntRoundTrip(t *testing.T) {
	tests := []int32{0, 1, -1, 42, math.MaxInt32, math.MinInt32}

	for _, n := range tests {
		v := Int(n)
		if v.Kind() != KindInt {
			t.Errorf("Int(%d).Kind() = %s, want int", n, v.Kind())
			continue
		}
		got, ok := v.AsInt()
		if !ok || got != n {
			t.Errorf("Int(%d).AsInt() = %d, %v", n, got, ok)
		}
	}
}

func TestAsIntConvertsIntegralNumbers(t *testing.T) {
	tests := []struct {
		in   Value
		want int32
		ok   bool
	}{
		{Number(3), 3, true},
		{Number(-7), -7, true},
		{Number(2.5), 0, false},
		{Number(1e12), 0, false},
		{Str("3"), 0, false},
	}

	for _, tt := range tests {
		got, ok := tt.in.AsInt()
		if ok != tt.ok || got != tt.want {
			t.Errorf("%v.AsInt() = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Nil, false},
		{False, false},
		{True, true},
		{Unit, true},
		{Int(0), true},
		{Str(""), true},
		{TableOf(NewTable()), true},
	}

	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("%s.Truthy() = %v, want %v", tt.v.TypeName(), got, tt.want)
		}
	}
}

func TestZeroValueIsNil(t *testing.T) {
	var v Value
	if !v.IsNil() {
		t.Error("zero Value should be nil")
	}
}

// ---------------------------------------------------------------------------
// Equality tests
// ---------------------------------------------------------------------------

func TestEqual(t *testing.T) {
	shared := NewTable()
	fn := &Native{Name: "f", Params: 0}

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nil", Nil, Nil, true},
		{"unit", Unit, Unit, true},
		{"nil vs unit", Nil, Unit, false},
		{"bool", True, Bool(true), true},
		{"int", Int(3), Int(3), true},
		{"int vs number", Int(3), Number(3), false},
		{"number", Number(2.5), Number(2.5), true},
		{"int vs fractional", Int(3), Number(3.5), false},
		{"str", Str("a"), Str("a"), true},
		{"str vs embedded", Str("len"), Embedded("len"), true},
		{"str vs int", Str("1"), Int(1), false},
		{"same table", TableOf(shared), TableOf(shared), true},
		{"distinct tables", TableOf(NewTable()), TableOf(NewTable()), false},
		{"tuples", TupleOf(Int(1), Str("x")), TupleOf(Int(1), Str("x")), true},
		{"tuple length", TupleOf(Int(1)), TupleOf(Int(1), Int(2)), false},
		{"same function", FunctionOf(fn), FunctionOf(fn), true},
		{"distinct functions", FunctionOf(fn), FunctionOf(&Native{Name: "f"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("reversed Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqualValuesShareKeys(t *testing.T) {
	pairs := [][2]Value{
		{Str("k"), Embedded("k")},
		{TupleOf(Int(1), Str("a")), TupleOf(Int(1), Embedded("a"))},
		{Number(0), Number(math.Copysign(0, -1))},
	}
	for _, p := range pairs {
		if p[0].key() != p[1].key() {
			t.Errorf("key(%v) != key(%v)", p[0], p[1])
		}
	}
}

func TestIntAndNumberKeysDiffer(t *testing.T) {
	if Int(2).key() == Number(2).key() {
		t.Error("Int(2) and Number(2) share a table key")
	}
	tbl := NewTable()
	if err := tbl.Set(Int(2), Str("int")); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Set(Number(2), Str("number")); err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len = %d, want 2", tbl.Len())
	}
}

// ---------------------------------------------------------------------------
// Display tests
// ---------------------------------------------------------------------------

func TestDisplay(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Nil, "Nil"},
		{Unit, "()"},
		{True, "true"},
		{Int(-4), "-4"},
		{Number(3.5), "3.5"},
		{Number(2), "2"},
		{Str("hi"), "hi"},
		{Embedded("PI"), "PI"},
		{TupleOf(Int(1), Str("a"), Nil), "(1, a, Nil)"},
		{FunctionOf(&Native{Name: "len", Params: 1}), "native fn(1 args)"},
		{FunctionOf(&Closure{Proto: &FuncProto{Params: 2}}), "fn(2 args)"},
		{TableOf(NewTable()), "{}"},
		{TableOf(NewArrayTable([]Value{Int(7)})), "{\n\t0: 7\n}"},
	}

	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDisplaySelfReferentialTable(t *testing.T) {
	tbl := NewTable()
	tbl.Set(Str("self"), TableOf(tbl))
	got := TableOf(tbl).String()
	if got != "{\n\tself: {<borrowed>}\n}" {
		t.Errorf("String() = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Table tests
// ---------------------------------------------------------------------------

func TestTableGetSet(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Set(Str("a"), Int(1)); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Set(Int(1), Str("one")); err != nil {
		t.Fatal(err)
	}

	v, err := tbl.Get(Embedded("a"))
	if err != nil || !v.Equal(Int(1)) {
		t.Errorf("Get(a) = %v, %v", v, err)
	}
	v, _ = tbl.Get(Int(1))
	if !v.Equal(Str("one")) {
		t.Errorf("Get(1) = %v, want one", v)
	}
	v, _ = tbl.Get(Number(1))
	if !v.IsNil() {
		t.Errorf("Get(1.0) = %v, want Nil", v)
	}
	v, _ = tbl.Get(Str("missing"))
	if !v.IsNil() {
		t.Errorf("Get(missing) = %v, want Nil", v)
	}

	tbl.Set(Str("a"), Int(2))
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}

func TestArrayTable(t *testing.T) {
	tbl := NewArrayTable([]Value{Str("x"), Str("y"), Str("z")})
	for i, want := range []string{"x", "y", "z"} {
		v, _ := tbl.Get(Int(int32(i)))
		if s, _ := v.AsString(); s != want {
			t.Errorf("Get(%d) = %v, want %s", i, v, want)
		}
	}
}

func TestTableBorrowConflict(t *testing.T) {
	tbl := NewTable()
	err := tbl.Borrow(func(keys, values []Value) error {
		return tbl.Set(Str("k"), Int(1))
	})
	if !errors.Is(err, ErrBorrowConflict) {
		t.Errorf("nested Set error = %v, want ErrBorrowConflict", err)
	}

	// The guard is released once the operation ends.
	if err := tbl.Set(Str("k"), Int(1)); err != nil {
		t.Errorf("Set after Borrow: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Operator tests
// ---------------------------------------------------------------------------

func TestEvalBinaryArithmetic(t *testing.T) {
	tests := []struct {
		name        string
		op          BinaryOp
		left, right Value
		want        Value
	}{
		{"int plus number", BinAdd, Int(1), Number(2.5), Number(3.5)},
		{"int division", BinDiv, Int(4), Int(2), Int(2)},
		{"truncating division", BinDiv, Int(5), Int(2), Int(2)},
		{"negative truncation", BinDiv, Int(-5), Int(2), Int(-2)},
		{"number division", BinDiv, Number(5), Int(2), Number(2.5)},
		{"concat", BinAdd, Str("a"), Str("b"), Str("ab")},
		{"concat embedded", BinAdd, Embedded("a"), Str("b"), Str("ab")},
		{"compare mixed", BinLt, Int(1), Number(1.5), True},
		{"ge", BinGe, Int(2), Int(2), True},
		{"eq mixed kinds", BinEq, Str("1"), Int(1), False},
		{"ne", BinNe, Nil, False, True},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalBinary(tt.op, tt.left, tt.right)
			if err != nil {
				t.Fatalf("EvalBinary error: %v", err)
			}
			if got.Kind() != tt.want.Kind() || !got.Equal(tt.want) {
				t.Errorf("got %s %v, want %s %v", got.TypeName(), got, tt.want.TypeName(), tt.want)
			}
		})
	}
}

func TestEvalBinaryErrors(t *testing.T) {
	tests := []struct {
		name        string
		op          BinaryOp
		left, right Value
		want        error
		offending   Value
	}{
		{"bool plus int", BinAdd, True, Int(1), ErrUnsupportedBinary, True},
		{"int plus string", BinAdd, Int(1), Str("a"), ErrUnsupportedBinary, Str("a")},
		{"string minus", BinSub, Str("a"), Str("b"), ErrUnsupportedBinary, Str("a")},
		{"int div zero", BinDiv, Int(1), Int(0), ErrDivisionByZero, Nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvalBinary(tt.op, tt.left, tt.right)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var be *BinaryError
			if errors.As(err, &be) && !be.Value.Equal(tt.offending) {
				t.Errorf("offending value = %v, want %v", be.Value, tt.offending)
			}
		})
	}

	_, err := EvalBinary(BinAdd, True, Int(1))
	if !errors.Is(err, ErrTypeError) {
		t.Error("unsupported binary should also be a type error")
	}
}

func TestEvalUnary(t *testing.T) {
	if v, _ := EvalUnary(UnaryNegate, Int(3)); !v.Equal(Int(-3)) {
		t.Errorf("-3 = %v", v)
	}
	if v, _ := EvalUnary(UnaryNegate, Number(1.5)); !v.Equal(Number(-1.5)) {
		t.Errorf("-1.5 = %v", v)
	}
	if v, _ := EvalUnary(UnaryNot, False); !v.Equal(True) {
		t.Errorf("!false = %v", v)
	}
	if _, err := EvalUnary(UnaryNot, Int(0)); !errors.Is(err, ErrTypeError) {
		t.Errorf("!0 error = %v, want type error", err)
	}
	if _, err := EvalUnary(UnaryNegate, Str("x")); !errors.Is(err, ErrTypeError) {
		t.Errorf("-\"x\" error = %v, want type error", err)
	}
}

package vm

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

var startTime = time.Now()

// predefinedGlobals lists the globals every VM starts with. Order matters:
// it fixes the seeded prefix of every chunk's constant pool.
var predefinedGlobals = []struct {
	name  string
	value Value
}{
	{"clock", FunctionOf(&Native{Name: "clock", Params: 0, Fn: nativeClock})},
	{"len", FunctionOf(&Native{Name: "len", Params: 1, Fn: nativeLen})},
	{"type", FunctionOf(&Native{Name: "type", Params: 1, Fn: nativeType})},
	{"str", FunctionOf(&Native{Name: "str", Params: 1, Fn: nativeStr})},
	{"sqrt", FunctionOf(&Native{Name: "sqrt", Params: 1, Fn: nativeSqrt})},
	{"PI", Number(math.Pi)},
}

// PredefinedNames returns the names of the predefined globals in their fixed
// order.
func PredefinedNames() []string {
	names := make([]string, len(predefinedGlobals))
	for i, g := range predefinedGlobals {
		names[i] = g.name
	}
	return names
}

func predefined() map[string]Value {
	m := make(map[string]Value, len(predefinedGlobals))
	for _, g := range predefinedGlobals {
		m[g.name] = g.value
	}
	return m
}

// clock() returns seconds since the process started.
func nativeClock(args []Value) (Value, error) {
	return Number(time.Since(startTime).Seconds()), nil
}

// len(x) counts characters of a string, entries of a table, or elements of
// a tuple.
func nativeLen(args []Value) (Value, error) {
	v := args[0]
	if s, ok := v.AsString(); ok {
		return Int(int32(utf8.RuneCountInString(s))), nil
	}
	if t, ok := v.AsTable(); ok {
		return Int(int32(t.Len())), nil
	}
	if elems, ok := v.AsTuple(); ok {
		return Int(int32(len(elems))), nil
	}
	return Nil, fmt.Errorf("%w: len of %s", ErrTypeError, v.TypeName())
}

func nativeType(args []Value) (Value, error) {
	return Str(args[0].TypeName()), nil
}

func nativeStr(args []Value) (Value, error) {
	return Str(args[0].String()), nil
}

func nativeSqrt(args []Value) (Value, error) {
	f, ok := args[0].AsNumber()
	if !ok {
		return Nil, fmt.Errorf("%w: sqrt of %s", ErrTypeError, args[0].TypeName())
	}
	return Number(math.Sqrt(f)), nil
}

package compiler

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/rill/vm"
)

// firstFree is the first constant index after the predefined names.
var firstFree = uint8(len(vm.PredefinedNames()))

func compileOK(t *testing.T, source string) *vm.Chunk {
	t.Helper()
	chunk, err := CompileSource(source)
	if err != nil {
		t.Fatalf("compile %q: %v", source, err)
	}
	return chunk
}

func assertCode(t *testing.T, source string, want []vm.Instruction) {
	t.Helper()
	got := compileOK(t, source).Instructions
	if !reflect.DeepEqual(got, want) {
		var sb strings.Builder
		for i, in := range got {
			sb.WriteString("\n  ")
			sb.WriteString(in.String())
			if i < len(want) && in != want[i] {
				sb.WriteString("   <- want " + want[i].String())
			}
		}
		t.Errorf("%s compiled to:%s\nwant %d instructions", source, sb.String(), len(want))
	}
}

func TestCompileLowering(t *testing.T) {
	k := firstFree
	tests := []struct {
		name   string
		source string
		want   []vm.Instruction
	}{
		{
			name:   "arithmetic",
			source: "print 1 + 2;",
			want: []vm.Instruction{
				vm.Constant(k), vm.Constant(k + 1), vm.Bin(vm.BinAdd),
				vm.Simple(vm.OpPrint), vm.Return(false),
			},
		},
		{
			name:   "literals",
			source: "nil; (); true; false;",
			want: []vm.Instruction{
				vm.Simple(vm.OpNil), vm.Simple(vm.OpPop),
				vm.Simple(vm.OpUnit), vm.Simple(vm.OpPop),
				vm.Simple(vm.OpTrue), vm.Simple(vm.OpPop),
				vm.Simple(vm.OpFalse), vm.Simple(vm.OpPop),
				vm.Return(false),
			},
		},
		{
			name:   "unary",
			source: "print -!true;",
			want: []vm.Instruction{
				vm.Simple(vm.OpTrue), vm.Unary(vm.UnaryNot), vm.Unary(vm.UnaryNegate),
				vm.Simple(vm.OpPrint), vm.Return(false),
			},
		},
		{
			name:   "local is its initializer's slot",
			source: "let x = 1; print x;",
			want: []vm.Instruction{
				vm.Constant(k), vm.GetLocal(0), vm.Simple(vm.OpPrint), vm.Return(false),
			},
		},
		{
			name:   "predefined global uses seeded name",
			source: "print clock;",
			want: []vm.Instruction{
				vm.GetGlobal(0), vm.Simple(vm.OpPrint), vm.Return(false),
			},
		},
		{
			name:   "global assignment",
			source: "y = 2;",
			want: []vm.Instruction{
				vm.Constant(k), vm.SetGlobal(k + 1), vm.Return(false),
			},
		},
		{
			name:   "local assignment",
			source: "let x = 1; x = 2;",
			want: []vm.Instruction{
				vm.Constant(k), vm.Constant(k + 1), vm.SetLocal(0), vm.Return(false),
			},
		},
		{
			name:   "block pops its locals",
			source: "{ let a = 1; let b = 2; }",
			want: []vm.Instruction{
				vm.Constant(k), vm.Constant(k + 1),
				vm.Simple(vm.OpPop), vm.Simple(vm.OpPop),
				vm.Return(false),
			},
		},
		{
			name:   "if without else",
			source: "if true { print 1; }",
			want: []vm.Instruction{
				vm.Simple(vm.OpTrue), vm.JumpIf(false, 3),
				vm.Constant(k), vm.Simple(vm.OpPrint),
				vm.Return(false),
			},
		},
		{
			name:   "if with else",
			source: "if true { print 1; } else { print 2; }",
			want: []vm.Instruction{
				vm.Simple(vm.OpTrue), vm.JumpIf(false, 4),
				vm.Constant(k), vm.Simple(vm.OpPrint), vm.Jump(3),
				vm.Constant(k + 1), vm.Simple(vm.OpPrint),
				vm.Return(false),
			},
		},
		{
			name:   "while",
			source: "while false { print 1; }",
			want: []vm.Instruction{
				vm.Simple(vm.OpFalse), vm.JumpIf(false, 4),
				vm.Constant(k), vm.Simple(vm.OpPrint), vm.Jump(-4),
				vm.Return(false),
			},
		},
		{
			name:   "function literal",
			source: "let f = fn(a) { return a; };",
			want: []vm.Instruction{
				vm.Jump(5),
				vm.GetLocal(0), vm.Return(true),
				vm.Simple(vm.OpPop), vm.Return(false),
				vm.FuncDef(0),
				vm.Return(false),
			},
		},
		{
			name:   "call pushes arguments before callee",
			source: "let f = fn(a, b) { }; f(1, 2);",
			want: []vm.Instruction{
				vm.Jump(4),
				vm.Simple(vm.OpPop), vm.Simple(vm.OpPop), vm.Return(false),
				vm.FuncDef(0),
				vm.Constant(k), vm.Constant(k + 1), vm.GetLocal(0), vm.Call(2),
				vm.Simple(vm.OpPop),
				vm.Return(false),
			},
		},
		{
			name:   "keyed table",
			source: `let t = {a: 1}; print t.a;`,
			want: []vm.Instruction{
				vm.Constant(k), vm.Constant(k + 1), vm.InitTable(1, true),
				vm.GetLocal(0), vm.GetFieldImm(k), vm.Simple(vm.OpPrint),
				vm.Return(false),
			},
		},
		{
			name:   "positional table pushes values in reverse",
			source: "let t = [1, 2]; print t[0];",
			want: []vm.Instruction{
				vm.Constant(k), vm.Constant(k + 1), vm.InitTable(2, false),
				vm.GetLocal(0), vm.Constant(k + 2), vm.Simple(vm.OpGetField), vm.Simple(vm.OpPrint),
				vm.Return(false),
			},
		},
		{
			name:   "string subscript is immediate",
			source: `let t = {}; print t["a"];`,
			want: []vm.Instruction{
				vm.InitTable(0, true),
				vm.GetLocal(0), vm.GetFieldImm(k), vm.Simple(vm.OpPrint),
				vm.Return(false),
			},
		},
		{
			name:   "field store",
			source: "let t = {}; t.a = 1;",
			want: []vm.Instruction{
				vm.InitTable(0, true),
				vm.Constant(k), vm.GetLocal(0), vm.SetFieldImm(k + 1),
				vm.Return(false),
			},
		},
		{
			name:   "computed field store",
			source: "let t = {}; let i = 0; t[i] = 1;",
			want: []vm.Instruction{
				vm.InitTable(0, true), vm.Constant(k),
				vm.Constant(k + 1), vm.GetLocal(1), vm.GetLocal(0), vm.Simple(vm.OpSetField),
				vm.Return(false),
			},
		},
		{
			name:   "tuple",
			source: "print (1, 2);",
			want: []vm.Instruction{
				vm.Constant(k), vm.Constant(k + 1), vm.Tuple(2),
				vm.Simple(vm.OpPrint), vm.Return(false),
			},
		},
		{
			name:   "bare return",
			source: "return;",
			want:   []vm.Instruction{vm.Return(false), vm.Return(false)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, tt.source, tt.want)
		})
	}
}

func TestCompileIntegralNumbersAreInts(t *testing.T) {
	chunk := compileOK(t, "print 3; print 2.5; print 1e3; print 3000000000;")
	consts := chunk.Constants[firstFree:]
	wantKinds := []vm.Kind{vm.KindInt, vm.KindNumber, vm.KindInt, vm.KindNumber}
	if len(consts) != len(wantKinds) {
		t.Fatalf("got %d constants, want %d", len(consts), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if consts[i].Kind() != kind {
			t.Errorf("constant %d = %s, want %s", i, consts[i].Kind(), kind)
		}
	}
}

func TestCompileNumbersNotShared(t *testing.T) {
	chunk := compileOK(t, `print 1; print 1; print "s"; print "s";`)
	if got := len(chunk.Constants) - int(firstFree); got != 3 {
		t.Errorf("got %d new constants, want 3 (two numbers, one string)", got)
	}
}

func TestCompileUpvalueDescriptors(t *testing.T) {
	chunk := compileOK(t, `
		let x = 1;
		let f = fn() {
			let g = fn() { return x; };
			return x;
		};
	`)
	if len(chunk.Prototypes) != 2 {
		t.Fatalf("got %d prototypes, want 2", len(chunk.Prototypes))
	}
	// The inner function finishes first.
	inner, outer := chunk.Prototypes[0], chunk.Prototypes[1]

	wantOuter := []vm.UpvalueDesc{{Source: vm.VarSourceLocal, Index: 0}}
	if !reflect.DeepEqual(outer.Upvalues, wantOuter) {
		t.Errorf("outer upvalues = %v, want %v", outer.Upvalues, wantOuter)
	}
	wantInner := []vm.UpvalueDesc{{Source: vm.VarSourceCapture, Index: 0}}
	if !reflect.DeepEqual(inner.Upvalues, wantInner) {
		t.Errorf("inner upvalues = %v, want %v", inner.Upvalues, wantInner)
	}
}

func TestCompileUpvaluesDeduplicated(t *testing.T) {
	chunk := compileOK(t, `
		let a = 1;
		let b = 2;
		let f = fn() { print a; print b; print a; a = 3; };
	`)
	want := []vm.UpvalueDesc{
		{Source: vm.VarSourceLocal, Index: 0},
		{Source: vm.VarSourceLocal, Index: 1},
	}
	if got := chunk.Prototypes[0].Upvalues; !reflect.DeepEqual(got, want) {
		t.Errorf("upvalues = %v, want %v", got, want)
	}
}

func TestCompileParamsAreFrameSlots(t *testing.T) {
	chunk := compileOK(t, `let pad = 0; let f = fn(a, b) { return b; };`)
	proto := chunk.Prototypes[0]
	if proto.Params != 2 {
		t.Errorf("params = %d, want 2", proto.Params)
	}
	body := chunk.Instructions[proto.CodeStart+1]
	if body != vm.GetLocal(1) {
		t.Errorf("first body instruction = %s, want GET_LOCAL 1", body)
	}
	if len(proto.Upvalues) != 0 {
		t.Errorf("upvalues = %v, want none", proto.Upvalues)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"literal target", "1 = 2;", ErrInvalidAssignmentTarget},
		{"call target", "f() = 2;", ErrInvalidAssignmentTarget},
		{"assignment as value", "print (a = 1);", ErrUnimplementedExpr},
		{"if expression", "let x = if true { 1; };", ErrUnimplementedExpr},
		{"too many constants", strings.Repeat("print 1;", 250), ErrTooManyConstants},
		{"parse failure", "let = ;", ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource(tt.source)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := CompileSource("let a = 1;\n\n1 = a;")
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CompileError", err)
	}
	if ce.Pos.Line != 3 {
		t.Errorf("line = %d, want 3", ce.Pos.Line)
	}
	if !strings.HasPrefix(ce.Error(), "line 3: ") {
		t.Errorf("message %q lacks line prefix", ce.Error())
	}
}

func TestCompileStringsStayDeduplicated(t *testing.T) {
	if _, err := CompileSource(strings.Repeat(`print "a";`, 300)); err != nil {
		t.Errorf("repeated string literal: %v", err)
	}
}

// ifSpanning builds an if statement whose conditional jump has offset span.
// The span counts the jump slot itself, so the body is span-1 instructions
// and the widest encodable jump (127) skips a 126-instruction body.
func ifSpanning(span int) string {
	n := span - 1
	var sb strings.Builder
	sb.WriteString("if true {")
	if n%2 == 1 {
		sb.WriteString(" print -nil;")
		n -= 3
	}
	for ; n > 0; n -= 2 {
		sb.WriteString(" print nil;")
	}
	sb.WriteString(" }")
	return sb.String()
}

func TestCompileJumpBound(t *testing.T) {
	for _, span := range []int{126, 127} {
		if _, err := CompileSource(ifSpanning(span)); err != nil {
			t.Errorf("jump over %d instructions: %v", span, err)
		}
	}
	for _, span := range []int{128, 201} {
		_, err := CompileSource(ifSpanning(span))
		if !errors.Is(err, ErrTooLongToJump) {
			t.Errorf("jump over %d instructions: error = %v, want %v", span, err, ErrTooLongToJump)
		}
	}
}

func TestCompileBackJumpBound(t *testing.T) {
	src := "while false {" + strings.Repeat(" print nil;", 70) + " }"
	_, err := CompileSource(src)
	if !errors.Is(err, ErrTooLongToJump) {
		t.Errorf("error = %v, want %v", err, ErrTooLongToJump)
	}
}

func TestCompileDeterministic(t *testing.T) {
	src := `
		fn make(n) {
			let t = {count: n, items: [1, 2, 3]};
			return fn() { t.count = t.count + 1; return t.count; };
		}
		let c = make(10);
		while c() < 20 { print c(); }
	`
	a := compileOK(t, src)
	b := compileOK(t, src)
	if !reflect.DeepEqual(a.Instructions, b.Instructions) {
		t.Error("instructions differ between compilations")
	}
	fa, err := a.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	fb, err := b.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if fa != fb {
		t.Errorf("fingerprints differ: %s vs %s", fa, fb)
	}
}

func TestCompileWhitespaceInsensitive(t *testing.T) {
	compact := compileOK(t, `let x=1;if x>0{print x;}else{print -x;}`)
	spaced := compileOK(t, `
		// leading comment
		let x = 1;
		if x > 0 {
			print x; /* inline */
		} else {
			print -x;
		}
	`)
	if !reflect.DeepEqual(compact.Instructions, spaced.Instructions) {
		t.Error("layout changed the instruction stream")
	}
	if !reflect.DeepEqual(compact.Constants, spaced.Constants) {
		t.Error("layout changed the constant pool")
	}
}

func TestDisassembleCompiledChunk(t *testing.T) {
	chunk := compileOK(t, `let f = fn(a) { return a; }; print f(1);`)
	out := chunk.Disassemble("script")
	for _, want := range []string{"; === script ===", "FUNC_DEF", "CALL", "fn(1 args)"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

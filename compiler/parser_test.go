package compiler

import (
	"errors"
	"testing"
)

func parseOne(t *testing.T, source string) Stmt {
	t.Helper()
	stmts, err := Parse(source)
	if err != nil {
		t.Fatalf("parse %q: %v", source, err)
	}
	if len(stmts) != 1 {
		t.Fatalf("parse %q: got %d statements, want 1", source, len(stmts))
	}
	return stmts[0]
}

func parseExpr(t *testing.T, source string) Expr {
	t.Helper()
	stmt, ok := parseOne(t, source+";").(*ExprStmt)
	if !ok {
		t.Fatalf("parse %q: not an expression statement", source)
	}
	return stmt.Expr
}

func TestParseLet(t *testing.T) {
	let, ok := parseOne(t, "let x = 42;").(*LetStmt)
	if !ok {
		t.Fatal("expected *LetStmt")
	}
	if let.Name != "x" {
		t.Errorf("name = %q, want x", let.Name)
	}
	num, ok := let.Value.(*NumberLiteral)
	if !ok || num.Value != 42 {
		t.Errorf("value = %#v, want 42", let.Value)
	}
}

func TestParseFnDeclaration(t *testing.T) {
	let, ok := parseOne(t, "fn add(a, b) { return a + b; }").(*LetStmt)
	if !ok {
		t.Fatal("fn declaration should parse as a let")
	}
	if let.Name != "add" {
		t.Errorf("name = %q, want add", let.Name)
	}
	fn, ok := let.Value.(*FunctionExpr)
	if !ok {
		t.Fatalf("value = %T, want *FunctionExpr", let.Value)
	}
	if len(fn.Params) != 2 || fn.Params[0] != "a" || fn.Params[1] != "b" {
		t.Errorf("params = %v, want [a b]", fn.Params)
	}
	if len(fn.Body) != 1 {
		t.Fatalf("body has %d statements, want 1", len(fn.Body))
	}
	if _, ok := fn.Body[0].(*ReturnStmt); !ok {
		t.Errorf("body[0] = %T, want *ReturnStmt", fn.Body[0])
	}
}

func TestParsePrecedence(t *testing.T) {
	// 1 + 2 * 3 == 7 groups as (1 + (2 * 3)) == 7
	eq, ok := parseExpr(t, "1 + 2 * 3 == 7").(*BinaryExpr)
	if !ok || eq.Op != BinaryEqualEqual {
		t.Fatalf("top = %#v, want ==", eq)
	}
	sum, ok := eq.Left.(*BinaryExpr)
	if !ok || sum.Op != BinaryPlus {
		t.Fatalf("left = %#v, want +", eq.Left)
	}
	product, ok := sum.Right.(*BinaryExpr)
	if !ok || product.Op != BinaryStar {
		t.Fatalf("right of + = %#v, want *", sum.Right)
	}
}

func TestParseLeftAssociative(t *testing.T) {
	// 10 - 4 - 3 groups as (10 - 4) - 3
	outer, ok := parseExpr(t, "10 - 4 - 3").(*BinaryExpr)
	if !ok {
		t.Fatal("expected *BinaryExpr")
	}
	if _, ok := outer.Left.(*BinaryExpr); !ok {
		t.Errorf("left = %T, want nested subtraction", outer.Left)
	}
	if n, ok := outer.Right.(*NumberLiteral); !ok || n.Value != 3 {
		t.Errorf("right = %#v, want 3", outer.Right)
	}
}

func TestParseUnary(t *testing.T) {
	neg, ok := parseExpr(t, "-!x").(*UnaryExpr)
	if !ok || neg.Op != UnaryMinus {
		t.Fatalf("top = %#v, want unary minus", neg)
	}
	not, ok := neg.Operand.(*UnaryExpr)
	if !ok || not.Op != UnaryBang {
		t.Fatalf("operand = %#v, want unary bang", neg.Operand)
	}
}

func TestParseAssignmentRightAssociative(t *testing.T) {
	outer, ok := parseExpr(t, "a = b = 1").(*Set)
	if !ok {
		t.Fatal("expected *Set")
	}
	if id, ok := outer.Target.(*Identifier); !ok || id.Name != "a" {
		t.Errorf("target = %#v, want a", outer.Target)
	}
	if _, ok := outer.Value.(*Set); !ok {
		t.Errorf("value = %T, want nested *Set", outer.Value)
	}
}

func TestParseParenForms(t *testing.T) {
	tests := []struct {
		input string
		check func(Expr) bool
	}{
		{"()", func(e Expr) bool { _, ok := e.(*UnitLiteral); return ok }},
		{"(1)", func(e Expr) bool { _, ok := e.(*Grouping); return ok }},
		{"(1, 2)", func(e Expr) bool { tu, ok := e.(*TupleExpr); return ok && len(tu.Elements) == 2 }},
		{"(1, 2, 3,)", func(e Expr) bool { tu, ok := e.(*TupleExpr); return ok && len(tu.Elements) == 3 }},
	}
	for _, tt := range tests {
		if e := parseExpr(t, tt.input); !tt.check(e) {
			t.Errorf("%s parsed as %T", tt.input, e)
		}
	}
}

func TestParsePostfixChain(t *testing.T) {
	// t.items[0](x)
	call, ok := parseExpr(t, "t.items[0](x)").(*Call)
	if !ok {
		t.Fatal("expected *Call")
	}
	if len(call.Args) != 1 {
		t.Errorf("args = %d, want 1", len(call.Args))
	}
	index, ok := call.Callee.(*Access)
	if !ok {
		t.Fatalf("callee = %T, want *Access", call.Callee)
	}
	field, ok := index.Table.(*SelfAccess)
	if !ok || field.Field != "items" {
		t.Fatalf("table = %#v, want .items", index.Table)
	}
}

func TestParseTables(t *testing.T) {
	let := parseOne(t, `let t = {name: "rill", 1: 2, "k": nil};`).(*LetStmt)
	keyed, ok := let.Value.(*TableInit)
	if !ok {
		t.Fatal("expected *TableInit")
	}
	if len(keyed.Keys) != 3 || len(keyed.Values) != 3 {
		t.Fatalf("keys=%d values=%d, want 3 and 3", len(keyed.Keys), len(keyed.Values))
	}
	if s, ok := keyed.Keys[0].(*StringLiteral); !ok || s.Value != "name" {
		t.Errorf("bare key = %#v, want string name", keyed.Keys[0])
	}

	let = parseOne(t, "let e = {};").(*LetStmt)
	empty, ok := let.Value.(*TableInit)
	if !ok || empty.Keys == nil || len(empty.Keys) != 0 {
		t.Errorf("{} = %#v, want keyed table with no entries", let.Value)
	}

	// A statement that starts with a brace is a block.
	if _, ok := parseOne(t, "{ print 1; }").(*BlockStmt); !ok {
		t.Error("leading brace should parse as a block")
	}

	positional, ok := parseExpr(t, "[1, 2, 3]").(*TableInit)
	if !ok {
		t.Fatal("expected positional *TableInit")
	}
	if positional.Keys != nil {
		t.Errorf("positional keys = %v, want nil", positional.Keys)
	}
	if len(positional.Values) != 3 {
		t.Errorf("values = %d, want 3", len(positional.Values))
	}
}

func TestParseIfElseChain(t *testing.T) {
	stmt, ok := parseOne(t, "if a { print 1; } else if b { print 2; } else { print 3; }").(*IfStmt)
	if !ok {
		t.Fatal("expected *IfStmt")
	}
	nested, ok := stmt.Else.(*IfStmt)
	if !ok {
		t.Fatalf("else = %T, want *IfStmt", stmt.Else)
	}
	if _, ok := nested.Else.(*BlockStmt); !ok {
		t.Errorf("final else = %T, want *BlockStmt", nested.Else)
	}
}

func TestParseWhile(t *testing.T) {
	stmt, ok := parseOne(t, "while i < 10 { i = i + 1; }").(*WhileStmt)
	if !ok {
		t.Fatal("expected *WhileStmt")
	}
	body, ok := stmt.Body.(*BlockStmt)
	if !ok || len(body.Body) != 1 {
		t.Errorf("body = %#v", stmt.Body)
	}
}

func TestParseReturnForms(t *testing.T) {
	stmts, err := Parse("fn f() { return; } fn g() { return 1; }")
	if err != nil {
		t.Fatal(err)
	}
	bare := stmts[0].(*LetStmt).Value.(*FunctionExpr).Body[0].(*ReturnStmt)
	if bare.Value != nil {
		t.Errorf("bare return value = %#v, want nil", bare.Value)
	}
	valued := stmts[1].(*LetStmt).Value.(*FunctionExpr).Body[0].(*ReturnStmt)
	if valued.Value == nil {
		t.Error("return 1 lost its value")
	}
}

func TestParseIfExpression(t *testing.T) {
	let, ok := parseOne(t, "let x = if c { 1; } else { 2; };").(*LetStmt)
	if !ok {
		t.Fatal("expected *LetStmt")
	}
	e, ok := let.Value.(*IfExpr)
	if !ok {
		t.Fatalf("value = %T, want *IfExpr", let.Value)
	}
	if _, ok := e.Then.(*BlockExpr); !ok {
		t.Errorf("then = %T, want *BlockExpr", e.Then)
	}
}

func TestParseSpans(t *testing.T) {
	stmts, err := Parse("let a = 1;\nprint a;")
	if err != nil {
		t.Fatal(err)
	}
	if got := stmts[1].Span().Start.Line; got != 2 {
		t.Errorf("print starts on line %d, want 2", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"let = 1;",
		"let x = ;",
		"print 1",
		"fn (a b) {}",
		"(1, 2",
		"{a: 1",
		"x.1;",
		"1 +;",
	}
	for _, src := range tests {
		_, err := Parse(src)
		if err == nil {
			t.Errorf("Parse(%q) succeeded, want error", src)
			continue
		}
		if !errors.Is(err, ErrParse) {
			t.Errorf("Parse(%q) error %v does not wrap ErrParse", src, err)
		}
	}
}

func TestParseCollectsMultipleErrors(t *testing.T) {
	_, err := Parse("let = 1;\nlet y = 2;\nprint ;")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if len(pe.Messages) < 2 {
		t.Errorf("messages = %v, want at least 2", pe.Messages)
	}
}

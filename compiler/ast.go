package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Rill
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// MakeSpan creates a span from two positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NilLiteral represents nil.
type NilLiteral struct {
	SpanVal Span
}

func (n *NilLiteral) Span() Span { return n.SpanVal }
func (n *NilLiteral) node()      {}
func (n *NilLiteral) expr()      {}

// UnitLiteral represents ().
type UnitLiteral struct {
	SpanVal Span
}

func (n *UnitLiteral) Span() Span { return n.SpanVal }
func (n *UnitLiteral) node()      {}
func (n *UnitLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NumberLiteral represents a numeric literal. Integral values that fit in 32
// bits compile to Int constants.
type NumberLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *NumberLiteral) Span() Span { return n.SpanVal }
func (n *NumberLiteral) node()      {}
func (n *NumberLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// Identifier represents a variable reference.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	UnaryMinus UnaryOp = iota // -x
	UnaryBang                 // !x
)

// UnaryExpr represents a prefix operation.
type UnaryExpr struct {
	SpanVal Span
	Op      UnaryOp
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryOp is an infix operator.
type BinaryOp int

const (
	BinaryPlus BinaryOp = iota
	BinaryMinus
	BinaryStar
	BinarySlash
	BinaryGreater
	BinaryLess
	BinaryGreaterEqual
	BinaryLessEqual
	BinaryEqualEqual
	BinaryBangEqual
)

// BinaryExpr represents an infix operation.
type BinaryExpr struct {
	SpanVal Span
	Left    Expr
	Op      BinaryOp
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// Grouping represents a parenthesized expression.
type Grouping struct {
	SpanVal Span
	Inner   Expr
}

func (n *Grouping) Span() Span { return n.SpanVal }
func (n *Grouping) node()      {}
func (n *Grouping) expr()      {}

// TupleExpr represents (a, b, ...).
type TupleExpr struct {
	SpanVal  Span
	Elements []Expr
}

func (n *TupleExpr) Span() Span { return n.SpanVal }
func (n *TupleExpr) node()      {}
func (n *TupleExpr) expr()      {}

// Access represents table[field].
type Access struct {
	SpanVal Span
	Table   Expr
	Field   Expr
}

func (n *Access) Span() Span { return n.SpanVal }
func (n *Access) node()      {}
func (n *Access) expr()      {}

// SelfAccess represents table.name.
type SelfAccess struct {
	SpanVal Span
	Table   Expr
	Field   string
}

func (n *SelfAccess) Span() Span { return n.SpanVal }
func (n *SelfAccess) node()      {}
func (n *SelfAccess) expr()      {}

// Set represents target = value.
type Set struct {
	SpanVal Span
	Target  Expr
	Value   Expr
}

func (n *Set) Span() Span { return n.SpanVal }
func (n *Set) node()      {}
func (n *Set) expr()      {}

// TableInit represents a table literal. Keys is nil for the positional form
// [a, b]; otherwise Keys[i] pairs with Values[i].
type TableInit struct {
	SpanVal Span
	Keys    []Expr
	Values  []Expr
}

func (n *TableInit) Span() Span { return n.SpanVal }
func (n *TableInit) node()      {}
func (n *TableInit) expr()      {}

// FunctionExpr represents fn(params) { body }.
type FunctionExpr struct {
	SpanVal Span
	Params  []string
	Body    []Stmt
}

func (n *FunctionExpr) Span() Span { return n.SpanVal }
func (n *FunctionExpr) node()      {}
func (n *FunctionExpr) expr()      {}

// Call represents callee(args).
type Call struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}

// BlockExpr is a block in expression position. It has no lowering yet.
type BlockExpr struct {
	SpanVal Span
	Body    []Stmt
}

func (n *BlockExpr) Span() Span { return n.SpanVal }
func (n *BlockExpr) node()      {}
func (n *BlockExpr) expr()      {}

// IfExpr is an if in expression position. It has no lowering yet.
type IfExpr struct {
	SpanVal   Span
	Condition Expr
	Then      Expr
	Else      Expr
}

func (n *IfExpr) Span() Span { return n.SpanVal }
func (n *IfExpr) node()      {}
func (n *IfExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// LetStmt declares a local: let name = value;
type LetStmt struct {
	SpanVal Span
	Name    string
	Value   Expr
}

func (n *LetStmt) Span() Span { return n.SpanVal }
func (n *LetStmt) node()      {}
func (n *LetStmt) stmt()      {}

// BlockStmt is { stmts }.
type BlockStmt struct {
	SpanVal Span
	Body    []Stmt
}

func (n *BlockStmt) Span() Span { return n.SpanVal }
func (n *BlockStmt) node()      {}
func (n *BlockStmt) stmt()      {}

// IfStmt is if cond then else. Else may be nil.
type IfStmt struct {
	SpanVal   Span
	Condition Expr
	Then      Stmt
	Else      Stmt
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt is while cond body.
type WhileStmt struct {
	SpanVal   Span
	Condition Expr
	Body      Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// PrintStmt is print value;
type PrintStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *PrintStmt) Span() Span { return n.SpanVal }
func (n *PrintStmt) node()      {}
func (n *PrintStmt) stmt()      {}

// ReturnStmt is return value?; Value is nil for a bare return.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

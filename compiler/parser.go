package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Rill syntax
// ---------------------------------------------------------------------------

// Parser parses Rill source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position // position just after the last consumed token
	errors    []string
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	if p.curToken.Type != TokenEOF {
		end := p.curToken.Pos
		end.Offset += len(p.curToken.Literal)
		end.Column += len(p.curToken.Literal)
		p.prevEnd = end
	}
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	for p.peekToken.Type == TokenError {
		p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.peekToken.Pos.Line, p.peekToken.Literal))
		p.peekToken = p.lexer.NextToken()
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken)
	return false
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) spanFrom(start Position) Span {
	return MakeSpan(start, p.prevEnd)
}

// synchronize skips to the next statement boundary after an error.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenSemicolon) {
			p.nextToken()
			return
		}
		switch p.curToken.Type {
		case TokenRBrace, TokenLet, TokenIf, TokenWhile, TokenPrint, TokenReturn:
			return
		}
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses statements until EOF.
func (p *Parser) ParseProgram() []Stmt {
	var stmts []Stmt
	for !p.curTokenIs(TokenEOF) {
		before := len(p.errors)
		stmt := p.ParseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if len(p.errors) > before {
			p.synchronize()
			if p.curTokenIs(TokenRBrace) {
				p.nextToken()
			}
		}
	}
	return stmts
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Stmt {
	switch p.curToken.Type {
	case TokenLet:
		return p.parseLet()
	case TokenFn:
		if p.peekTokenIs(TokenIdentifier) {
			return p.parseFnDecl()
		}
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenPrint:
		return p.parsePrint()
	case TokenReturn:
		return p.parseReturn()
	case TokenLBrace:
		if block := p.parseBlock(); block != nil {
			return block
		}
		return nil
	}
	return p.parseExprStmt()
}

// parseLet parses: let name = value;
func (p *Parser) parseLet() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume let

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected name after let, got %s", p.curToken)
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenEqual) {
		return nil
	}
	value := p.ParseExpression()
	if value == nil {
		return nil
	}
	if !p.expect(TokenSemicolon) {
		return nil
	}
	return &LetStmt{SpanVal: p.spanFrom(start), Name: name, Value: value}
}

// parseFnDecl parses fn name(params) { body } as let name = fn(params) { body };
func (p *Parser) parseFnDecl() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume fn
	name := p.curToken.Literal
	p.nextToken()

	fn := p.parseFunctionRest(start)
	if fn == nil {
		return nil
	}
	return &LetStmt{SpanVal: p.spanFrom(start), Name: name, Value: fn}
}

// parseBlock parses { stmts }.
func (p *Parser) parseBlock() *BlockStmt {
	start := p.curToken.Pos
	if !p.expect(TokenLBrace) {
		return nil
	}
	body := p.parseBlockBody()
	if !p.expect(TokenRBrace) {
		return nil
	}
	return &BlockStmt{SpanVal: p.spanFrom(start), Body: body}
}

// parseBlockBody parses statements up to the closing brace.
func (p *Parser) parseBlockBody() []Stmt {
	var stmts []Stmt
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		before := len(p.errors)
		stmt := p.ParseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if len(p.errors) > before {
			p.synchronize()
		}
	}
	return stmts
}

// parseIf parses: if cond { } (else if ... | else { })?
func (p *Parser) parseIf() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume if

	cond := p.ParseExpression()
	if cond == nil {
		return nil
	}
	then := p.parseBlock()
	if then == nil {
		return nil
	}
	stmt := &IfStmt{Condition: cond, Then: then}

	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenIf) {
			stmt.Else = p.parseIf()
		} else if block := p.parseBlock(); block != nil {
			stmt.Else = block
		}
		if stmt.Else == nil {
			return nil
		}
	}
	stmt.SpanVal = p.spanFrom(start)
	return stmt
}

// parseWhile parses: while cond { }
func (p *Parser) parseWhile() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume while

	cond := p.ParseExpression()
	if cond == nil {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &WhileStmt{SpanVal: p.spanFrom(start), Condition: cond, Body: body}
}

// parsePrint parses: print value;
func (p *Parser) parsePrint() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume print

	value := p.ParseExpression()
	if value == nil {
		return nil
	}
	if !p.expect(TokenSemicolon) {
		return nil
	}
	return &PrintStmt{SpanVal: p.spanFrom(start), Value: value}
}

// parseReturn parses: return value?;
func (p *Parser) parseReturn() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume return

	var value Expr
	if !p.curTokenIs(TokenSemicolon) {
		if value = p.ParseExpression(); value == nil {
			return nil
		}
	}
	if !p.expect(TokenSemicolon) {
		return nil
	}
	return &ReturnStmt{SpanVal: p.spanFrom(start), Value: value}
}

func (p *Parser) parseExprStmt() Stmt {
	start := p.curToken.Pos
	expr := p.ParseExpression()
	if expr == nil {
		return nil
	}
	if !p.expect(TokenSemicolon) {
		return nil
	}
	return &ExprStmt{SpanVal: p.spanFrom(start), Expr: expr}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression, including assignment.
func (p *Parser) ParseExpression() Expr {
	return p.parseAssignment()
}

// parseAssignment parses target = value. Assignment is right-associative;
// the compiler decides whether the target is assignable.
func (p *Parser) parseAssignment() Expr {
	start := p.curToken.Pos
	target := p.parseEquality()
	if target == nil {
		return nil
	}
	if !p.curTokenIs(TokenEqual) {
		return target
	}
	p.nextToken() // consume =
	value := p.parseAssignment()
	if value == nil {
		return nil
	}
	return &Set{SpanVal: p.spanFrom(start), Target: target, Value: value}
}

var binaryOps = map[TokenType]BinaryOp{
	TokenPlus:         BinaryPlus,
	TokenMinus:        BinaryMinus,
	TokenStar:         BinaryStar,
	TokenSlash:        BinarySlash,
	TokenGreater:      BinaryGreater,
	TokenGreaterEqual: BinaryGreaterEqual,
	TokenLess:         BinaryLess,
	TokenLessEqual:    BinaryLessEqual,
	TokenEqualEqual:   BinaryEqualEqual,
	TokenBangEqual:    BinaryBangEqual,
}

// parseBinaryLevel parses a left-associative chain of the given operators.
func (p *Parser) parseBinaryLevel(next func() Expr, ops ...TokenType) Expr {
	start := p.curToken.Pos
	left := next()
	for left != nil {
		matched := false
		for _, t := range ops {
			if p.curTokenIs(t) {
				matched = true
				break
			}
		}
		if !matched {
			return left
		}
		op := binaryOps[p.curToken.Type]
		p.nextToken()
		right := next()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{SpanVal: p.spanFrom(start), Left: left, Op: op, Right: right}
	}
	return left
}

func (p *Parser) parseEquality() Expr {
	return p.parseBinaryLevel(p.parseComparison, TokenEqualEqual, TokenBangEqual)
}

func (p *Parser) parseComparison() Expr {
	return p.parseBinaryLevel(p.parseTerm, TokenGreater, TokenGreaterEqual, TokenLess, TokenLessEqual)
}

func (p *Parser) parseTerm() Expr {
	return p.parseBinaryLevel(p.parseFactor, TokenPlus, TokenMinus)
}

func (p *Parser) parseFactor() Expr {
	return p.parseBinaryLevel(p.parseUnary, TokenStar, TokenSlash)
}

func (p *Parser) parseUnary() Expr {
	start := p.curToken.Pos
	var op UnaryOp
	switch p.curToken.Type {
	case TokenMinus:
		op = UnaryMinus
	case TokenBang:
		op = UnaryBang
	default:
		return p.parsePostfix()
	}
	p.nextToken()
	operand := p.parseUnary()
	if operand == nil {
		return nil
	}
	return &UnaryExpr{SpanVal: p.spanFrom(start), Op: op, Operand: operand}
}

// parsePostfix parses calls, t.name, and t[key] after a primary.
func (p *Parser) parsePostfix() Expr {
	start := p.curToken.Pos
	expr := p.parsePrimary()
	for expr != nil {
		switch p.curToken.Type {
		case TokenLParen:
			p.nextToken()
			args, ok := p.parseExprList(TokenRParen)
			if !ok {
				return nil
			}
			expr = &Call{SpanVal: p.spanFrom(start), Callee: expr, Args: args}
		case TokenDot:
			p.nextToken()
			if !p.curTokenIs(TokenIdentifier) {
				p.errorf("expected field name after '.', got %s", p.curToken)
				return nil
			}
			field := p.curToken.Literal
			p.nextToken()
			expr = &SelfAccess{SpanVal: p.spanFrom(start), Table: expr, Field: field}
		case TokenLBracket:
			p.nextToken()
			key := p.ParseExpression()
			if key == nil || !p.expect(TokenRBracket) {
				return nil
			}
			expr = &Access{SpanVal: p.spanFrom(start), Table: expr, Field: key}
		default:
			return expr
		}
	}
	return nil
}

// parseExprList parses comma-separated expressions up to and including the
// closing token. A trailing comma is allowed.
func (p *Parser) parseExprList(closing TokenType) ([]Expr, bool) {
	var list []Expr
	for !p.curTokenIs(closing) {
		e := p.ParseExpression()
		if e == nil {
			return nil, false
		}
		list = append(list, e)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(closing) {
		return nil, false
	}
	return list, true
}

func (p *Parser) parsePrimary() Expr {
	start := p.curToken.Pos
	tok := p.curToken

	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf("invalid number %q", tok.Literal)
			return nil
		}
		return &NumberLiteral{SpanVal: p.spanFrom(start), Value: f}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: p.spanFrom(start), Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.spanFrom(start), Value: tok.Type == TokenTrue}
	case TokenNil:
		p.nextToken()
		return &NilLiteral{SpanVal: p.spanFrom(start)}
	case TokenIdentifier:
		p.nextToken()
		return &Identifier{SpanVal: p.spanFrom(start), Name: tok.Literal}
	case TokenLParen:
		return p.parseParen()
	case TokenFn:
		p.nextToken()
		return p.parseFunctionRest(start)
	case TokenLBrace:
		return p.parseTable()
	case TokenLBracket:
		p.nextToken()
		values, ok := p.parseExprList(TokenRBracket)
		if !ok {
			return nil
		}
		return &TableInit{SpanVal: p.spanFrom(start), Values: values}
	case TokenIf:
		return p.parseIfExpr()
	}

	p.errorf("unexpected %s", tok)
	return nil
}

// parseParen parses (), (e), and (a, b, ...).
func (p *Parser) parseParen() Expr {
	start := p.curToken.Pos
	p.nextToken() // consume (

	if p.curTokenIs(TokenRParen) {
		p.nextToken()
		return &UnitLiteral{SpanVal: p.spanFrom(start)}
	}

	first := p.ParseExpression()
	if first == nil {
		return nil
	}
	if p.curTokenIs(TokenRParen) {
		p.nextToken()
		return &Grouping{SpanVal: p.spanFrom(start), Inner: first}
	}
	if !p.expect(TokenComma) {
		return nil
	}
	rest, ok := p.parseExprList(TokenRParen)
	if !ok {
		return nil
	}
	return &TupleExpr{SpanVal: p.spanFrom(start), Elements: append([]Expr{first}, rest...)}
}

// parseFunctionRest parses (params) { body } after fn.
func (p *Parser) parseFunctionRest(start Position) Expr {
	if !p.expect(TokenLParen) {
		return nil
	}
	var params []string
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.curToken)
			return nil
		}
		params = append(params, p.curToken.Literal)
		p.nextToken()
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(TokenRParen) {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &FunctionExpr{SpanVal: p.spanFrom(start), Params: params, Body: body.Body}
}

// parseTable parses { key: value, ... }. A bare identifier key is a string.
func (p *Parser) parseTable() Expr {
	start := p.curToken.Pos
	p.nextToken() // consume {

	t := &TableInit{Keys: []Expr{}}
	for !p.curTokenIs(TokenRBrace) {
		var key Expr
		if p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenColon) {
			key = &StringLiteral{SpanVal: MakeSpan(p.curToken.Pos, p.curToken.Pos), Value: p.curToken.Literal}
			p.nextToken()
		} else if key = p.ParseExpression(); key == nil {
			return nil
		}
		if !p.expect(TokenColon) {
			return nil
		}
		value := p.ParseExpression()
		if value == nil {
			return nil
		}
		t.Keys = append(t.Keys, key)
		t.Values = append(t.Values, value)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(TokenRBrace) {
		return nil
	}
	t.SpanVal = p.spanFrom(start)
	return t
}

// parseIfExpr parses if in expression position. The compiler has no lowering
// for it; it is parsed so the error names the construct.
func (p *Parser) parseIfExpr() Expr {
	start := p.curToken.Pos
	p.nextToken() // consume if

	cond := p.ParseExpression()
	if cond == nil {
		return nil
	}
	then := p.parseBlock()
	if then == nil {
		return nil
	}
	e := &IfExpr{Condition: cond, Then: &BlockExpr{SpanVal: then.SpanVal, Body: then.Body}}
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenIf) {
			e.Else = p.parseIfExpr()
		} else if block := p.parseBlock(); block != nil {
			e.Else = &BlockExpr{SpanVal: block.SpanVal, Body: block.Body}
		}
		if e.Else == nil {
			return nil
		}
	}
	e.SpanVal = p.spanFrom(start)
	return e
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Parse parses a complete program.
func Parse(source string) ([]Stmt, error) {
	p := NewParser(source)
	stmts := p.ParseProgram()
	if len(p.errors) > 0 {
		return nil, &ParseError{Messages: p.errors}
	}
	return stmts, nil
}

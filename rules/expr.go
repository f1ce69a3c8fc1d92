package rules

import (
	"fmt"
	"strconv"
	"strings"

	"mockbase/models"
)

// Expr is a compiled boolean rule expression. Rule strings are compiled
// once at configuration load; evaluation never executes arbitrary code.
//
// Grammar:
//
//	expr       = or
//	or         = and { "||" and }
//	and        = unary { "&&" unary }
//	unary      = "!" unary | comparison
//	comparison = operand [ ("==" | "!=" | "<" | "<=" | ">" | ">=") operand ]
//	operand    = "(" expr ")" | literal | reference | call
//	reference  = ("user" | "data") "." ident { "." ident }
//	call       = "isOwner" "(" "user" "," "data" ")"
//
// Literals are JSON scalars: numbers, double-quoted strings, true, false,
// null.
type Expr interface {
	eval(env *env) any
}

type env struct {
	user models.Record
	data models.Record
}

// Eval evaluates the expression against the request's user and record
// bindings and reports whether it holds. Non-boolean results are truthy
// unless nil or false.
func Eval(e Expr, user, data models.Record) bool {
	return truthy(e.eval(&env{user: user, data: data}))
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	}
	return true
}

type literal struct{ value any }

func (l literal) eval(*env) any { return l.value }

// reference resolves user.<path> or data.<path> against the bound records.
type reference struct {
	root string
	path []string
}

func (r reference) eval(e *env) any {
	var record models.Record
	if r.root == "user" {
		record = e.user
	} else {
		record = e.data
	}
	var current any = record
	for _, field := range r.path {
		m, ok := current.(models.Record)
		if !ok {
			if mm, isMap := current.(map[string]any); isMap {
				m = models.Record(mm)
			} else {
				return nil
			}
		}
		current = m[field]
	}
	return current
}

type ownerCall struct{}

func (ownerCall) eval(e *env) any {
	return e.user.ID() != "" && e.user.ID() == e.data.OwnerID()
}

type notExpr struct{ inner Expr }

func (n notExpr) eval(e *env) any { return !truthy(n.inner.eval(e)) }

type binaryExpr struct {
	op          string
	left, right Expr
}

func (b binaryExpr) eval(e *env) any {
	switch b.op {
	case "&&":
		return truthy(b.left.eval(e)) && truthy(b.right.eval(e))
	case "||":
		return truthy(b.left.eval(e)) || truthy(b.right.eval(e))
	}

	left, right := b.left.eval(e), b.right.eval(e)
	switch b.op {
	case "==":
		return looseEqual(left, right)
	case "!=":
		return !looseEqual(left, right)
	}
	if lf, lok := asNumber(left); lok {
		if rf, rok := asNumber(right); rok {
			return ordered(lf, rf, b.op)
		}
	}
	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			return ordered(ls, rs, b.op)
		}
	}
	return false
}

func looseEqual(a, b any) bool {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af == bf
		}
	}
	return a == b
}

func ordered[T float64 | string](a, b T, op string) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// CompileExpr parses a rule expression string into a sealed AST.
func CompileExpr(src string) (Expr, error) {
	p := &parser{tokens: tokenize(src), src: src}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("invalid rule expression %q: unexpected %q", src, p.peek())
	}
	return e, nil
}

type parser struct {
	tokens []string
	pos    int
	src    string
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(token string) error {
	if p.peek() != token {
		return fmt.Errorf("invalid rule expression %q: expected %q, got %q", p.src, token, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek() == "!" {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if comparisonOps[p.peek()] {
		op := p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return binaryExpr{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOperand() (Expr, error) {
	token := p.peek()
	switch {
	case token == "(":
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case token == "true":
		p.next()
		return literal{value: true}, nil
	case token == "false":
		p.next()
		return literal{value: false}, nil
	case token == "null":
		p.next()
		return literal{value: nil}, nil
	case token == "isOwner":
		p.next()
		for _, expected := range []string{"(", "user", ",", "data", ")"} {
			if err := p.expect(expected); err != nil {
				return nil, err
			}
		}
		return ownerCall{}, nil
	case token == "user" || token == "data":
		return p.parseReference()
	case len(token) > 0 && token[0] == '"':
		p.next()
		s, err := strconv.Unquote(token)
		if err != nil {
			return nil, fmt.Errorf("invalid rule expression %q: bad string %s", p.src, token)
		}
		return literal{value: s}, nil
	default:
		if f, err := strconv.ParseFloat(token, 64); err == nil {
			p.next()
			return literal{value: f}, nil
		}
	}
	return nil, fmt.Errorf("invalid rule expression %q: unexpected %q", p.src, token)
}

func (p *parser) parseReference() (Expr, error) {
	root := p.next()
	path := []string{}
	for p.peek() == "." {
		p.next()
		field := p.next()
		if !isIdent(field) {
			return nil, fmt.Errorf("invalid rule expression %q: bad field %q", p.src, field)
		}
		path = append(path, field)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("invalid rule expression %q: %s needs a field access", p.src, root)
	}
	return reference{root: root, path: path}, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !alpha && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func tokenize(src string) []string {
	tokens := []string{}
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(src) {
				j++
			}
			tokens = append(tokens, src[i:j])
			i = j
		case strings.ContainsRune("()!,.<>=&|", rune(c)):
			two := ""
			if i+1 < len(src) {
				two = src[i : i+2]
			}
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				tokens = append(tokens, two)
				i += 2
			default:
				tokens = append(tokens, string(c))
				i++
			}
		case c >= '0' && c <= '9', c == '-':
			j := i + 1
			dotted := false
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.' && !dotted) {
				if src[j] == '.' {
					dotted = true
				}
				j++
			}
			tokens = append(tokens, src[i:j])
			i = j
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t()!,.<>=&|\"", rune(src[j])) {
				j++
			}
			tokens = append(tokens, src[i:j])
			i = j
		}
	}
	return tokens
}

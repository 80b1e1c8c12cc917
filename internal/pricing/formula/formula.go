// Package formula evaluates dynamic price formulas.
//
// The grammar is deliberately tiny:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = [ "+" | "-" ] unary | factor
//	factor = number | identifier | "(" expr ")"
//
// Identifiers resolve only against the bindings handed to Evaluate.
package formula

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEvaluation is the root of every parse or evaluation failure.
var ErrEvaluation = errors.New("formula_evaluation_failed")

const (
	maxDepth          = 64
	msgDivByZero      = "division by zero"
	msgConstDivByZero = "division by constant zero"
)

// Variables are the names a formula may reference.
var Variables = []string{"weight", "rate", "baseValue", "makingCharges"}

type Bindings map[string]float64

type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula: %s at position %d", e.Msg, e.Pos)
}

func (e *Error) Unwrap() error { return ErrEvaluation }

// Evaluate parses and evaluates expr in a single pass. Only identifiers that
// appear in both Variables and vars are accepted. Division by an exact zero
// is an error; any other non-finite result is returned as is.
func Evaluate(expr string, vars Bindings) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, &Error{Pos: 0, Msg: "empty formula"}
	}
	toks, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	p := &parser{toks: toks, vars: vars}
	v, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return 0, &Error{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
	return v, nil
}

// Validate checks syntax and identifiers without needing real values.
func Validate(expr string) error {
	vars := make(Bindings, len(Variables))
	for _, name := range Variables {
		vars[name] = 1
	}
	_, err := Evaluate(expr, vars)
	var fe *Error
	if errors.As(err, &fe) && fe.Msg == msgDivByZero {
		// value-dependent zero divisors only fail at evaluation time
		return nil
	}
	return err
}

type parser struct {
	toks []token
	pos  int
	vars Bindings
	// identifiers read so far; unchanged across an operand means it is constant
	refs int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expr(depth int) (float64, error) {
	left, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.term(depth)
		if err != nil {
			return 0, err
		}
		if tok.text == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term(depth int) (float64, error) {
	left, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.next()
		refs := p.refs
		right, err := p.unary(depth)
		if err != nil {
			return 0, err
		}
		if tok.text == "*" {
			left *= right
			continue
		}
		if right == 0 {
			if p.refs == refs {
				return 0, &Error{Pos: tok.pos, Msg: msgConstDivByZero}
			}
			return 0, &Error{Pos: tok.pos, Msg: msgDivByZero}
		}
		left /= right
	}
}

func (p *parser) unary(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, &Error{Pos: p.peek().pos, Msg: "expression nested too deeply"}
	}
	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "-" || tok.text == "+") {
		p.next()
		v, err := p.unary(depth + 1)
		if err != nil {
			return 0, err
		}
		if tok.text == "-" {
			return -v, nil
		}
		return v, nil
	}
	return p.factor(depth)
}

func (p *parser) factor(depth int) (float64, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return tok.num, nil
	case tokIdent:
		if !allowed(tok.text) {
			return 0, &Error{Pos: tok.pos, Msg: fmt.Sprintf("unknown identifier %q", tok.text)}
		}
		v, ok := p.vars[tok.text]
		if !ok {
			return 0, &Error{Pos: tok.pos, Msg: fmt.Sprintf("unbound identifier %q", tok.text)}
		}
		p.refs++
		return v, nil
	case tokLParen:
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return 0, &Error{Pos: closing.pos, Msg: "missing closing parenthesis"}
		}
		return v, nil
	case tokEOF:
		return 0, &Error{Pos: tok.pos, Msg: "unexpected end of formula"}
	default:
		return 0, &Error{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
}

func allowed(name string) bool {
	for _, v := range Variables {
		if v == name {
			return true
		}
	}
	return false
}

// Package paramexpr evaluates Aurora parameter-group formulas such as
// LEAST({DBInstanceClassMemory/9531392},5000).
//
// Grammar:
//
//	expr   := number | '{' term '}' | func '(' expr ',' expr ')'
//	func   := SUM | LEAST | GREATEST
//	term   := factor (('*' | '/') factor)*
//	factor := number | DBInstanceClassMemory | log '(' term ')'
//
// log is base 2, as in the Aurora MySQL max_connections default.
package paramexpr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Variable is the only free variable a formula may reference.
const Variable = "DBInstanceClassMemory"

var (
	ErrSyntax         = errors.New("syntax error")
	ErrDivisionByZero = errors.New("division by zero")
	ErrLogDomain      = errors.New("log of non-positive value")
)

// IsFormula reports whether a parameter value needs evaluation rather than a plain parse.
func IsFormula(value string) bool {
	return strings.ContainsAny(value, "{(")
}

// Eval evaluates expr with DBInstanceClassMemory bound to memoryBytes.
func Eval(expr string, memoryBytes float64) (float64, error) {
	p := &parser{src: expr, memory: memoryBytes}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return v, nil
}

// Resolve returns a parameter value as a number, evaluating it when it is a formula.
func Resolve(value string, memoryBytes float64) (float64, error) {
	if !IsFormula(value) {
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrSyntax, value)
		}
		return v, nil
	}
	return Eval(value, memoryBytes)
}

type parser struct {
	src    string
	pos    int
	memory float64
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) expr() (float64, error) {
	c := p.peek()
	switch {
	case c == '{':
		p.pos++
		v, err := p.term()
		if err != nil {
			return 0, err
		}
		return v, p.expect('}')
	case isDigit(c):
		return p.number()
	case isLetter(c):
		return p.call()
	case c == 0:
		return 0, p.errorf("unexpected end of input")
	default:
		return 0, p.errorf("unexpected %q", c)
	}
}

func (p *parser) call() (float64, error) {
	name := p.ident()
	var fn func(a, b float64) float64
	switch name {
	case "SUM":
		fn = func(a, b float64) float64 { return a + b }
	case "LEAST":
		fn = func(a, b float64) float64 { return min(a, b) }
	case "GREATEST":
		fn = func(a, b float64) float64 { return max(a, b) }
	default:
		return 0, p.errorf("unknown function %q", name)
	}

	if err := p.expect('('); err != nil {
		return 0, err
	}
	a, err := p.expr()
	if err != nil {
		return 0, err
	}
	if err := p.expect(','); err != nil {
		return 0, err
	}
	b, err := p.expr()
	if err != nil {
		return 0, err
	}
	if err := p.expect(')'); err != nil {
		return 0, err
	}
	return fn(a, b), nil
}

func (p *parser) term() (float64, error) {
	v, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return v, nil
		}
		p.pos++
		rhs, err := p.factor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			v *= rhs
			continue
		}
		if rhs == 0 {
			return 0, ErrDivisionByZero
		}
		v /= rhs
	}
}

func (p *parser) factor() (float64, error) {
	c := p.peek()
	switch {
	case isDigit(c):
		return p.number()
	case isLetter(c):
		name := p.ident()
		if name == "log" {
			return p.log()
		}
		if name != Variable {
			return 0, p.errorf("unknown variable %q", name)
		}
		return p.memory, nil
	default:
		return 0, p.errorf("expected number or %s", Variable)
	}
}

func (p *parser) log() (float64, error) {
	if err := p.expect('('); err != nil {
		return 0, err
	}
	v, err := p.term()
	if err != nil {
		return 0, err
	}
	if err := p.expect(')'); err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: log(%g)", ErrLogDomain, v)
	}
	return math.Log2(v), nil
}

func (p *parser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, p.errorf("bad number %q", p.src[start:p.pos])
	}
	return v, nil
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isLetter(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' }

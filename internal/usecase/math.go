package usecase

import (
	"fmt"
	"math/big"
	"strings"
)

// fractionDigits is the precision of non-integer quotients.
const fractionDigits = 6

// arithmetic is a single "<integer> <op> <integer>" expression.
type arithmetic struct {
	left, right *big.Int
	op          byte
}

// parseArithmetic accepts exactly an integer, one of + - * /, an integer and
// an optional trailing "=", with optional spaces between tokens. Nothing
// else is ever evaluated.
func parseArithmetic(s string) (arithmetic, bool) {
	p := &scanner{src: s}
	p.skipSpace()
	left, ok := p.integer()
	if !ok {
		return arithmetic{}, false
	}
	p.skipSpace()
	op, ok := p.operator()
	if !ok {
		return arithmetic{}, false
	}
	p.skipSpace()
	right, ok := p.integer()
	if !ok {
		return arithmetic{}, false
	}
	p.skipSpace()
	p.accept('=')
	p.skipSpace()
	if !p.done() {
		return arithmetic{}, false
	}
	return arithmetic{left: left, right: right, op: op}, true
}

// eval computes the expression exactly. Division by zero returns
// ErrMathEvaluation.
func (a arithmetic) eval() (string, error) {
	switch a.op {
	case '+':
		return new(big.Int).Add(a.left, a.right).String(), nil
	case '-':
		return new(big.Int).Sub(a.left, a.right).String(), nil
	case '*':
		return new(big.Int).Mul(a.left, a.right).String(), nil
	case '/':
		if a.right.Sign() == 0 {
			return "", fmt.Errorf("%w: division by zero", ErrMathEvaluation)
		}
		q := new(big.Rat).SetFrac(a.left, a.right)
		if q.IsInt() {
			return q.Num().String(), nil
		}
		return strings.TrimRight(strings.TrimRight(q.FloatString(fractionDigits), "0"), "."), nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", ErrMathEvaluation, a.op)
	}
}

func (a arithmetic) String() string {
	return fmt.Sprintf("%s %c %s", a.left, a.op, a.right)
}

type scanner struct {
	src string
	pos int
}

func (p *scanner) done() bool { return p.pos >= len(p.src) }

func (p *scanner) skipSpace() {
	for !p.done() && strings.IndexByte(" \t\r\n\f\v", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *scanner) accept(b byte) bool {
	if !p.done() && p.src[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *scanner) operator() (byte, bool) {
	if p.done() || strings.IndexByte("+-*/", p.src[p.pos]) < 0 {
		return 0, false
	}
	op := p.src[p.pos]
	p.pos++
	return op, true
}

func (p *scanner) integer() (*big.Int, bool) {
	start := p.pos
	for !p.done() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return nil, false
	}
	n, ok := new(big.Int).SetString(p.src[start:p.pos], 10)
	return n, ok
}

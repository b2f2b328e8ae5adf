package visibility

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidExpression = errors.New("invalid visibility expression")

// Expression is a parsed visibility expression. The empty expression is
// public and visible to every set of labels.
type Expression interface {
	Evaluate(labels Labels) bool
	String() string
}

type public struct{}

func (public) Evaluate(Labels) bool { return true }
func (public) String() string       { return "" }

type label string

func (l label) Evaluate(labels Labels) bool { return labels.Contains(string(l)) }

func (l label) String() string {
	s := string(l)
	if strings.IndexFunc(s, func(r rune) bool { return !isLabelRune(r) }) >= 0 {
		return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
	}
	return s
}

type conjunction []Expression

func (c conjunction) Evaluate(labels Labels) bool {
	for _, e := range c {
		if !e.Evaluate(labels) {
			return false
		}
	}
	return true
}

func (c conjunction) String() string { return joinExpressions(c, "&") }

type disjunction []Expression

func (d disjunction) Evaluate(labels Labels) bool {
	for _, e := range d {
		if e.Evaluate(labels) {
			return true
		}
	}
	return false
}

func (d disjunction) String() string { return joinExpressions(d, "|") }

func joinExpressions(exprs []Expression, op string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		switch e.(type) {
		case conjunction, disjunction:
			parts[i] = "(" + e.String() + ")"
		default:
			parts[i] = e.String()
		}
	}
	return strings.Join(parts, op)
}

func isLabelRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("_-.:/", r)
}

// Parse parses a visibility expression. Labels are joined with '&' or '|'
// and grouped with parentheses; mixing operators at one level requires
// parentheses. Labels with other characters must be double quoted.
func Parse(expression string) (Expression, error) {
	if strings.TrimSpace(expression) == "" {
		return public{}, nil
	}
	p := &parser{input: expression}
	e, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.done() {
		return nil, p.errorf("unexpected %q", p.input[p.pos])
	}
	return e, nil
}

// MustParse is like Parse but panics on error.
func MustParse(expression string) Expression {
	e, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	input string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.input) }

func (p *parser) skipSpace() {
	for !p.done() && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in '%s'", ErrInvalidExpression, fmt.Sprintf(format, args...), p.pos, p.input)
}

func (p *parser) expression() (Expression, error) {
	first, err := p.term()
	if err != nil {
		return nil, err
	}
	terms := []Expression{first}
	var op byte
	for {
		p.skipSpace()
		if p.done() || p.input[p.pos] == ')' {
			break
		}
		c := p.input[p.pos]
		if c != '&' && c != '|' {
			return nil, p.errorf("expected operator, found %q", c)
		}
		if op != 0 && c != op {
			return nil, p.errorf("mixed operators without parentheses")
		}
		op = c
		p.pos++
		next, err := p.term()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}

	switch op {
	case '&':
		return conjunction(terms), nil
	case '|':
		return disjunction(terms), nil
	default:
		return first, nil
	}
}

func (p *parser) term() (Expression, error) {
	p.skipSpace()
	if p.done() {
		return nil, p.errorf("unexpected end of expression")
	}
	switch c := p.input[p.pos]; {
	case c == '(':
		p.pos++
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.done() || p.input[p.pos] != ')' {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return e, nil
	case c == '"':
		return p.quoted()
	default:
		start := p.pos
		for !p.done() && isLabelRune(rune(p.input[p.pos])) {
			p.pos++
		}
		if start == p.pos {
			return nil, p.errorf("unexpected %q", c)
		}
		return label(p.input[start:p.pos]), nil
	}
}

func (p *parser) quoted() (Expression, error) {
	p.pos++
	var b strings.Builder
	for !p.done() {
		c := p.input[p.pos]
		switch c {
		case '\\':
			if p.pos+1 >= len(p.input) {
				return nil, p.errorf("dangling escape")
			}
			next := p.input[p.pos+1]
			if next != '"' && next != '\\' {
				return nil, p.errorf("invalid escape %q", next)
			}
			b.WriteByte(next)
			p.pos += 2
		case '"':
			p.pos++
			if b.Len() == 0 {
				return nil, p.errorf("empty quoted label")
			}
			return label(b.String()), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return nil, p.errorf("unterminated quoted label")
}

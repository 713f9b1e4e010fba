package protocol

import (
	"fmt"
	"strings"

	"feedprobe/internal/feed"
)

// impossiblePrefix never matches a real package id. Adding a clause on it
// makes the filter non-trivial for servers that special-case simple queries.
const impossiblePrefix = "!IMPOSSIBLE!"

// SimpleFilter matches exactly one id/version pair
func SimpleFilter(id feed.Identity) string {
	return fmt.Sprintf("Id eq '%s' and Version eq '%s'", quoteLiteral(id.ID), quoteLiteral(id.Version))
}

// CustomFilter is SimpleFilter plus a clause that cannot change the result
func CustomFilter(id feed.Identity) string {
	return SimpleFilter(id) + fmt.Sprintf(" and not startswith(Id, '%s')", impossiblePrefix)
}

// Clause is a single parsed filter predicate
type Clause struct {
	Field  string // Id or Version
	Op     string // eq or startswith
	Negate bool
	Value  string
}

// ParseFilter parses the subset of OData $filter used by package lookups:
// "Field eq 'v'" and "[not] startswith(Field, 'v')" joined by "and".
func ParseFilter(s string) ([]Clause, error) {
	p := &filterParser{input: s}
	var clauses []Clause

	p.skipSpace()
	if p.done() {
		return nil, nil
	}

	for {
		c, err := p.clause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)

		p.skipSpace()
		if p.done() {
			return clauses, nil
		}
		if !p.keyword("and") {
			return nil, fmt.Errorf("expected 'and' at offset %d", p.pos)
		}
	}
}

type filterParser struct {
	input string
	pos   int
}

func (p *filterParser) done() bool { return p.pos >= len(p.input) }

func (p *filterParser) skipSpace() {
	for !p.done() && p.input[p.pos] == ' ' {
		p.pos++
	}
}

// keyword consumes a case-insensitive word followed by a non-identifier byte
func (p *filterParser) keyword(word string) bool {
	p.skipSpace()
	end := p.pos + len(word)
	if end > len(p.input) || !strings.EqualFold(p.input[p.pos:end], word) {
		return false
	}
	if end < len(p.input) && isIdent(p.input[end]) {
		return false
	}
	p.pos = end
	return true
}

func (p *filterParser) expect(b byte) error {
	p.skipSpace()
	if p.done() || p.input[p.pos] != b {
		return fmt.Errorf("expected %q at offset %d", b, p.pos)
	}
	p.pos++
	return nil
}

func (p *filterParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.done() && isIdent(p.input[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", fmt.Errorf("expected identifier at offset %d", start)
	}
	return p.input[start:p.pos], nil
}

func (p *filterParser) field() (string, error) {
	name, err := p.ident()
	if err != nil {
		return "", err
	}
	switch strings.ToLower(name) {
	case "id":
		return "Id", nil
	case "version", "normalizedversion":
		return "Version", nil
	}
	return "", fmt.Errorf("unsupported field %q", name)
}

// literal reads a quoted string, unescaping doubled quotes
func (p *filterParser) literal() (string, error) {
	if err := p.expect('\''); err != nil {
		return "", err
	}
	var b strings.Builder
	for !p.done() {
		c := p.input[p.pos]
		p.pos++
		if c != '\'' {
			b.WriteByte(c)
			continue
		}
		if !p.done() && p.input[p.pos] == '\'' {
			b.WriteByte('\'')
			p.pos++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unterminated string literal")
}

func (p *filterParser) clause() (Clause, error) {
	var c Clause
	if p.keyword("not") {
		c.Negate = true
	}

	if p.keyword("startswith") {
		c.Op = "startswith"
		if err := p.expect('('); err != nil {
			return c, err
		}
		field, err := p.field()
		if err != nil {
			return c, err
		}
		c.Field = field
		if err := p.expect(','); err != nil {
			return c, err
		}
		p.skipSpace()
		if c.Value, err = p.literal(); err != nil {
			return c, err
		}
		return c, p.expect(')')
	}

	field, err := p.field()
	if err != nil {
		return c, err
	}
	c.Field = field
	if !p.keyword("eq") {
		return c, fmt.Errorf("expected 'eq' at offset %d", p.pos)
	}
	c.Op = "eq"
	p.skipSpace()
	c.Value, err = p.literal()
	return c, err
}

func isIdent(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package condition

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse compiles a guard expression into an expression tree. An empty
// or all-whitespace expression is the default guard: success().
func Parse(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return &Outcome{Kind: OutcomeSuccess}, nil
	}

	tokens, err := lex(input)
	if err != nil {
		return nil, fmt.Errorf("parsing guard %q: %w", input, err)
	}

	parser := &parser{tokens: tokens}
	expr, err := parser.parseOr()
	if err != nil {
		return nil, fmt.Errorf("parsing guard %q: %w", input, err)
	}
	if !parser.atEnd() {
		return nil, fmt.Errorf("parsing guard %q: unexpected %q after expression", input, parser.peek().text)
	}
	return expr, nil
}

// MustParse is Parse for expressions known valid at compile time,
// panicking on error. Used for built-in guards like the scheduler's
// default success gate.
func MustParse(input string) Expr {
	expr, err := Parse(input)
	if err != nil {
		panic("condition: " + err.Error())
	}
	return expr
}

type tokenKind int

const (
	tokenWord   tokenKind = iota // bare identifier, possibly dotted
	tokenString                  // quoted literal, quotes removed
	tokenOp                      // == != && || ! ( ) [ ] ,
)

type token struct {
	kind tokenKind
	text string
}

// lex splits the input into tokens. Strings accept single or double
// quotes with no escape sequences. Guard literals are branch names,
// event types, and SHAs, none of which contain quotes.
func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string starting at offset %d", i)
			}
			tokens = append(tokens, token{kind: tokenString, text: string(runes[i+1 : j])})
			i = j + 1

		case r == '(' || r == ')' || r == '[' || r == ']' || r == ',':
			tokens = append(tokens, token{kind: tokenOp, text: string(r)})
			i++

		case r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokenOp, text: "!="})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokenOp, text: "!"})
				i++
			}

		case r == '=':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokenOp, text: "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("single '=' at offset %d (use '==')", i)
			}

		case r == '&':
			if i+1 < len(runes) && runes[i+1] == '&' {
				tokens = append(tokens, token{kind: tokenOp, text: "&&"})
				i += 2
			} else {
				return nil, fmt.Errorf("single '&' at offset %d (use '&&')", i)
			}

		case r == '|':
			if i+1 < len(runes) && runes[i+1] == '|' {
				tokens = append(tokens, token{kind: tokenOp, text: "||"})
				i += 2
			} else {
				return nil, fmt.Errorf("single '|' at offset %d (use '||')", i)
			}

		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '/' || r == '.':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) ||
				runes[j] == '_' || runes[j] == '-' || runes[j] == '/' || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokenWord, text: string(runes[i:j])})
			i = j

		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
		}
	}

	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.atEnd() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

// acceptOp consumes the next token if it is the given operator.
func (p *parser) acceptOp(text string) bool {
	if !p.atEnd() && p.tokens[p.pos].kind == tokenOp && p.tokens[p.pos].text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectOp(text string) error {
	if p.acceptOp(text) {
		return nil
	}
	if p.atEnd() {
		return fmt.Errorf("expected %q, got end of expression", text)
	}
	return fmt.Errorf("expected %q, got %q", text, p.peek().text)
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.acceptOp("!") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.acceptOp("(") {
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}

	if p.atEnd() {
		return nil, fmt.Errorf("expected expression, got end of input")
	}

	t := p.next()
	if t.kind != tokenWord {
		return nil, fmt.Errorf("expected field or predicate, got %q", t.text)
	}

	// Outcome predicates, with or without parentheses. Bare "always"
	// is common in hand-written guards.
	switch t.text {
	case "success", "failure", "always", "cancelled":
		if p.acceptOp("(") {
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
		} else if t.text != "always" {
			return nil, fmt.Errorf("predicate %q requires parentheses: %s()", t.text, t.text)
		}
		return &Outcome{Kind: OutcomeKind(t.text)}, nil
	case "true":
		return &Literal{Value: true}, nil
	case "false":
		return &Literal{Value: false}, nil
	}

	// Field comparison or membership.
	field := Field(t.text)
	switch field {
	case FieldEventType, FieldEventBranch, FieldEventSHA, FieldEventPR:
	default:
		return nil, fmt.Errorf("unknown field %q (want event.type, event.branch, event.sha, or event.pr)", t.text)
	}

	switch {
	case p.acceptOp("=="):
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &Compare{Field: field, Value: value}, nil

	case p.acceptOp("!="):
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &Compare{Field: field, Negate: true, Value: value}, nil

	case !p.atEnd() && p.peek().kind == tokenWord && p.peek().text == "in":
		p.next()
		if err := p.expectOp("["); err != nil {
			return nil, err
		}
		var values []string
		for {
			value, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			values = append(values, value)
			if p.acceptOp(",") {
				continue
			}
			break
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return &Membership{Field: field, Values: values}, nil

	default:
		if p.atEnd() {
			return nil, fmt.Errorf("field %s needs a comparison (==, !=, or in)", field)
		}
		return nil, fmt.Errorf("field %s needs a comparison (==, !=, or in), got %q", field, p.peek().text)
	}
}

// parseValue consumes a comparison value: a quoted string or a bare
// word.
func (p *parser) parseValue() (string, error) {
	if p.atEnd() {
		return "", fmt.Errorf("expected value, got end of expression")
	}
	t := p.next()
	if t.kind != tokenWord && t.kind != tokenString {
		return "", fmt.Errorf("expected value, got %q", t.text)
	}
	return t.text, nil
}

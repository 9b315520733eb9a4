package ddbstore

import (
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokValue
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isIdentByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func tokenize(input string) ([]token, error) {
	var toks []token
	for i := 0; i < len(input); {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '#' || c == ':':
			j := i + 1
			for j < len(input) && isIdentByte(input[j]) {
				j++
			}
			if j == i+1 {
				return nil, validationf("invalid expression: syntax error; token: %q, near: %q", string(c), near(input, i))
			}
			kind := tokName
			if c == ':' {
				kind = tokValue
			}
			toks = append(toks, token{kind: kind, text: input[i:j], pos: i})
			i = j
		case isDigit(c):
			j := i
			for j < len(input) && isDigit(input[j]) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: input[i:j], pos: i})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(input) && isIdentByte(input[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: input[i:j], pos: i})
			i = j
		case c == '<' || c == '>':
			text := string(c)
			if i+1 < len(input) && (input[i+1] == '=' || (c == '<' && input[i+1] == '>')) {
				text = input[i : i+2]
			}
			toks = append(toks, token{kind: tokPunct, text: text, pos: i})
			i += len(text)
		case strings.IndexByte("=,()[].+-", c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		default:
			return nil, validationf("invalid expression: syntax error; token: %q, near: %q", string(c), near(input, i))
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(input)}), nil
}

func near(input string, pos int) string {
	end := min(pos+10, len(input))
	return input[pos:end]
}

// exprParser holds the placeholder maps shared by the update and condition
// expressions of one request and records which placeholders were used.
type exprParser struct {
	input  string
	toks   []token
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue

	usedNames  map[string]bool
	usedValues map[string]bool
}

func newExprParser(names map[string]string, values map[string]types.AttributeValue) *exprParser {
	return &exprParser{
		names:      names,
		values:     values,
		usedNames:  map[string]bool{},
		usedValues: map[string]bool{},
	}
}

func (p *exprParser) reset(input string) error {
	toks, err := tokenize(input)
	if err != nil {
		return err
	}
	p.input, p.toks, p.pos = input, toks, 0
	return nil
}

func (p *exprParser) peek() token {
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *exprParser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (p *exprParser) expectPunct(text string) error {
	if !p.isPunct(text) {
		return p.syntaxError()
	}
	p.next()
	return nil
}

func (p *exprParser) syntaxError() error {
	t := p.peek()
	if t.kind == tokEOF {
		return validationf("invalid expression: syntax error; token: \"<EOF>\", near: %q", near(p.input, max(0, len(p.input)-10)))
	}
	return validationf("invalid expression: syntax error; token: %q, near: %q", t.text, near(p.input, t.pos))
}

var reservedWords = map[string]bool{
	"set": true, "remove": true, "add": true, "delete": true,
	"and": true, "or": true, "not": true, "between": true, "in": true,
}

// parsePath reads name ( '.' name | '[' n ']' )*.
func (p *exprParser) parsePath() (documentPath, error) {
	first, err := p.parsePathName()
	if err != nil {
		return nil, err
	}
	path := documentPath{first}
	for {
		switch {
		case p.isPunct("."):
			p.next()
			part, err := p.parsePathName()
			if err != nil {
				return nil, err
			}
			path = append(path, part)
		case p.isPunct("["):
			p.next()
			t := p.next()
			if t.kind != tokNumber {
				return nil, validationf("invalid expression: list index must be a number, near: %q", near(p.input, t.pos))
			}
			idx, err := strconv.Atoi(t.text)
			if err != nil {
				return nil, validationf("invalid expression: list index %q out of range", t.text)
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			path = append(path, pathPart{index: idx, isIndex: true})
		default:
			return path, nil
		}
	}
}

func (p *exprParser) parsePathName() (pathPart, error) {
	t := p.peek()
	switch t.kind {
	case tokName:
		p.next()
		name, ok := p.names[t.text]
		if !ok {
			return pathPart{}, validationf("an expression attribute name used in the document path is not defined; attribute name: %s", t.text)
		}
		p.usedNames[t.text] = true
		return pathPart{name: name}, nil
	case tokIdent:
		p.next()
		if reservedWords[strings.ToLower(t.text)] {
			return pathPart{}, validationf("attribute name is a reserved keyword; reserved keyword: %s", t.text)
		}
		return pathPart{name: t.text}, nil
	default:
		return pathPart{}, p.syntaxError()
	}
}

func (p *exprParser) resolveValue(t token) (types.AttributeValue, error) {
	av, ok := p.values[t.text]
	if !ok {
		return nil, validationf("an expression attribute value used in expression is not defined; attribute value: %s", t.text)
	}
	p.usedValues[t.text] = true
	return av, nil
}

// checkUnused fails when a placeholder was supplied but no expression used it.
func (p *exprParser) checkUnused() error {
	var unusedNames, unusedValues []string
	for k := range p.names {
		if !p.usedNames[k] {
			unusedNames = append(unusedNames, k)
		}
	}
	for k := range p.values {
		if !p.usedValues[k] {
			unusedValues = append(unusedValues, k)
		}
	}
	if len(unusedNames) > 0 {
		return validationf("value provided in ExpressionAttributeNames unused in expressions: keys: {%s}", joinSorted(unusedNames))
	}
	if len(unusedValues) > 0 {
		return validationf("value provided in ExpressionAttributeValues unused in expressions: keys: {%s}", joinSorted(unusedValues))
	}
	return nil
}

func joinSorted(keys []string) string {
	slices.Sort(keys)
	return strings.Join(keys, ", ")
}

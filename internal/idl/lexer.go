package idl

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// ParseError reports malformed WebIDL text. It is scoped to one file.
type ParseError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

type lexer struct {
	file string
	src  []byte
	off  int
	line int
	col  int
}

func tokenize(file string, src []byte) ([]token, error) {
	lx := &lexer{file: file, src: src, line: 1, col: 1}
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) errorf(format string, args ...any) error {
	return &ParseError{File: lx.file, Line: lx.line, Column: lx.col, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) peek(n int) byte {
	if lx.off+n >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off+n]
}

func (lx *lexer) advance() {
	if lx.src[lx.off] == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	lx.off++
}

func (lx *lexer) skipSpaceAndComments() error {
	for lx.off < len(lx.src) {
		c := lx.src[lx.off]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			lx.advance()
		case c == '/' && lx.peek(1) == '/':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance()
			}
		case c == '/' && lx.peek(1) == '*':
			lx.advance()
			lx.advance()
			for {
				if lx.off >= len(lx.src) {
					return lx.errorf("unterminated comment")
				}
				if lx.src[lx.off] == '*' && lx.peek(1) == '/' {
					lx.advance()
					lx.advance()
					break
				}
				lx.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (lx *lexer) next() (token, error) {
	if err := lx.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	if lx.off >= len(lx.src) {
		return token{kind: tokEOF, line: lx.line, col: lx.col}, nil
	}

	start, line, col := lx.off, lx.line, lx.col
	c := lx.src[lx.off]
	emit := func(kind tokenKind) token {
		return token{kind: kind, text: string(lx.src[start:lx.off]), line: line, col: col}
	}

	switch {
	case c == '"':
		lx.advance()
		for {
			if lx.off >= len(lx.src) || lx.src[lx.off] == '\n' {
				return token{}, &ParseError{File: lx.file, Line: line, Column: col, Msg: "unterminated string"}
			}
			if lx.src[lx.off] == '"' {
				lx.advance()
				return emit(tokString), nil
			}
			lx.advance()
		}
	case c == '.' && lx.peek(1) == '.' && lx.peek(2) == '.':
		lx.advance()
		lx.advance()
		lx.advance()
		return emit(tokPunct), nil
	case isDigit(c) || (c == '-' && (isDigit(lx.peek(1)) || lx.peek(1) == '.')) || (c == '.' && isDigit(lx.peek(1))):
		lx.advance()
		for lx.off < len(lx.src) {
			d := lx.src[lx.off]
			if isDigit(d) || d == '.' || d == 'x' || d == 'X' || (d >= 'a' && d <= 'f') || (d >= 'A' && d <= 'F') {
				lx.advance()
				continue
			}
			if (d == '+' || d == '-') && (lx.src[lx.off-1] == 'e' || lx.src[lx.off-1] == 'E') {
				lx.advance()
				continue
			}
			break
		}
		return emit(tokNumber), nil
	case c == '-' && lx.peek(1) == 'I':
		// -Infinity
		lx.advance()
		for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
			lx.advance()
		}
		return emit(tokNumber), nil
	case isIdentStart(c):
		for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
			lx.advance()
		}
		return emit(tokIdent), nil
	case strings.IndexByte("()[]{}<>,;=?:*.-", c) >= 0:
		lx.advance()
		return emit(tokPunct), nil
	}
	return token{}, lx.errorf("unexpected character %q", c)
}

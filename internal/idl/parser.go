package idl

import (
	"fmt"
	"strings"
)

// Parse parses one WebIDL file into its definitions in source order.
func Parse(file string, src []byte) ([]Definition, error) {
	toks, err := tokenize(file, src)
	if err != nil {
		return nil, err
	}
	p := &parser{file: file, toks: toks}
	var defs []Definition
	for !p.at(tokEOF, "") {
		def, err := p.parseDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

type parser struct {
	file string
	toks []token
	pos  int
}

func (p *parser) cur() token {
	return p.toks[p.pos]
}

func (p *parser) lookahead(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

// at reports whether the current token has the given kind and, if text is
// non-empty, the given text.
func (p *parser) at(kind tokenKind, text string) bool {
	t := p.cur()
	return t.kind == kind && (text == "" || t.text == text)
}

func (p *parser) atWord(word string) bool {
	return p.at(tokIdent, word)
}

func (p *parser) atPunct(s string) bool {
	return p.at(tokPunct, s)
}

func (p *parser) bump() token {
	t := p.cur()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) position(t token) Position {
	return Position{File: p.file, Line: t.line, Column: t.col}
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &ParseError{File: p.file, Line: t.line, Column: t.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return p.errorf(p.cur(), "expected %q, found %s", s, describe(p.cur()))
	}
	p.bump()
	return nil
}

func (p *parser) expectIdent() (token, error) {
	if !p.at(tokIdent, "") {
		return token{}, p.errorf(p.cur(), "expected identifier, found %s", describe(p.cur()))
	}
	return p.bump(), nil
}

func describe(t token) string {
	if t.kind == tokEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", t.text)
}

func (p *parser) parseDefinition() (Definition, error) {
	ext, err := p.parseExtAttrs()
	if err != nil {
		return nil, err
	}

	start := p.cur()
	partial := false
	if p.atWord("partial") {
		partial = true
		p.bump()
	}

	switch {
	case p.atWord("callback"):
		if partial {
			return nil, p.errorf(start, "callbacks cannot be partial")
		}
		p.bump()
		if p.atWord("interface") {
			p.bump()
			c, _, err := p.parseContainer(start, ext, false, false)
			if err != nil {
				return nil, err
			}
			return &Interface{Container: *c, Callback: true}, nil
		}
		return p.parseCallback(start)
	case p.atWord("interface"):
		p.bump()
		if p.atWord("mixin") {
			p.bump()
			c, _, err := p.parseContainer(start, ext, partial, false)
			if err != nil {
				return nil, err
			}
			return &Mixin{Container: *c}, nil
		}
		c, inherits, err := p.parseContainer(start, ext, partial, true)
		if err != nil {
			return nil, err
		}
		return &Interface{Container: *c, Inherits: inherits}, nil
	case p.atWord("dictionary"):
		p.bump()
		c, inherits, err := p.parseContainer(start, ext, partial, true)
		if err != nil {
			return nil, err
		}
		return &Dictionary{Container: *c, Inherits: inherits}, nil
	case p.atWord("namespace"):
		p.bump()
		c, _, err := p.parseContainer(start, ext, partial, false)
		if err != nil {
			return nil, err
		}
		return &Namespace{Container: *c}, nil
	case partial:
		return nil, p.errorf(p.cur(), "expected interface, dictionary or namespace after partial, found %s", describe(p.cur()))
	case p.atWord("enum"):
		p.bump()
		return p.parseEnum(start, ext)
	case p.atWord("typedef"):
		p.bump()
		return p.parseTypedef(start)
	case p.at(tokIdent, "") && p.lookahead(1).kind == tokIdent && p.lookahead(1).text == "includes":
		target := p.bump()
		p.bump()
		mixin, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return &Includes{Target: target.text, Mixin: mixin.text, Position: p.position(start)}, nil
	}
	return nil, p.errorf(p.cur(), "unexpected %s at top level", describe(p.cur()))
}

// parseContainer parses "Name [: Parent] { members };" and returns the body
// and the inherited name.
func (p *parser) parseContainer(start token, ext ExtAttrs, partial, allowInherits bool) (*Container, string, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, "", err
	}
	inherits := ""
	if p.atPunct(":") {
		if !allowInherits || partial {
			return nil, "", p.errorf(p.cur(), "%s cannot declare inheritance here", name.text)
		}
		p.bump()
		parent, err := p.expectIdent()
		if err != nil {
			return nil, "", err
		}
		inherits = parent.text
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, "", err
	}

	c := &Container{Name: name.text, Partial: partial, ExtAttrs: ext, Position: p.position(start), Members: []Member{}}
	for !p.atPunct("}") {
		if p.at(tokEOF, "") {
			return nil, "", p.errorf(p.cur(), "unterminated body of %s", name.text)
		}
		m, err := p.parseMember()
		if err != nil {
			return nil, "", err
		}
		c.Members = append(c.Members, m)
	}
	p.bump()
	if err := p.expectPunct(";"); err != nil {
		return nil, "", err
	}
	return c, inherits, nil
}

func (p *parser) parseEnum(start token, ext ExtAttrs) (Definition, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	e := &Enum{Name: name.text, ExtAttrs: ext, Position: p.position(start)}
	for !p.atPunct("}") {
		if !p.at(tokString, "") {
			return nil, p.errorf(p.cur(), "expected enum value string, found %s", describe(p.cur()))
		}
		e.Values = append(e.Values, strings.Trim(p.bump().text, `"`))
		if p.atPunct(",") {
			p.bump()
		}
	}
	p.bump()
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) parseTypedef(start token) (Definition, error) {
	toks, err := p.collectUntilSemicolon()
	if err != nil {
		return nil, err
	}
	if len(toks) < 2 || toks[len(toks)-1].kind != tokIdent {
		return nil, p.errorf(start, "malformed typedef")
	}
	return &Typedef{
		Name:     toks[len(toks)-1].text,
		Type:     joinTokens(toks[:len(toks)-1]),
		Position: p.position(start),
	}, nil
}

func (p *parser) parseCallback(start token) (Definition, error) {
	toks, err := p.collectUntilSemicolon()
	if err != nil {
		return nil, err
	}
	if len(toks) < 3 || toks[0].kind != tokIdent || toks[1].text != "=" {
		return nil, p.errorf(start, "malformed callback")
	}
	return &Callback{Name: toks[0].text, Text: joinTokens(toks[2:]), Position: p.position(start)}, nil
}

// parseExtAttrs parses an optional [..] list.
func (p *parser) parseExtAttrs() (ExtAttrs, error) {
	if !p.atPunct("[") {
		return nil, nil
	}
	open := p.bump()
	var out ExtAttrs
	for {
		if p.at(tokEOF, "") {
			return nil, p.errorf(open, "unterminated extended attribute list")
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		attr := ExtAttr{Name: name.text}
		var value []token
		depth := 0
		for {
			t := p.cur()
			if t.kind == tokEOF {
				return nil, p.errorf(open, "unterminated extended attribute list")
			}
			if depth == 0 && t.kind == tokPunct && (t.text == "," || t.text == "]") {
				break
			}
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			}
			value = append(value, p.bump())
		}
		if len(value) > 0 && value[0].text == "=" {
			value = value[1:]
		}
		attr.Value = joinCompact(value)
		out = append(out, attr)
		if p.atPunct("]") {
			p.bump()
			return out, nil
		}
		p.bump()
	}
}

// collectUntilSemicolon returns the tokens up to the next top-level ';' and
// consumes the ';'.
func (p *parser) collectUntilSemicolon() ([]token, error) {
	var toks []token
	depth := 0
	for {
		t := p.cur()
		switch {
		case t.kind == tokEOF:
			return nil, p.errorf(t, "expected \";\", found end of file")
		case t.kind == tokPunct && t.text == ";" && depth == 0:
			p.bump()
			return toks, nil
		case t.kind == tokPunct && (t.text == "(" || t.text == "[" || t.text == "{" || t.text == "<"):
			depth++
		case t.kind == tokPunct && (t.text == ")" || t.text == "]" || t.text == "}" || t.text == ">"):
			if depth == 0 {
				return nil, p.errorf(t, "unbalanced %q", t.text)
			}
			depth--
		}
		toks = append(toks, p.bump())
	}
}

var memberModifiers = map[string]bool{
	"static":      true,
	"readonly":    true,
	"inherit":     true,
	"required":    true,
	"stringifier": true,
	"getter":      true,
	"setter":      true,
	"deleter":     true,
	"async":       true,
}

func (p *parser) parseMember() (Member, error) {
	ext, err := p.parseExtAttrs()
	if err != nil {
		return Member{}, err
	}
	start := p.cur()
	toks, err := p.collectUntilSemicolon()
	if err != nil {
		return Member{}, err
	}
	if len(toks) == 0 {
		return Member{}, p.errorf(start, "empty member declaration")
	}

	m := Member{ExtAttrs: ext, Position: p.position(start), Text: strings.TrimSpace(ext.String() + " " + joinTokens(toks))}

	if toks[0].text == "const" {
		eq := indexOf(toks, "=")
		if eq < 3 {
			return Member{}, p.errorf(start, "malformed constant")
		}
		m.Kind = MemberConstant
		m.Name = toks[eq-1].text
		m.Type = joinTokens(toks[1 : eq-1])
		return m, nil
	}
	if toks[0].text == "constructor" && len(toks) > 1 && toks[1].text == "(" {
		m.Kind = MemberConstructor
		m.Args = joinTokens(toks[2 : len(toks)-1])
		return m, nil
	}

	i := 0
	for i < len(toks) && toks[i].kind == tokIdent && memberModifiers[toks[i].text] {
		switch toks[i].text {
		case "static":
			m.Static = true
		case "readonly":
			m.Readonly = true
		case "required":
			m.Required = true
		case "getter", "setter", "deleter":
			m.Special = toks[i].text
		case "stringifier":
			m.Special = "stringifier"
		case "async":
			m.Special = "async"
		}
		i++
	}
	rest := toks[i:]

	if len(rest) == 0 {
		if m.Special == "stringifier" {
			m.Kind = MemberStringifier
			return m, nil
		}
		return Member{}, p.errorf(start, "member has no declaration after modifiers")
	}

	switch rest[0].text {
	case "iterable":
		m.Kind = MemberIterable
		if m.Special == "async" {
			m.Kind = MemberAsyncIterable
		}
		m.Type = joinTokens(rest[1:])
		return m, nil
	case "maplike":
		m.Kind = MemberMaplike
		m.Type = joinTokens(rest[1:])
		return m, nil
	case "setlike":
		m.Kind = MemberSetlike
		m.Type = joinTokens(rest[1:])
		return m, nil
	case "attribute":
		if len(rest) < 3 || rest[len(rest)-1].kind != tokIdent {
			return Member{}, p.errorf(start, "malformed attribute")
		}
		m.Kind = MemberAttribute
		m.Name = rest[len(rest)-1].text
		m.Type = joinTokens(rest[1 : len(rest)-1])
		return m, nil
	}

	if rest[len(rest)-1].text == ")" {
		paren := openingParen(rest)
		if paren < 0 {
			return Member{}, p.errorf(start, "malformed operation")
		}
		m.Kind = MemberOperation
		m.Args = joinTokens(rest[paren+1 : len(rest)-1])
		head := rest[:paren]
		if len(head) == 0 {
			return Member{}, p.errorf(start, "operation without return type")
		}
		if m.Special != "" && m.Special != "async" && unnamedSpecial(head) {
			m.Type = joinTokens(head)
			return m, nil
		}
		if len(head) < 2 || head[len(head)-1].kind != tokIdent {
			return Member{}, p.errorf(start, "operation without name")
		}
		m.Name = head[len(head)-1].text
		m.Type = joinTokens(head[:len(head)-1])
		return m, nil
	}

	// Dictionary field or namespace-less declaration: Type name [= default]
	nameAt := len(rest) - 1
	if eq := indexOf(rest, "="); eq >= 0 {
		nameAt = eq - 1
	}
	if nameAt < 1 || rest[nameAt].kind != tokIdent {
		return Member{}, p.errorf(start, "malformed member")
	}
	m.Kind = MemberField
	m.Name = rest[nameAt].text
	m.Type = joinTokens(rest[:nameAt])
	return m, nil
}

// unnamedSpecial reports whether the tokens before '(' of a special operation
// are only a return type, e.g. "getter unsigned long (...)".
func unnamedSpecial(head []token) bool {
	if len(head) == 1 {
		return true
	}
	last := head[len(head)-1]
	if last.kind != tokIdent {
		return true
	}
	prev := head[len(head)-2].text
	switch last.text {
	case "long", "short", "double", "float":
		return prev == "unsigned" || prev == "unrestricted" || prev == "long"
	}
	return false
}

// openingParen returns the index of the '(' matching the final ')'.
func openingParen(toks []token) int {
	depth := 0
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].kind != tokPunct {
			continue
		}
		switch toks[i].text {
		case ")":
			depth++
		case "(":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// indexOf returns the index of the first top-level punctuation token text.
func indexOf(toks []token, text string) int {
	depth := 0
	for i, t := range toks {
		if t.kind == tokPunct {
			if depth == 0 && t.text == text {
				return i
			}
			switch t.text {
			case "(", "[", "{", "<":
				depth++
			case ")", "]", "}", ">":
				depth--
			}
		}
	}
	return -1
}

// joinTokens renders tokens separated by single spaces; this is the canonical
// form used for identity comparison.
func joinTokens(toks []token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}

// joinCompact renders extended attribute values without spaces around punctuation.
func joinCompact(toks []token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && t.kind == tokIdent && toks[i-1].kind == tokIdent {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
	}
	return b.String()
}

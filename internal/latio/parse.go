package latio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/beamsim/internal/lattice"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokSymbol // one of : , = ; ( ) [ ]
)

type token struct {
	kind  tokenKind
	text  string
	line  int
	start int
	end   int
}

type lexer struct {
	src  string
	pos  int
	line int
}

func (lx *lexer) errf(line int, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", line, fmt.Sprintf(format, args...))
}

func isIdentRune(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || (c >= '0' && c <= '9')
}

func (lx *lexer) next() (token, error) {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.line++
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == '#' || c == '!':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		default:
			goto scan
		}
	}
	return token{kind: tokEOF, line: lx.line}, nil

scan:
	start := lx.pos
	c := lx.src[lx.pos]
	switch {
	case strings.IndexByte(":,=;()[]", c) >= 0:
		lx.pos++
		return token{kind: tokSymbol, text: string(c), line: lx.line, start: start, end: lx.pos}, nil
	case c == '"':
		lx.pos++
		for lx.pos < len(lx.src) && lx.src[lx.pos] != '"' {
			if lx.src[lx.pos] == '\n' {
				return token{}, lx.errf(lx.line, "unterminated string")
			}
			lx.pos++
		}
		if lx.pos >= len(lx.src) {
			return token{}, lx.errf(lx.line, "unterminated string")
		}
		lx.pos++
		return token{kind: tokString, text: lx.src[start+1 : lx.pos-1], line: lx.line, start: start, end: lx.pos}, nil
	case isNumberStart(c):
		lx.pos++
		for lx.pos < len(lx.src) {
			c := lx.src[lx.pos]
			if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' {
				lx.pos++
				continue
			}
			if (c == '+' || c == '-') && (lx.src[lx.pos-1] == 'e' || lx.src[lx.pos-1] == 'E') {
				lx.pos++
				continue
			}
			break
		}
		return token{kind: tokNumber, text: lx.src[start:lx.pos], line: lx.line, start: start, end: lx.pos}, nil
	case isIdentRune(c):
		for lx.pos < len(lx.src) && isIdentRune(lx.src[lx.pos]) {
			lx.pos++
		}
		return token{kind: tokIdent, text: lx.src[start:lx.pos], line: lx.line, start: start, end: lx.pos}, nil
	default:
		return token{}, lx.errf(lx.line, "unexpected character %q", c)
	}
}

type parser struct {
	lx  *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expectSymbol(s string) error {
	if p.tok.kind != tokSymbol || p.tok.text != s {
		return p.lx.errf(p.tok.line, "expected %q, got %q", s, p.tok.text)
	}
	return p.advance()
}

// value parses a scalar, string or vector, recording its source span.
func (p *parser) value() (lattice.Value, int, int, error) {
	start := p.tok.start
	switch p.tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, 0, 0, p.lx.errf(p.tok.line, "bad number %q", p.tok.text)
		}
		end := p.tok.end
		return f, start, end, p.advance()
	case tokString:
		end := p.tok.end
		v := p.tok.text
		return v, start, end, p.advance()
	case tokIdent:
		// Bare word value, kept as a string.
		end := p.tok.end
		v := p.tok.text
		return v, start, end, p.advance()
	case tokSymbol:
		if p.tok.text != "[" {
			break
		}
		if err := p.advance(); err != nil {
			return nil, 0, 0, err
		}
		var vec []float64
		for {
			if p.tok.kind == tokSymbol && p.tok.text == "]" {
				break
			}
			if p.tok.kind != tokNumber {
				return nil, 0, 0, p.lx.errf(p.tok.line, "expected number in vector, got %q", p.tok.text)
			}
			f, err := strconv.ParseFloat(p.tok.text, 64)
			if err != nil {
				return nil, 0, 0, p.lx.errf(p.tok.line, "bad number %q", p.tok.text)
			}
			vec = append(vec, f)
			if err := p.advance(); err != nil {
				return nil, 0, 0, err
			}
			if p.tok.kind == tokSymbol && p.tok.text == "," {
				if err := p.advance(); err != nil {
					return nil, 0, 0, err
				}
			}
		}
		end := p.tok.end
		return vec, start, end, p.advance()
	}
	return nil, 0, 0, p.lx.errf(p.tok.line, "expected a value, got %q", p.tok.text)
}

// Parse reads a lattice description into its document form.
func Parse(src []byte) (*Document, error) {
	p := &parser{lx: &lexer{src: string(src), line: 1}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	doc := &Document{}

	for p.tok.kind != tokEOF {
		if p.tok.kind != tokIdent {
			return nil, p.lx.errf(p.tok.line, "expected a name, got %q", p.tok.text)
		}
		name := p.tok.text
		nameLine := p.tok.line
		if err := p.advance(); err != nil {
			return nil, err
		}

		switch {
		case p.tok.kind == tokSymbol && p.tok.text == "=":
			if err := p.advance(); err != nil {
				return nil, err
			}
			v, start, end, err := p.value()
			if err != nil {
				return nil, err
			}
			doc.Globals = append(doc.Globals, Assign{
				Name: name, Val: v, Line: nameLine, Start: start, End: end,
			})
			if err := p.expectSymbol(";"); err != nil {
				return nil, err
			}

		case p.tok.kind == tokSymbol && p.tok.text == ":":
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, p.lx.errf(p.tok.line, "expected element type or LINE, got %q", p.tok.text)
			}
			typ := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}

			switch {
			case typ == "LINE":
				if err := p.expectSymbol("="); err != nil {
					return nil, err
				}
				refs, err := p.lineRefs()
				if err != nil {
					return nil, err
				}
				doc.Lines = append(doc.Lines, LineDef{Name: name, Refs: refs, Line: nameLine})
				if err := p.expectSymbol(";"); err != nil {
					return nil, err
				}

			case name == "USE":
				// "USE: linename;" parses with the line name in type position.
				doc.Use = typ
				if err := p.expectSymbol(";"); err != nil {
					return nil, err
				}

			default:
				def := ElementDef{Name: name, Type: typ, Line: nameLine}
				for p.tok.kind == tokSymbol && p.tok.text == "," {
					if err := p.advance(); err != nil {
						return nil, err
					}
					if p.tok.kind != tokIdent {
						return nil, p.lx.errf(p.tok.line, "expected parameter name, got %q", p.tok.text)
					}
					key := p.tok.text
					keyLine := p.tok.line
					if err := p.advance(); err != nil {
						return nil, err
					}
					if err := p.expectSymbol("="); err != nil {
						return nil, err
					}
					v, start, end, err := p.value()
					if err != nil {
						return nil, err
					}
					def.Props = append(def.Props, Assign{
						Name: key, Val: v, Line: keyLine, Start: start, End: end,
					})
				}
				def.BodyEnd = p.tok.start
				if err := p.expectSymbol(";"); err != nil {
					return nil, err
				}
				doc.Elements = append(doc.Elements, def)
			}

		default:
			return nil, p.lx.errf(p.tok.line, "expected '=' or ':' after %q, got %q", name, p.tok.text)
		}
	}
	return doc, nil
}

func (p *parser) lineRefs() ([]string, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var refs []string
	for {
		if p.tok.kind == tokSymbol && p.tok.text == ")" {
			break
		}
		if p.tok.kind != tokIdent {
			return nil, p.lx.errf(p.tok.line, "expected element name in line, got %q", p.tok.text)
		}
		refs = append(refs, p.tok.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokSymbol && p.tok.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return refs, p.advance()
}

package selector

import (
	"errors"
	"strings"
)

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isCombinator(c byte) bool {
	return c == '>' || c == '+' || c == '~'
}

// normalize collapses whitespace so that the only spaces left are single
// descendant combinators at top level. Whitespace around other combinators,
// before digits, colons and parentheses and anywhere inside brackets or
// parentheses (except quoted strings) is dropped.
func normalize(s string) string {
	var (
		b       strings.Builder
		depth   int
		quote   byte
		pending bool
	)
	b.Grow(len(s))
	last := func() byte {
		if b.Len() == 0 {
			return 0
		}
		return b.String()[b.Len()-1]
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		if isSpace(c) {
			if depth == 0 {
				pending = true
			}
			continue
		}
		if pending {
			pending = false
			if l := last(); l != 0 && !isCombinator(l) && l != '(' &&
				!isCombinator(c) && !isDigit(c) && c != ':' && c != '(' && c != ')' {
				b.WriteByte(' ')
			}
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// splitTop splits s on sep ignoring separators inside brackets, parentheses
// and quoted strings.
func splitTop(s string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		default:
			if c == sep && depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

type tokenKind int

const (
	tokenTag tokenKind = iota
	tokenID
	tokenClass
	tokenAttr
	tokenPseudo
)

var errUnbalanced = errors.New("unbalanced brackets or parentheses")

// scanBlock walks compound selector left to right and emits its simple
// selectors as their sigils are crossed. Leading token without sigil is a
// tag. Attribute tokens are emitted without brackets, pseudo classes
// without colons (function arguments included).
func scanBlock(text string, emit func(tokenKind, string) error) error {
	var (
		start = 0
		kind  = tokenTag
		depth int
		quote byte
	)
	flush := func(end int) error {
		if start >= 0 && start < end {
			if err := emit(kind, text[start:end]); err != nil {
				return err
			}
		}
		start = -1
		return nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if depth == 0 {
			switch c {
			case '[':
				if err := flush(i); err != nil {
					return err
				}
				start, kind = i+1, tokenAttr
				depth++
				continue
			case ':':
				if err := flush(i); err != nil {
					return err
				}
				if i+1 < len(text) && text[i+1] == ':' {
					i++
				}
				start, kind = i+1, tokenPseudo
				continue
			case '#':
				if err := flush(i); err != nil {
					return err
				}
				start, kind = i+1, tokenID
				continue
			case '.':
				if err := flush(i); err != nil {
					return err
				}
				start, kind = i+1, tokenClass
				continue
			}
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '(':
			depth++
		case ']':
			depth--
			if depth == 0 && kind == tokenAttr {
				if err := flush(i); err != nil {
					return err
				}
			}
		case ')':
			depth--
		}
		if depth < 0 {
			return errUnbalanced
		}
	}
	if depth != 0 || quote != 0 {
		return errUnbalanced
	}
	return flush(len(text))
}

package selector

import (
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Compiler turns selector text into matchers.
type Compiler struct {
	log *zap.Logger
}

// NewCompiler creates a new selector compiler.
func NewCompiler(log *zap.Logger) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{log: log.Named("selector")}
}

// Compile compiles selector with silent compiler.
func Compile(text string) (Matcher, error) {
	return NewCompiler(nil).Compile(text)
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) Matcher {
	m, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return m
}

// Compile parses single (not comma separated) selector.
//
// Selector is split on descendant combinators first, then on '>', '~' and
// '+' in that order. Every level is reversed so that resulting Search walks
// from the subject compound outwards.
func (c *Compiler) Compile(text string) (Matcher, error) {
	sel := normalize(text)
	if sel == "" {
		return nil, &SyntaxError{Selector: text, Reason: "empty selector"}
	}

	groups := splitTop(sel, ' ')
	outer := make([][]Matcher, 0, len(groups))
	for _, group := range groups {
		children := splitTop(group, '>')
		part := make([]Matcher, 0, len(children))
		for _, child := range children {
			m, err := c.compileSiblings(text, child)
			if err != nil {
				return nil, err
			}
			part = append(part, m)
		}
		slices.Reverse(part)
		outer = append(outer, part)
	}
	slices.Reverse(outer)
	return newSearch(AxisParent, outer), nil
}

func (c *Compiler) compileSiblings(text, child string) (Matcher, error) {
	general := splitTop(child, '~')
	parts := make([][]Matcher, 0, len(general))
	for _, g := range general {
		adjacent := splitTop(g, '+')
		part := make([]Matcher, 0, len(adjacent))
		for _, block := range adjacent {
			if block == "" {
				return nil, &SyntaxError{Selector: text, Fragment: child, Reason: "missing compound around combinator"}
			}
			m, err := c.compileBlock(text, block)
			if err != nil {
				return nil, err
			}
			part = append(part, m)
		}
		slices.Reverse(part)
		parts = append(parts, part)
	}
	slices.Reverse(parts)
	return newSearch(AxisPrev, parts), nil
}

// compileBlock compiles compound selector (no combinators) into All.
func (c *Compiler) compileBlock(text, block string) (Matcher, error) {
	var list []Matcher
	err := scanBlock(block, func(tok tokenKind, value string) error {
		switch tok {
		case tokenTag:
			if value != "*" {
				// HTML element names are case-insensitive
				list = append(list, newTag(strings.ToLower(value)))
			}
		case tokenID:
			list = append(list, newID(value))
		case tokenClass:
			list = append(list, newClass(value))
		case tokenAttr:
			name, op, val, err := splitAttr(value)
			if err != nil {
				return &SyntaxError{Selector: text, Fragment: "[" + value + "]", Reason: err.Error()}
			}
			pred, err := attributePredicate(name, op, val)
			if err != nil {
				return &SyntaxError{Selector: text, Fragment: "[" + value + "]", Reason: err.Error()}
			}
			list = append(list, newAttr(pred))
		case tokenPseudo:
			m, err := c.pseudoClass(text, block, value)
			if err != nil {
				return err
			}
			list = append(list, m)
		}
		return nil
	})
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &SyntaxError{Selector: text, Fragment: block, Reason: err.Error()}
	}
	return newAll(list), nil
}

var vendorPrefixes = []string{"-webkit-", "-moz-", "-ms-"}

func (c *Compiler) pseudoClass(text, block, name string) (Matcher, error) {
	if name == "" {
		return universalMatcher, nil
	}
	lname := strings.ToLower(name)
	if pred, ok := pseudoPredicates[lname]; ok {
		return newPseudo(pred), nil
	}

	if open := strings.IndexByte(name, '('); open > 0 && strings.HasSuffix(name, ")") {
		fn, arg := strings.ToLower(name[:open]), name[open+1:len(name)-1]
		switch fn {
		case "not":
			inner, err := c.compileBlock(text, arg)
			if err != nil {
				return nil, err
			}
			return newNot(inner), nil
		case "nth-child", "nth-last-child", "nth-of-type":
			k, i, err := parseNth(arg)
			if err != nil {
				return nil, &SyntaxError{Selector: text, Fragment: ":" + name, Reason: err.Error()}
			}
			switch fn {
			case "nth-child":
				return newPseudo(nthChild(k, i)), nil
			case "nth-last-child":
				return newPseudo(nthLastChild(k, i)), nil
			default:
				return newPseudo(nthOfType(k, i)), nil
			}
		case "lang":
			return neverMatcher, nil
		}
	}

	for _, prefix := range vendorPrefixes {
		if strings.HasPrefix(lname, prefix) {
			return neverMatcher, nil
		}
	}
	c.log.Warn("Unsupported pseudo class", zap.String("pseudo", name), zap.String("selector", block))
	return neverMatcher, nil
}

// splitAttr splits attribute selector content (without brackets) into name,
// comparison operator and value. Operator is empty for presence test.
func splitAttr(content string) (name, op, value string, err error) {
	eq := strings.IndexByte(content, '=')
	if eq < 0 {
		name = strings.TrimSpace(content)
		if name == "" {
			return "", "", "", errors.New("missing attribute name")
		}
		return name, "", "", nil
	}
	start := eq
	for start > 0 && strings.IndexByte("~|^$*!", content[start-1]) >= 0 {
		start--
	}
	name, op, value = strings.TrimSpace(content[:start]), content[start:eq+1], strings.TrimSpace(content[eq+1:])
	if name == "" {
		return "", "", "", errors.New("missing attribute name")
	}
	if strings.ContainsFunc(name, invalidNameRune) {
		return "", "", "", errUnknownComparison
	}
	switch op {
	case "=", "~=", "|=", "^=", "$=", "*=":
		return name, op, value, nil
	}
	return "", "", "", errUnknownComparison
}

func invalidNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '-' || r == '_' || r == ':' || r > 0x7f:
		return false
	}
	return true
}

package selector

import (
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"cssapply/dom"
)

// Predicate tests single node.
type Predicate func(n *dom.Node) bool

func alwaysTrue(*dom.Node) bool  { return true }
func alwaysFalse(*dom.Node) bool { return false }

// Attribute comparisons.

var errUnknownComparison = errors.New("unknown attribute comparison")

func attributePredicate(name, op, value string) (Predicate, error) {
	value = unquote(value)
	switch op {
	case "":
		return func(n *dom.Node) bool {
			_, ok := n.Attr(name)
			return ok
		}, nil
	case "=":
		return func(n *dom.Node) bool {
			v, ok := n.Attr(name)
			return ok && (value == "" || v == value)
		}, nil
	case "~=":
		return func(n *dom.Node) bool {
			v, ok := n.Attr(name)
			return ok && slices.Contains(strings.Fields(v), value)
		}, nil
	case "|=":
		return func(n *dom.Node) bool {
			v, ok := n.Attr(name)
			return ok && (v == value || strings.HasPrefix(v, value+"-"))
		}, nil
	}

	var expr string
	safe := regexp.QuoteMeta(value)
	switch op {
	case "^=":
		expr = "^" + safe
	case "$=":
		expr = safe + "$"
	case "*=":
		expr = safe
	default:
		return nil, errUnknownComparison
	}
	if value == "" {
		// substring comparisons against empty string never match
		return alwaysFalse, nil
	}
	pattern := regexp.MustCompile(expr)
	return func(n *dom.Node) bool {
		v, ok := n.Attr(name)
		return ok && v != "" && pattern.MatchString(v)
	}, nil
}

// unquote strips one layer of matching quotes.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// Structural pseudo classes.

func firstChild(n *dom.Node) bool  { return n.Prev == nil }
func lastChild(n *dom.Node) bool   { return n.Next == nil }
func onlyChild(n *dom.Node) bool   { return firstChild(n) && lastChild(n) }
func root(n *dom.Node) bool        { return n.IsRoot() }
func empty(n *dom.Node) bool       { return len(n.Children) == 0 }
func firstOfType(n *dom.Node) bool { return n.IndexOfType == 0 }
func lastOfType(n *dom.Node) bool  { return n.LastOfType }
func onlyOfType(n *dom.Node) bool  { return firstOfType(n) && lastOfType(n) }

func required(n *dom.Node) bool {
	_, ok := n.Attr("required")
	return n.Tag == "input" && ok
}

func optional(n *dom.Node) bool {
	_, ok := n.Attr("required")
	return n.Tag == "input" && !ok
}

// pseudoPredicates lists argument-less pseudo classes. Document is static:
// dynamic classes never match, links are always unvisited, :before and
// :after are markers handled by the cascade.
var pseudoPredicates = map[string]Predicate{
	"first-child":   firstChild,
	"last-child":    lastChild,
	"only-child":    onlyChild,
	"root":          root,
	"empty":         empty,
	"first-of-type": firstOfType,
	"last-of-type":  lastOfType,
	"only-of-type":  onlyOfType,
	"required":      required,
	"optional":      optional,
	"link":          alwaysTrue,
	"before":        alwaysTrue,
	"after":         alwaysTrue,
	"hover":         alwaysFalse,
	"visited":       alwaysFalse,
	"valid":         alwaysFalse,
	"active":        alwaysFalse,
	"focus":         alwaysFalse,
	"lang":          alwaysFalse,
}

// An+B.

// nthIndex reports whether 1-based position idx is selected by k*n+i for
// some n >= 0.
func nthIndex(k, i, idx int) bool {
	if k == 0 {
		return idx == i
	}
	d := idx - i
	if k < 0 {
		d = -d
	}
	return d >= 0 && (idx-i)%k == 0
}

func nthChild(k, i int) Predicate {
	return func(n *dom.Node) bool {
		return nthIndex(k, i, n.Index)
	}
}

func nthLastChild(k, i int) Predicate {
	return func(n *dom.Node) bool {
		return nthIndex(k, i, n.LastIndex()-n.Index+1)
	}
}

// nthOfType counts position among same-tag siblings from zero.
func nthOfType(k, i int) Predicate {
	return func(n *dom.Node) bool {
		return nthIndex(k, i, n.IndexOfType)
	}
}

var (
	nthIntPattern     = regexp.MustCompile(`^[+-]?\d+$`)
	nthFormulaPattern = regexp.MustCompile(`^([+-]?)(\d*)n(?:([+-])(\d+))?$`)
)

var errBadNth = errors.New("invalid An+B expression")

// parseNth parses An+B argument of nth-* pseudo classes.
func parseNth(arg string) (k, i int, err error) {
	s := strings.ToLower(strings.Join(strings.Fields(arg), ""))
	switch s {
	case "even":
		return 2, 0, nil
	case "odd":
		return 2, 1, nil
	}
	if nthIntPattern.MatchString(s) {
		if i, err = strconv.Atoi(s); err != nil {
			return 0, 0, errBadNth
		}
		return 0, i, nil
	}
	m := nthFormulaPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, errBadNth
	}
	k = 1
	if m[2] != "" {
		if k, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, errBadNth
		}
	}
	if m[1] == "-" {
		k = -k
	}
	if m[3] != "" {
		if i, err = strconv.Atoi(m[4]); err != nil {
			return 0, 0, errBadNth
		}
		if m[3] == "-" {
			i = -i
		}
	}
	return k, i, nil
}

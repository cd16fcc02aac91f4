// Package cascade keeps compiled stylesheet rules indexed for fast lookup and
// resolves final inline style of document nodes.
package cascade

import (
	"cmp"
	"strings"

	"cssapply/css"
	"cssapply/selector"
)

// PseudoElement tells which node rule declarations go to.
type PseudoElement int

const (
	PseudoNone   PseudoElement = iota // node itself
	PseudoBefore                      // ::before
	PseudoAfter                       // ::after
)

// String returns the CSS representation of the pseudo-element.
func (p PseudoElement) String() string {
	switch p {
	case PseudoBefore:
		return "::before"
	case PseudoAfter:
		return "::after"
	default:
		return ""
	}
}

// pseudoElementOf looks at the tail of selector text, both legacy single
// colon and double colon forms are recognized.
func pseudoElementOf(text string) PseudoElement {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasSuffix(lower, ":before"):
		return PseudoBefore
	case strings.HasSuffix(lower, ":after"):
		return PseudoAfter
	}
	return PseudoNone
}

// Rule is single selector of a rule set together with its declarations.
// Rules created from one selector group share Declarations.
type Rule struct {
	ID           int // registry append order, used for de-duplication and ties
	SelectorText string
	Selector     selector.Matcher
	Specificity  int
	Declarations []css.Declaration
	Pseudo       PseudoElement
}

// compareRules orders rules by specificity, append order breaks ties.
func compareRules(a, b *Rule) int {
	if c := cmp.Compare(a.Specificity, b.Specificity); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Package selector compiles CSS selectors into matchers testing nodes of
// dom tree.
//
// Compiled selector is a tree built from four matcher variants: Simple
// (single predicate), Not (negation), All (compound selector) and Search
// (chain of compounds joined by combinators). Matchers are immutable, the
// only thing they do besides matching is telling rule registry which index
// key may be used to find them.
package selector

import "cssapply/dom"

// Kind tells what Simple matcher tests and how it contributes to
// specificity.
type Kind int

const (
	KindUniversal Kind = iota // always true, no specificity
	KindID
	KindClass
	KindTag
	KindAttr
	KindPseudo
)

// Binder receives index key claimed by matcher. Only KindID, KindClass and
// KindTag keys are ever passed.
type Binder func(kind Kind, key string)

// Matcher is compiled selector or part of it.
type Matcher interface {
	// Match tests node, it has no side effects.
	Match(n *dom.Node) bool
	// Bind offers index key to b, returns false when matcher has none.
	Bind(b Binder) bool
	// AddSpecificityTo adds matcher contribution to s.
	AddSpecificityTo(s *Specificity)

	isMatcher()
}

// Simple tests node with single predicate.
type Simple struct {
	kind Kind
	key  string
	pred Predicate
}

var (
	universalMatcher = &Simple{kind: KindUniversal, pred: alwaysTrue}
	neverMatcher     = &Simple{kind: KindPseudo, pred: alwaysFalse}
)

func newID(id string) *Simple {
	return &Simple{kind: KindID, key: id, pred: func(n *dom.Node) bool { return n.ID == id }}
}

func newTag(tag string) *Simple {
	return &Simple{kind: KindTag, key: tag, pred: func(n *dom.Node) bool { return n.Tag == tag }}
}

func newClass(class string) *Simple {
	return &Simple{kind: KindClass, key: class, pred: func(n *dom.Node) bool { return n.HasClass(class) }}
}

func newAttr(pred Predicate) *Simple {
	return &Simple{kind: KindAttr, pred: pred}
}

func newPseudo(pred Predicate) *Simple {
	return &Simple{kind: KindPseudo, pred: pred}
}

func (m *Simple) Match(n *dom.Node) bool {
	return m.pred(n)
}

func (m *Simple) Bind(b Binder) bool {
	switch m.kind {
	case KindID, KindClass, KindTag:
		b(m.kind, m.key)
		return true
	}
	return false
}

func (m *Simple) AddSpecificityTo(s *Specificity) {
	switch m.kind {
	case KindUniversal:
	case KindID:
		s[0]++
	case KindTag:
		s[2]++
	default:
		s[1]++
	}
}

func (*Simple) isMatcher() {}

// Not negates inner compound, it counts as pseudo class on top of inner
// specificity.
type Not struct {
	inner Matcher
}

func newNot(inner Matcher) *Not {
	return &Not{inner: inner}
}

func (m *Not) Match(n *dom.Node) bool {
	return !m.inner.Match(n)
}

func (*Not) Bind(Binder) bool { return false }

func (m *Not) AddSpecificityTo(s *Specificity) {
	s[1]++
	m.inner.AddSpecificityTo(s)
}

func (*Not) isMatcher() {}

// All is conjunction of compound selector parts.
type All struct {
	list []Matcher
}

// newAll returns universal matcher for empty list and the only element for
// list of one.
func newAll(list []Matcher) Matcher {
	switch len(list) {
	case 0:
		return universalMatcher
	case 1:
		return list[0]
	}
	return &All{list: list}
}

func (m *All) Match(n *dom.Node) bool {
	for _, p := range m.list {
		if !p.Match(n) {
			return false
		}
	}
	return true
}

// bindOrder is preference of index keys, the most selective first.
var bindOrder = [...]Kind{KindID, KindClass, KindTag}

func (m *All) Bind(b Binder) bool {
	for _, kind := range bindOrder {
		for _, p := range m.list {
			if s, ok := p.(*Simple); ok && s.kind == kind {
				return s.Bind(b)
			}
		}
	}
	return false
}

func (m *All) AddSpecificityTo(s *Specificity) {
	for _, p := range m.list {
		p.AddSpecificityTo(s)
	}
}

func (*All) isMatcher() {}

// Axis is direction Search walks in.
type Axis int

const (
	AxisParent Axis = iota // descendant and child combinators
	AxisPrev               // general and adjacent sibling combinators
)

// step never moves onto synthetic document root, it is not an element.
func (a Axis) step(n *dom.Node) *dom.Node {
	if a == AxisParent {
		if n.Parent == nil || n.Parent.Root {
			return nil
		}
		return n.Parent
	}
	return n.Prev
}

// Search matches chain of parts walking from the subject node outwards.
// Matchers inside one part are tested on strictly consecutive positions,
// between parts any number of positions may be skipped.
type Search struct {
	axis  Axis
	parts [][]Matcher // subject part first, each part innermost first
}

// newSearch eliminates trivial chains: empty one matches everything, single
// compound is returned as is.
func newSearch(axis Axis, parts [][]Matcher) Matcher {
	if len(parts) == 0 {
		return universalMatcher
	}
	if len(parts) == 1 && len(parts[0]) == 1 {
		return parts[0][0]
	}
	return &Search{axis: axis, parts: parts}
}

func (m *Search) Match(n *dom.Node) bool {
	cur, ok := m.matchPart(m.parts[0], n)
	if !ok {
		return false
	}
	i := 1
	for i < len(m.parts) && cur != nil {
		if next, ok := m.matchPart(m.parts[i], cur); ok {
			cur = next
			i++
		} else {
			cur = m.axis.step(cur)
		}
	}
	return i == len(m.parts)
}

// matchPart tests part on consecutive positions starting at n and returns
// position right after the part.
func (m *Search) matchPart(part []Matcher, n *dom.Node) (*dom.Node, bool) {
	cur := n
	for _, p := range part {
		if cur == nil || !p.Match(cur) {
			return nil, false
		}
		cur = m.axis.step(cur)
	}
	return cur, true
}

// Bind claims key of the subject compound only: rules are looked up by the
// node being styled, keys of ancestors or siblings would hide the rule.
func (m *Search) Bind(b Binder) bool {
	if len(m.parts[0]) == 0 {
		return false
	}
	return m.parts[0][0].Bind(b)
}

func (m *Search) AddSpecificityTo(s *Specificity) {
	for _, part := range m.parts {
		for _, p := range part {
			p.AddSpecificityTo(s)
		}
	}
}

func (*Search) isMatcher() {}

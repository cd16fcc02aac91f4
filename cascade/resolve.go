package cascade

import (
	"slices"

	"go.uber.org/zap"

	"cssapply/css"
	"cssapply/dom"
)

// RulesFor returns rules matching n in ascending cascade order.
func (r *Registry) RulesFor(n *dom.Node) []*Rule {
	var (
		rules []*Rule
		seen  = make(map[int]struct{})
	)
	add := func(bucket []*Rule) {
		for _, rule := range bucket {
			if _, ok := seen[rule.ID]; ok {
				continue
			}
			seen[rule.ID] = struct{}{}
			if rule.Selector.Match(n) {
				rules = append(rules, rule)
			}
		}
	}

	add(r.wildcard)
	add(r.byTag[n.Tag])
	for _, class := range n.Classes {
		add(r.byClass[class])
	}
	if n.ID != "" {
		add(r.byID[n.ID])
	}
	slices.SortFunc(rules, compareRules)
	return rules
}

// virtualNode is ::before or ::after node being built.
type virtualNode struct {
	node  *dom.Node
	style *Style
}

func newVirtual(owner *dom.Node) *virtualNode {
	return &virtualNode{
		node:  &dom.Node{Type: dom.ElementNode, Tag: owner.Tag, Parent: owner, Virtual: true, Styled: true},
		style: NewStyle(),
	}
}

// merge adds d to the virtual node. Quoted content is emitted as text child
// right away, so every matching rule contributes its own text.
func (v *virtualNode) merge(d css.Declaration) {
	if d.Property == "content" {
		if text, ok := quoted(d.Value); ok {
			if text != "" {
				v.node.AppendChild(dom.NewText(text))
			}
			return
		}
	}
	v.style.Merge(d)
}

// finish writes style attribute of the virtual node.
func (v *virtualNode) finish() {
	if v == nil || v.style.Len() == 0 {
		return
	}
	v.node.SetAttr("style", v.style.String())
}

// quoted returns content of single or double quoted string literal.
func quoted(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	if (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// Apply computes style of element n from matching rules and its own inline
// style and stores result in the style attribute. Rules for ::before and
// ::after create virtual first and last children. Each element is processed
// once, repeated calls are no-ops, text and virtual nodes are ignored.
func (r *Registry) Apply(n *dom.Node) {
	r.ApplyFunc(n, nil)
}

// ApplyFunc is Apply with adjust called on the computed own style of the
// element before it is written back.
func (r *Registry) ApplyFunc(n *dom.Node, adjust func(n *dom.Node, s *Style)) {
	if n == nil || n.Type != dom.ElementNode || n.Virtual || n.Styled {
		return
	}
	n.Styled = true

	var (
		own           = NewStyle()
		before, after *virtualNode
	)
	for _, rule := range r.RulesFor(n) {
		var virtual *virtualNode
		switch rule.Pseudo {
		case PseudoBefore:
			if before == nil {
				before = newVirtual(n)
				n.PrependChild(before.node)
			}
			virtual = before
		case PseudoAfter:
			if after == nil {
				after = newVirtual(n)
				n.AppendChild(after.node)
			}
			virtual = after
		}
		for _, d := range rule.Declarations {
			if virtual != nil {
				virtual.merge(d)
			} else {
				own.Merge(d)
			}
		}
	}

	if inline, ok := n.Attr("style"); ok {
		for _, d := range css.ParseInline(inline) {
			own.Merge(d)
		}
	}
	if adjust != nil {
		adjust(n, own)
	}
	if own.Len() > 0 {
		n.SetAttr("style", own.String())
	}
	before.finish()
	after.finish()

	if ce := r.log.Check(zap.DebugLevel, "Element styled"); ce != nil {
		ce.Write(zap.String("tag", n.Tag), zap.String("style", own.String()),
			zap.Bool("before", before != nil), zap.Bool("after", after != nil))
	}
}

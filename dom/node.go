// Package dom defines the element tree styles are computed for and builds it
// from HTML.
package dom

import "strings"

// NodeType distinguishes elements from literal text.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
	DoctypeNode
)

// Attribute is a single element attribute, attribute order is preserved.
type Attribute struct {
	Key string
	Val string
}

// Node is an element (or a piece of literal text) of the document tree.
//
// Parent, Prev and Next link elements only: text children never take part in
// sibling chains. Index, IndexOfType and LastOfType are computed once when the
// tree is built and are never changed afterwards.
type Node struct {
	Type      NodeType
	Tag       string
	Namespace string // foreign content (svg, math), empty for HTML
	ID        string
	Classes   []string
	Attrs     []Attribute
	Data      string // text content of a TextNode, name of a DoctypeNode

	Parent *Node
	Prev   *Node
	Next   *Node

	Index         int  // 1-based position among element siblings
	IndexOfType   int  // 0-based position among siblings with the same tag
	LastOfType    bool // no later sibling shares the tag
	ChildrenCount int  // number of element children

	Children []*Node

	Root    bool // synthetic document root holding top level elements
	Virtual bool // synthesized ::before/::after element
	Styled  bool // styles were already applied
}

// NewElement creates detached element, id and classes are taken from
// attributes.
func NewElement(tag string, attrs []Attribute) *Node {
	n := &Node{Type: ElementNode, Tag: tag, Attrs: attrs}
	if id, ok := n.Attr("id"); ok {
		n.ID = id
	}
	if class, ok := n.Attr("class"); ok {
		n.Classes = strings.Fields(class)
	}
	return n
}

// NewText creates text node.
func NewText(data string) *Node {
	return &Node{Type: TextNode, Data: data}
}

// Attr returns attribute value and whether attribute is present at all.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr replaces attribute value in place or appends new attribute.
func (n *Node) SetAttr(key, val string) {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs[i].Val = val
			return
		}
	}
	n.Attrs = append(n.Attrs, Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute if present.
func (n *Node) RemoveAttr(key string) {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// HasClass reports whether class is among element classes.
func (n *Node) HasClass(class string) bool {
	for _, c := range n.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// IsRoot reports whether node has no parent or its parent is the document
// root.
func (n *Node) IsRoot() bool {
	return n.Parent == nil || n.Parent.Root
}

// LastIndex returns number of element siblings including the node itself.
// Parent bookkeeping is used when available, otherwise the sibling chain is
// followed.
func (n *Node) LastIndex() int {
	if n.Parent != nil && n.Parent.ChildrenCount > 0 {
		return n.Parent.ChildrenCount
	}
	count := n.Index
	for next := n.Next; next != nil; next = next.Next {
		count++
	}
	return count
}

// PrependChild inserts child as the very first child.
func (n *Node) PrependChild(child *Node) {
	n.Children = append([]*Node{child}, n.Children...)
}

// AppendChild adds child at the end.
func (n *Node) AppendChild(child *Node) {
	n.Children = append(n.Children, child)
}

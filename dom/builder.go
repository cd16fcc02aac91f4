package dom

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseOptions control tree building.
type ParseOptions struct {
	// Document parses complete document (doctype, html, head, body). Otherwise
	// input is treated as content of body element.
	Document bool
	// Drop is called for every element before it is added to the tree,
	// returning true leaves element (and its subtree) out.
	Drop func(n *html.Node) bool
}

// LooksLikeDocument reports whether data starts with doctype or html tag.
func LooksLikeDocument(data []byte) bool {
	data = bytes.TrimLeft(data, " \t\r\n\f\ufeff")
	for bytes.HasPrefix(data, []byte("<!--")) {
		end := bytes.Index(data, []byte("-->"))
		if end < 0 {
			return false
		}
		data = bytes.TrimLeft(data[end+3:], " \t\r\n\f")
	}
	if len(data) > 16 {
		data = data[:16]
	}
	lower := bytes.ToLower(data)
	return bytes.HasPrefix(lower, []byte("<!doctype")) || bytes.HasPrefix(lower, []byte("<html"))
}

// Parse reads HTML and builds node tree. Returned node is synthetic root
// (Root is set) holding top level nodes. Element bookkeeping (sibling links,
// Index, IndexOfType, LastOfType, ChildrenCount) is computed here once.
// Comments are not kept.
func Parse(r io.Reader, opts ParseOptions) (*Node, error) {
	root := &Node{Type: ElementNode, Root: true}
	if opts.Document {
		doc, err := html.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("unable to parse html document: %w", err)
		}
		build(root, doc, opts.Drop)
		return root, nil
	}

	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, context)
	if err != nil {
		return nil, fmt.Errorf("unable to parse html fragment: %w", err)
	}
	root.Tag = "body"
	// detach fragment nodes under common parent to reuse build
	holder := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		holder.AppendChild(n)
	}
	build(root, holder, opts.Drop)
	return root, nil
}

func build(parent *Node, h *html.Node, drop func(*html.Node) bool) {
	var (
		prev    *Node
		ofType  = make(map[string]int)
		lastTag = make(map[string]*Node)
	)
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			t := NewText(c.Data)
			t.Parent = parent
			parent.AppendChild(t)

		case html.DoctypeNode:
			d := &Node{Type: DoctypeNode, Data: c.Data, Parent: parent, Attrs: attributes(c.Attr)}
			parent.AppendChild(d)

		case html.ElementNode:
			if drop != nil && drop(c) {
				continue
			}
			n := NewElement(c.Data, attributes(c.Attr))
			n.Namespace = c.Namespace
			n.Parent = parent

			parent.ChildrenCount++
			n.Index = parent.ChildrenCount
			n.IndexOfType = ofType[n.Tag]
			ofType[n.Tag]++
			lastTag[n.Tag] = n

			if prev != nil {
				prev.Next = n
				n.Prev = prev
			}
			prev = n

			parent.AppendChild(n)
			build(n, c, drop)
		}
	}
	for _, n := range lastTag {
		n.LastOfType = true
	}
}

func attributes(attrs []html.Attribute) []Attribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		out = append(out, Attribute{Key: key, Val: a.Val})
	}
	return out
}

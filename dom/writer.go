package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Render serializes n as HTML. For synthetic root only its children are
// written. Virtual nodes are written as ordinary elements.
func Render(w io.Writer, n *Node) error {
	if n.Root {
		for _, c := range n.Children {
			if err := render(w, c); err != nil {
				return err
			}
		}
		return nil
	}
	return render(w, n)
}

// String returns serialized HTML of n.
func String(n *Node) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func render(w io.Writer, n *Node) error {
	if err := html.Render(w, toHTML(n)); err != nil {
		return fmt.Errorf("unable to render <%s>: %w", n.Tag, err)
	}
	return nil
}

// toHTML converts subtree back to x/net/html representation.
func toHTML(n *Node) *html.Node {
	switch n.Type {
	case TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Data}
	case DoctypeNode:
		return &html.Node{Type: html.DoctypeNode, Data: n.Data, Attr: htmlAttributes(n.Attrs)}
	}
	h := &html.Node{
		Type:      html.ElementNode,
		Data:      n.Tag,
		DataAtom:  atom.Lookup([]byte(n.Tag)),
		Namespace: n.Namespace,
		Attr:      htmlAttributes(n.Attrs),
	}
	if voidElements[n.Tag] && n.Namespace == "" {
		// no place for children (::before/::after included)
		return h
	}
	for _, c := range n.Children {
		h.AppendChild(toHTML(c))
	}
	return h
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

func htmlAttributes(attrs []Attribute) []html.Attribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]html.Attribute, 0, len(attrs))
	for _, a := range attrs {
		attr := html.Attribute{Key: a.Key, Val: a.Val}
		if ns, key, ok := strings.Cut(a.Key, ":"); ok && (ns == "xlink" || ns == "xml" || ns == "xmlns") {
			attr.Namespace, attr.Key = ns, key
		}
		out = append(out, attr)
	}
	return out
}

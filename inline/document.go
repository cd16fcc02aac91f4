// Package inline moves CSS rules of an HTML document into style attributes of
// its elements.
package inline

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"cssapply/cascade"
	"cssapply/css"
	"cssapply/dom"
	"cssapply/loader"
)

// InlineOptions control what happens to elements once styles are inlined.
type InlineOptions struct {
	// PreserveClass keeps class attributes, otherwise they are removed.
	PreserveClass bool
	// EmbedImages replaces background-image references with data URLs
	// loaded through document loader.
	EmbedImages bool
}

// styleSource is either <style> text or <link> href in document order.
type styleSource struct {
	text string
	href string
}

// Document is parsed HTML bound to a rule registry.
type Document struct {
	log    *zap.Logger
	reg    *cascade.Registry
	loader loader.Loader

	root    *dom.Node
	images  []*dom.Node
	inlined bool
}

// NewDocument creates empty document. Stylesheets referenced by the document
// and its @import directives are retrieved with l, which may be nil.
func NewDocument(reg *cascade.Registry, l loader.Loader, log *zap.Logger) *Document {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = cascade.NewRegistry(log)
	}
	return &Document{log: log.Named("document"), reg: reg, loader: l}
}

// Root returns synthetic root of the loaded tree.
func (d *Document) Root() *dom.Node {
	return d.root
}

// Images returns img elements in document order.
func (d *Document) Images() []*dom.Node {
	return d.images
}

// Load parses HTML. Content type (may be empty) is used together with
// <meta> declarations and byte order marks to detect input encoding. Text of
// <style> elements and stylesheets of <link rel="stylesheet"> elements are
// appended to the registry in document order, both elements are left out of
// the tree.
func (d *Document) Load(data []byte, contentType string) error {
	text, err := decode(data, contentType)
	if err != nil {
		return err
	}

	var sources []styleSource
	root, err := dom.Parse(bytes.NewReader(text), dom.ParseOptions{
		Document: dom.LooksLikeDocument(text),
		Drop: func(n *html.Node) bool {
			switch n.Data {
			case "style":
				var sb strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						sb.WriteString(c.Data)
					}
				}
				sources = append(sources, styleSource{text: sb.String()})
				return true
			case "link":
				if isStylesheetLink(n) {
					if href := attr(n, "href"); href != "" {
						sources = append(sources, styleSource{href: href})
					}
					return true
				}
			}
			return false
		},
	})
	if err != nil {
		return err
	}

	for _, src := range sources {
		if err := d.appendSource(src); err != nil {
			return err
		}
	}

	d.root = root
	d.images = d.images[:0]
	d.collectImages(root)
	d.log.Debug("Document loaded", zap.Int("stylesheets", len(sources)), zap.Int("rules", d.reg.Len()), zap.Int("images", len(d.images)))
	return nil
}

// decode converts document to UTF-8. Detection looks only at the beginning of
// data, when nothing is declared there and whole input is valid UTF-8 it is
// taken as such.
func decode(data []byte, contentType string) ([]byte, error) {
	enc, name, certain := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" || (!certain && name == "windows-1252" && utf8.Valid(data)) {
		return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), nil
	}
	text, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode document from %s: %w", name, err)
	}
	return text, nil
}

func (d *Document) appendSource(src styleSource) error {
	if src.href == "" {
		if err := d.reg.Append([]byte(src.text), d.loader); err != nil {
			return fmt.Errorf("style element: %w", err)
		}
		return nil
	}
	if d.loader == nil {
		return fmt.Errorf("unable to load stylesheet %q: no loader", src.href)
	}
	data, err := d.loader.Load(src.href)
	if err != nil {
		return fmt.Errorf("unable to load stylesheet: %w", err)
	}
	if err := d.reg.Append(data, d.loader); err != nil {
		return fmt.Errorf("stylesheet %q: %w", src.href, err)
	}
	return nil
}

func (d *Document) collectImages(n *dom.Node) {
	for _, c := range n.Children {
		if c.Type != dom.ElementNode {
			continue
		}
		if c.Tag == "img" {
			d.images = append(d.images, c)
		}
		d.collectImages(c)
	}
}

// InlineCSS computes style of every element in pre-order. Only the first
// call does any work.
func (d *Document) InlineCSS(opts InlineOptions) {
	if d.inlined || d.root == nil {
		return
	}
	d.inlined = true

	var adjust func(*dom.Node, *cascade.Style)
	if opts.EmbedImages {
		adjust = d.embedBackground
	}
	var visit func(n *dom.Node)
	visit = func(n *dom.Node) {
		if n.Type != dom.ElementNode {
			return
		}
		if !n.Virtual {
			d.reg.ApplyFunc(n, adjust)
			if !opts.PreserveClass {
				n.RemoveAttr("class")
			}
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, c := range d.root.Children {
		visit(c)
	}
}

// Render inlines styles (if not done yet) and serializes the tree. Leading
// and trailing white space is removed.
func (d *Document) Render(opts InlineOptions) (string, error) {
	if d.root == nil {
		return "", errors.New("document is not loaded")
	}
	d.InlineCSS(opts)
	out, err := dom.String(d.root)
	if err != nil {
		return "", fmt.Errorf("unable to render document: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (d *Document) embedBackground(n *dom.Node, s *cascade.Style) {
	value, ok := s.Get("background-image")
	if !ok {
		return
	}
	s.Set("background-image", css.RewriteURLs(value, func(url string) string {
		if url == "" || strings.HasPrefix(strings.ToLower(url), "data:") {
			return url
		}
		embedded, err := d.dataURL(url)
		if err != nil {
			d.log.Warn("Unable to embed background image", zap.String("tag", n.Tag), zap.String("url", url), zap.Error(err))
			return url
		}
		return embedded
	}))
}

func (d *Document) dataURL(url string) (string, error) {
	if d.loader == nil {
		return "", errors.New("no loader")
	}
	data, err := d.loader.Load(url)
	if err != nil {
		return "", err
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown {
		return "", errors.New("unknown image type")
	}
	return "data:" + kind.MIME.Value + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func isStylesheetLink(n *html.Node) bool {
	for rel := range strings.FieldsSeq(attr(n, "rel")) {
		if strings.EqualFold(rel, "stylesheet") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

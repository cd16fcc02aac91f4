package convert

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"cssapply/config"
	"cssapply/dom"
)

// Values is a struct that holds variables we make available for template expansion
type Values struct {
	Context    string
	SourceFile string
	SourceDir  string
	Title      string
	Lang       string
}

// newValues collects template values for processed document. src is path of
// the document relative to processed source.
func newValues(src string, root *dom.Node) Values {
	v := Values{
		SourceFile: strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)),
		SourceDir:  filepath.ToSlash(filepath.Dir(src)),
	}
	if v.SourceDir == "." {
		v.SourceDir = ""
	}
	if root == nil {
		return v
	}
	if title := findElement(root, "title"); title != nil {
		v.Title = strings.Join(strings.Fields(textOf(title)), " ")
	}
	if html := findElement(root, "html"); html != nil {
		v.Lang, _ = html.Attr("lang")
	}
	return v
}

func findElement(n *dom.Node, tag string) *dom.Node {
	for _, c := range n.Children {
		if c.Type != dom.ElementNode || c.Virtual {
			continue
		}
		if c.Tag == tag {
			return c
		}
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *dom.Node) string {
	var sb strings.Builder
	for _, c := range n.Children {
		switch c.Type {
		case dom.TextNode:
			sb.WriteString(c.Data)
		case dom.ElementNode:
			sb.WriteString(textOf(c))
		}
	}
	return sb.String()
}

func expandTemplate(values Values, name config.TemplateFieldName, field string) (string, error) {
	funcMap := sprig.FuncMap()

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values.Context = string(name)

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}

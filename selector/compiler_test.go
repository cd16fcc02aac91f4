package selector_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cssapply/dom"
	"cssapply/selector"
)

func div(id string, classes ...string) *dom.Node {
	return &dom.Node{Type: dom.ElementNode, Tag: "div", ID: id, Classes: classes}
}

func el(tag string) *dom.Node {
	return &dom.Node{Type: dom.ElementNode, Tag: tag}
}

func withParent(n, parent *dom.Node) *dom.Node {
	n.Parent = parent
	return n
}

func withPrev(n, prev *dom.Node) *dom.Node {
	n.Prev = prev
	return n
}

func withAttrs(n *dom.Node, kv ...string) *dom.Node {
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attrs = append(n.Attrs, dom.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func match(t *testing.T, sel string, n *dom.Node) bool {
	t.Helper()
	m, err := selector.Compile(sel)
	if err != nil {
		t.Fatalf("Compile(%q) error = %v", sel, err)
	}
	return m.Match(n)
}

type matchCase struct {
	sel  string
	node *dom.Node
	want bool
}

func runCases(t *testing.T, cases []matchCase) {
	t.Helper()
	for _, tc := range cases {
		if got := match(t, tc.sel, tc.node); got != tc.want {
			t.Errorf("%q matched = %v, want %v", tc.sel, got, tc.want)
		}
	}
}

func TestCompile_Single(t *testing.T) {
	n := div("a", "x", "y", "z")
	runCases(t, []matchCase{
		{"div#a.x.y", n, true},
		{"div#a", n, true},
		{"div", n, true},
		{"div", div("", "x"), true},
		{"div", el("div"), true},
		{"#a", n, true},
		{".x", n, true},
		{".x.y", n, true},
		{"div#a.x.y", div("b", "x", "y", "z"), false},
		{"div#a.x.y", &dom.Node{Tag: "button", ID: "a", Classes: []string{"x", "y", "z"}}, false},
	})
}

func TestCompile_TagOnlyIgnoresOtherFields(t *testing.T) {
	nodes := []*dom.Node{
		el("p"),
		div("p", "p"),
		withAttrs(el("span"), "tag", "p"),
		withParent(el("p"), el("div")),
	}
	for _, n := range nodes {
		if got := match(t, "p", n); got != (n.Tag == "p") {
			t.Errorf("tag selector on %q = %v", n.Tag, got)
		}
	}
}

func TestCompile_Universal(t *testing.T) {
	n := div("a", "x", "y", "z")
	table := &dom.Node{Tag: "table", ID: "a", Classes: []string{"x", "y", "z"}}
	runCases(t, []matchCase{
		{"*", n, true},
		{"*", table, true},
		{"* *", withParent(&dom.Node{Tag: "table"}, el("table")), true},
		{"*.x", table, true},
		{"*.w", table, false},
		{"* *", table, false},
	})
}

// chain builds div#a.x.y.z > div > div.z.f.x.y > table ancestry.
func chain() *dom.Node {
	table := el("table")
	outer := withParent(div("", "z", "f", "x", "y"), table)
	mid := withParent(el("div"), outer)
	return withParent(div("a", "x", "y", "z"), mid)
}

func TestCompile_Descendant(t *testing.T) {
	runCases(t, []matchCase{
		{"table div#a.x.y", chain(), true},
		{"table div  div#a.x.y", chain(), true},
		{"table div.z div#a.x.y", chain(), true},
		{"div.q div#a.x.y", chain(), false},
	})
}

func TestCompile_Child(t *testing.T) {
	direct := withParent(div("a", "x", "y", "z"), withParent(div("", "z", "f", "x", "y"), el("table")))
	runCases(t, []matchCase{
		{"div>div#a.x.y", direct, true},
		{"div > div#a.x.y", direct, true},
		{"div.z>div#a.x.y", chain(), false},
	})
}

func TestCompile_MixedNesting(t *testing.T) {
	runCases(t, []matchCase{
		{"div div#a.x.y", chain(), true},
		{"div.z>div div#a.x.y", chain(), true},
		{"table>div.z div#a.x.y", chain(), true},
		{"div>table div#a.x.y", chain(), false},
		{"table>div.a div>div#a.x.y", chain(), false},
	})
}

// siblings builds table + div.z.f.x.y + div + div#a.x.y.z sibling chain.
func siblings() *dom.Node {
	table := el("table")
	first := withPrev(div("", "z", "f", "x", "y"), table)
	second := withPrev(el("div"), first)
	return withPrev(div("a", "x", "y", "z"), second)
}

func TestCompile_Siblings(t *testing.T) {
	runCases(t, []matchCase{
		{"div ~ div#a.x.y", siblings(), true},
		{"div.z + div ~ div#a.x.y", siblings(), true},
		{"table + div.z ~ div#a.x.y", siblings(), true},
		{"div + table ~ div#a.x.y", siblings(), false},
		{"table + div.a div + div#a.x.y", siblings(), false},
		{"table+div#a", siblings(), false},
	})
}

func TestCompile_StructuralPseudo(t *testing.T) {
	runCases(t, []matchCase{
		{"div:first-child", &dom.Node{Tag: "div", Next: el("div")}, true},
		{"div:first-child", &dom.Node{Tag: "div", Prev: el("div")}, false},
		{"div:last-child", &dom.Node{Tag: "div", Prev: el("div")}, true},
		{"div:last-child", &dom.Node{Tag: "div", Next: el("div")}, false},
		{"div:root", &dom.Node{Tag: "div", Prev: el("div")}, true},
		{"div:root", &dom.Node{Tag: "div", Parent: el("div")}, false},
		{"div:root", &dom.Node{Tag: "div", Parent: &dom.Node{Tag: "body", Root: true}}, true},
		{"div:only-child", div("a"), true},
		{"div:only-child", &dom.Node{Tag: "div", Prev: el("div")}, false},
		{"div:only-child", &dom.Node{Tag: "div", Next: el("div")}, false},
		{"div:empty", el("div"), true},
		{"div:empty", &dom.Node{Tag: "div", Children: []*dom.Node{dom.NewText("x")}}, false},
		{"div:first-of-type", &dom.Node{Tag: "div", IndexOfType: 0}, true},
		{"div:first-of-type", &dom.Node{Tag: "div", IndexOfType: 1}, false},
		{"div:last-of-type", &dom.Node{Tag: "div", LastOfType: true}, true},
		{"div:only-of-type", &dom.Node{Tag: "div", IndexOfType: 1, LastOfType: true}, false},
		{"input:required", withAttrs(el("input"), "required", ""), true},
		{"input:optional", withAttrs(el("input"), "required", ""), false},
	})
}

func TestCompile_StaticPseudo(t *testing.T) {
	runCases(t, []matchCase{
		{"a:link", el("a"), true},
		{"a:hover", el("a"), false},
		{"a:visited", el("a"), false},
		{"input:focus", el("input"), false},
		{"a:active", el("a"), false},
		{"p:lang(en)", el("p"), false},
		{"input::-webkit-input-placeholder", el("input"), false},
		{"input:-moz-focusring", el("input"), false},
		{"p:before", el("p"), true},
		{"p::after", el("p"), true},
	})
}

func TestCompile_UnknownPseudoIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := selector.NewCompiler(zap.New(core))

	m, err := c.Compile("p:first-line")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if m.Match(el("p")) {
		t.Error("unknown pseudo class must never match")
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["pseudo"]; got != "first-line" {
		t.Errorf("logged pseudo = %v, want first-line", got)
	}

	// vendor prefixed classes are dropped silently
	if _, err := c.Compile("p:-ms-clear"); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if logs.Len() != 1 {
		t.Errorf("vendor prefixed class must not be logged, got %d entries", logs.Len())
	}
}

func TestCompile_Not(t *testing.T) {
	n := &dom.Node{Tag: "div", ID: "a", Classes: []string{"x", "y", "z"}, Next: el("div")}
	runCases(t, []matchCase{
		{"div:not(:first-child)", &dom.Node{Tag: "div", Prev: el("div")}, true},
		{"div:not(:first-child)", n, false},
		{"div:not(.x)", n, false},
		{"div:not(:not(.x))", n, true},
		{"div:not(.a)", n, true},
		{"div:not([data-x])", n, true},
	})
}

func TestCompile_NthChild(t *testing.T) {
	at := func(i int) *dom.Node { return &dom.Node{Tag: "div", Index: i} }
	runCases(t, []matchCase{
		{"div:nth-child(3)", at(3), true},
		{"div:nth-child(3)", at(4), false},
		{"div:nth-child(3n)", at(3), true},
		{"div:nth-child(3n)", at(6), true},
		{"div:nth-child(3n)", at(7), false},
		{"div:nth-child(n+3)", at(3), true},
		{"div:nth-child(n+3)", at(4), true},
		{"div:nth-child(n+3)", at(2), false},
		{"div:nth-child(-n+3)", at(3), true},
		{"div:nth-child(-n+3)", at(2), true},
		{"div:nth-child(-n+3)", at(4), false},
		{"div:nth-child(2n+3)", at(3), true},
		{"div:nth-child(2n+3)", at(5), true},
		{"div:nth-child(2n+3)", at(6), false},
		{"div:nth-child(-2n+3)", at(3), true},
		{"div:nth-child(-2n+3)", at(1), true},
		{"div:nth-child(-2n+3)", at(5), false},
		{"div:nth-child( 2n + 1 )", at(5), true},
		{"div:nth-child(odd)", at(1), true},
		{"div:nth-child(even)", at(1), false},
		{"div:nth-child(even)", at(4), true},
	})
}

func TestCompile_NthChildMultiples(t *testing.T) {
	m := selector.MustCompile("div:nth-child(3n)")
	for i := 1; i <= 12; i++ {
		if got := m.Match(&dom.Node{Tag: "div", Index: i}); got != (i%3 == 0) {
			t.Errorf("index %d matched = %v", i, got)
		}
	}
	m = selector.MustCompile("div:nth-child(-n+3)")
	for i := 1; i <= 12; i++ {
		if got := m.Match(&dom.Node{Tag: "div", Index: i}); got != (i <= 3) {
			t.Errorf("index %d matched = %v", i, got)
		}
	}
}

func TestCompile_NthLastChildAndOfType(t *testing.T) {
	parent := &dom.Node{Tag: "ul", ChildrenCount: 5}
	item := func(i int) *dom.Node { return &dom.Node{Tag: "li", Index: i, IndexOfType: i - 1, Parent: parent} }
	runCases(t, []matchCase{
		{"li:nth-last-child(1)", item(5), true},
		{"li:nth-last-child(1)", item(4), false},
		{"li:nth-last-child(2n)", item(4), true},
		{"li:nth-last-child(odd)", item(1), true},
		{"li:nth-of-type(0)", item(1), true},
		{"li:nth-of-type(1)", item(1), false},
		{"li:nth-of-type(1)", item(2), true},
		{"li:nth-of-type(even)", item(1), true},
		{"li:nth-of-type(even)", item(2), false},
	})

	// without parent sibling chain is counted
	first := &dom.Node{Tag: "li", Index: 1}
	second := &dom.Node{Tag: "li", Index: 2, Prev: first}
	first.Next = second
	if !match(t, "li:nth-last-child(2)", first) {
		t.Error("expected first of two to be second from the end")
	}
}

func TestCompile_Attributes(t *testing.T) {
	a := func(v string) *dom.Node { return withAttrs(el("div"), "a", v) }
	none := el("div")
	runCases(t, []matchCase{
		{"[a]", a("b"), true},
		{"[a]", withAttrs(el("div"), "b", "b"), false},
		{"[a]", a(""), true},

		{`[a="b"]`, a("b"), true},
		{"[a=b]", a("b"), true},
		{"[a='b']", a("b"), true},
		{`[a="b"]`, a("bc"), false},
		{`[a=""]`, a("anything"), true},

		{`[a~="bb"]`, a("bb"), true},
		{`[a~="bb"]`, a("aa bb"), true},
		{`[a~="bb"]`, a("bbb"), false},
		{`[a~="bb"]`, none, false},

		{`[a|="bb"]`, a("bb"), true},
		{`[a|="bb"]`, a("bb-aaaa"), true},
		{`[a|="bb"]`, a("bbb"), false},
		{`[a|="bb"]`, a("x-bb-y"), false},

		{`[a^="bb"]`, a("bb"), true},
		{`[a^="bb"]`, a("bba"), true},
		{`[a^="**"]`, a("**a"), true},
		{`[a^="bb"]`, a("aabb"), false},
		{`[a^="bb"]`, none, false},

		{`[a$="bb"]`, a("bb"), true},
		{`[a$="bb"]`, a("aabb"), true},
		{`[a$="bb"]`, a("bba"), false},
		{`[a$="bb"]`, none, false},
		{`[a$=".*"]`, a("x"), false},

		{`[a*="bb"]`, a("abbc"), true},
		{`[a*="bb"]`, a("bba"), true},
		{`[a*="bb"]`, a("abb"), true},
		{`[a*="bb"]`, a("ab"), false},
		{`[a*="bb"]`, none, false},
		{`[a*=""]`, a("ab"), false},

		{`[ a = "b c" ]`, a("b c"), true},
		{`div[a="x y"].k`, &dom.Node{Tag: "div", Classes: []string{"k"}, Attrs: []dom.Attribute{{Key: "a", Val: "x y"}}}, true},
	})
}

func TestCompile_SyntaxErrors(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"[a!=b]",
		"[a%=b]",
		"[=b]",
		"div:nth-child(+)",
		"div:nth-child(n+)",
		"div:nth-child(abc)",
		"div:not(:nth-child(x))",
		"div[a",
		"div >",
		"+ div",
		"a ~ ~ b",
	}
	for _, sel := range bad {
		_, err := selector.Compile(sel)
		if err == nil {
			t.Errorf("Compile(%q) expected error", sel)
			continue
		}
		var se *selector.SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Compile(%q) error %v is not SyntaxError", sel, err)
		}
	}
}

func TestSpecificity(t *testing.T) {
	cases := []struct {
		sel  string
		want selector.Specificity
	}{
		{"*", selector.Specificity{0, 0, 0}},
		{"div", selector.Specificity{0, 0, 1}},
		{".a", selector.Specificity{0, 1, 0}},
		{"#a", selector.Specificity{1, 0, 0}},
		{"div.a#b[c]:first-child", selector.Specificity{1, 3, 1}},
		{"div + span", selector.Specificity{0, 0, 2}},
		{"span.t2", selector.Specificity{0, 1, 1}},
		{"ul li > a ~ b", selector.Specificity{0, 0, 4}},
		{"div:not(.x)", selector.Specificity{0, 2, 1}},
		{"p::before", selector.Specificity{0, 1, 1}},
	}
	for _, tc := range cases {
		m := selector.MustCompile(tc.sel)
		if got := selector.Of(m); got != tc.want {
			t.Errorf("Of(%q) = %v, want %v", tc.sel, got, tc.want)
		}
	}
}

func TestSpecificity_Ordering(t *testing.T) {
	id := selector.Of(selector.MustCompile("#x")).Value()
	classes := selector.Of(selector.MustCompile(".a.b.c.d.e.f.g.h[i][j]:first-child")).Value()
	if id <= classes {
		t.Errorf("id specificity %d must outrank classes %d", id, classes)
	}
	two := selector.Of(selector.MustCompile(".a.b")).Value()
	oneAndTags := selector.Of(selector.MustCompile("html body div ul li span.a")).Value()
	if two <= oneAndTags {
		t.Errorf("two classes %d must outrank one class with tags %d", two, oneAndTags)
	}
}

func TestBind(t *testing.T) {
	cases := []struct {
		sel  string
		kind selector.Kind
		key  string
		ok   bool
	}{
		{"div", selector.KindTag, "div", true},
		{"div.a", selector.KindClass, "a", true},
		{"div.a#b", selector.KindID, "b", true},
		{"#b span", selector.KindTag, "span", true},
		{"div *", 0, "", false},
		{"div > .x + p", selector.KindTag, "p", true},
		{"[a]", 0, "", false},
		{":not(.a)", 0, "", false},
		{"*", 0, "", false},
	}
	for _, tc := range cases {
		var (
			calls int
			kind  selector.Kind
			key   string
		)
		ok := selector.MustCompile(tc.sel).Bind(func(k selector.Kind, v string) {
			calls++
			kind, key = k, v
		})
		if ok != tc.ok {
			t.Errorf("Bind(%q) = %v, want %v", tc.sel, ok, tc.ok)
			continue
		}
		if !ok {
			if calls != 0 {
				t.Errorf("Bind(%q) called binder without claiming key", tc.sel)
			}
			continue
		}
		if calls != 1 || kind != tc.kind || key != tc.key {
			t.Errorf("Bind(%q) claimed (%v, %q) %d times, want (%v, %q) once", tc.sel, kind, key, calls, tc.kind, tc.key)
		}
	}
}

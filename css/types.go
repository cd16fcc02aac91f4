package css

import (
	"fmt"
	"regexp"
	"strings"
)

// cssEscapeDoubleQuoted escapes a string for use inside CSS double quotes.
func cssEscapeDoubleQuoted(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Declaration is a single property of a rule or of an inline style.
type Declaration struct {
	Property  string
	Value     string // value text with whitespace collapsed, without !important
	Important bool
}

// Rule is a rule set: selector group sharing the same declarations.
type Rule struct {
	Selectors    []string      // comma separated selectors, trimmed, in source order
	Declarations []Declaration // in source order, duplicates kept
}

// StylesheetItem is a single top-level item in a stylesheet.
// Exactly one of Rule or Import is non-nil.
type StylesheetItem struct {
	Rule   *Rule
	Import *string
}

// Stylesheet represents a parsed CSS stylesheet.
type Stylesheet struct {
	Items    []StylesheetItem // All top-level items in source order
	Warnings []string         // Things parser had to skip
}

// urlRewritePattern matches url() references in CSS values.
// Handles: url("path"), url('path'), url(path)
var urlRewritePattern = regexp.MustCompile(`url\s*\(\s*(?:["']([^"']*)["']|([^)"]*))\s*\)`)

// RewriteURLs replaces url() references in a CSS value string with whatever
// fn returns for them. Returning original url keeps the reference intact.
func RewriteURLs(value string, fn func(originalURL string) string) string {
	if !strings.Contains(value, "url") {
		return value
	}
	return urlRewritePattern.ReplaceAllStringFunc(value, func(match string) string {
		sub := urlRewritePattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return match
		}
		// Group 1 is quoted URL, group 2 is unquoted URL
		originalURL := sub[1]
		if originalURL == "" {
			originalURL = sub[2]
		}
		originalURL = strings.TrimSpace(originalURL)
		newURL := fn(originalURL)
		if newURL == originalURL {
			return match
		}
		return fmt.Sprintf("url(\"%s\")", cssEscapeDoubleQuoted(newURL))
	})
}

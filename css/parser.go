package css

import (
	"bytes"
	"errors"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS stylesheets into rule sets and imports.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. Parsing is forgiving: malformed
// declarations and unsupported at-rules are skipped and noted in Warnings.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := &Stylesheet{
		Items:    make([]StylesheetItem, 0),
		Warnings: make([]string, 0),
	}

	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	input := parse.NewInput(bytes.NewReader(data))
	parser := css.NewParser(input, false)

	var selectors []string
	lastErr := -1
	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			if done := p.handleError(parser, sheet, &lastErr); done {
				return sheet
			}

		case css.BeginAtRuleGrammar:
			// @media, @font-face, @page and friends do not style elements
			atRule := string(data)
			p.skipAtRuleBlock(parser)
			p.log.Debug("Skipping @-rule", zap.String("rule", atRule))

		case css.AtRuleGrammar:
			atRule := strings.ToLower(string(data))
			if atRule == "@import" {
				url := extractImportURL(parser.Values())
				if url != "" {
					sheet.Items = append(sheet.Items, StylesheetItem{Import: &url})
					p.log.Debug("Parsed @import", zap.String("url", url))
				} else {
					sheet.Warnings = append(sheet.Warnings, "malformed @import: "+tokensText(parser.Values()))
				}
			} else {
				p.log.Debug("Skipping @-rule", zap.String("rule", atRule))
			}

		case css.QualifiedRuleGrammar:
			selectors = append(selectors, splitSelectors(parser.Values())...)

		case css.BeginRulesetGrammar:
			selectors = append(selectors, splitSelectors(parser.Values())...)
			decls := p.parseDeclarations(parser, sheet, &lastErr)
			if len(selectors) > 0 {
				sheet.Items = append(sheet.Items, StylesheetItem{Rule: &Rule{Selectors: selectors, Declarations: decls}})
			} else {
				sheet.Warnings = append(sheet.Warnings, "rule without selector")
			}
			selectors = nil
		}
	}
}

// handleError handles ErrorGrammar, returns true when input is exhausted or
// parser is stuck.
func (p *Parser) handleError(parser *css.Parser, sheet *Stylesheet, lastErr *int) bool {
	err := parser.Err()
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	offset := parser.Offset()
	if offset == *lastErr {
		return true
	}
	*lastErr = offset
	p.log.Debug("CSS parse error", zap.Error(err))
	sheet.Warnings = append(sheet.Warnings, err.Error())
	return false
}

// extractImportURL extracts the URL from @import tokens.
// Handles: @import "url"; @import url("url"); @import url(url);
func extractImportURL(tokens []css.Token) string {
	for _, t := range tokens {
		switch t.TokenType {
		case css.StringToken:
			return unquote(string(t.Data))
		case css.URLToken:
			s := string(t.Data)
			s = s[strings.IndexByte(s, '(')+1:]
			s = strings.TrimSuffix(s, ")")
			return unquote(strings.TrimSpace(s))
		}
	}
	return ""
}

// splitSelectors splits selector group on top level commas.
func splitSelectors(values []css.Token) []string {
	var (
		selectors []string
		sb        strings.Builder
		depth     int
	)
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			selectors = append(selectors, s)
		}
		sb.Reset()
	}
	for _, v := range values {
		switch v.TokenType {
		case css.LeftParenthesisToken, css.LeftBracketToken, css.FunctionToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			depth--
		case css.CommaToken:
			if depth == 0 {
				flush()
				continue
			}
		}
		sb.Write(v.Data)
	}
	flush()
	return selectors
}

// parseDeclarations parses property declarations until EndRulesetGrammar.
func (p *Parser) parseDeclarations(parser *css.Parser, sheet *Stylesheet, lastErr *int) []Declaration {
	var decls []Declaration
	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.EndRulesetGrammar:
			return decls

		case css.ErrorGrammar:
			if done := p.handleError(parser, sheet, lastErr); done {
				return decls
			}

		case css.DeclarationGrammar:
			if d, ok := declaration(string(data), parser.Values()); ok {
				decls = append(decls, d)
			}

		case css.CustomPropertyGrammar:
			p.log.Debug("Skipping custom property", zap.ByteString("name", data))
		}
	}
}

// declaration builds Declaration from value tokens, trailing "!important"
// is removed and recorded.
func declaration(property string, tokens []css.Token) (Declaration, bool) {
	d := Declaration{Property: strings.TrimSpace(property)}
	if d.Property == "" {
		return d, false
	}

	end := len(tokens)
	for end > 0 && tokens[end-1].TokenType == css.WhitespaceToken {
		end--
	}
	if end > 0 && tokens[end-1].TokenType == css.IdentToken && strings.EqualFold(string(tokens[end-1].Data), "important") {
		bang := end - 2
		for bang >= 0 && tokens[bang].TokenType == css.WhitespaceToken {
			bang--
		}
		if bang >= 0 && tokens[bang].TokenType == css.DelimToken && string(tokens[bang].Data) == "!" {
			d.Important = true
			end = bang
		}
	}
	d.Value = tokensText(tokens[:end])
	return d, true
}

// tokensText joins tokens collapsing whitespace to single spaces.
func tokensText(tokens []css.Token) string {
	var sb strings.Builder
	space := false
	for _, t := range tokens {
		if t.TokenType == css.WhitespaceToken {
			space = sb.Len() > 0
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.Write(t.Data)
	}
	return sb.String()
}

// skipAtRuleBlock skips tokens until the matching end of an @-rule block.
func (p *Parser) skipAtRuleBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err == nil || errors.Is(err, io.EOF) {
				return
			}
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}

// ParseInline parses the content of a style attribute. Entries are separated
// by ';' and split on the first ':', entries without property are ignored.
// Trailing "!important" is removed from the value and recorded.
func ParseInline(style string) []Declaration {
	var decls []Declaration
	for entry := range strings.SplitSeq(style, ";") {
		property, value, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		d := Declaration{Property: strings.TrimSpace(property)}
		if d.Property == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= len("!important") && strings.EqualFold(value[len(value)-len("!important"):], "!important") {
			d.Important = true
			value = strings.TrimSpace(value[:len(value)-len("!important")])
		}
		d.Value = value
		decls = append(decls, d)
	}
	return decls
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

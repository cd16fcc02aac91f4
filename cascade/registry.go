package cascade

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cssapply/css"
	"cssapply/selector"
)

// Loader retrieves stylesheets referenced by @import.
type Loader interface {
	Load(path string) ([]byte, error)
}

// maxImportDepth limits nested @import chains.
const maxImportDepth = 16

// Registry stores compiled rules bucketed by the index key their selector
// claims. Appends must be serialized by the caller, once appends are done
// Registry may be used for matching from several goroutines.
type Registry struct {
	log      *zap.Logger
	parser   *css.Parser
	compiler *selector.Compiler

	wildcard []*Rule
	byTag    map[string][]*Rule
	byClass  map[string][]*Rule
	byID     map[string][]*Rule

	counter int
}

// NewRegistry creates empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:      log.Named("cascade"),
		parser:   css.NewParser(log),
		compiler: selector.NewCompiler(log),
		byTag:    make(map[string][]*Rule),
		byClass:  make(map[string][]*Rule),
		byID:     make(map[string][]*Rule),
	}
}

// Len returns number of registered rules.
func (r *Registry) Len() int {
	return r.counter
}

// Append parses stylesheet text, resolves its imports through l (which may
// be nil) and registers resulting rules. Append is atomic: when any selector
// fails to compile nothing from data is registered and all syntax errors are
// returned.
func (r *Registry) Append(data []byte, l Loader) error {
	return r.AppendStylesheet(r.parser.Parse(data), l)
}

// AppendStylesheet is like Append for already parsed stylesheet.
func (r *Registry) AppendStylesheet(sheet *css.Stylesheet, l Loader) error {
	rules, err := r.collect(sheet, l, 0, nil)
	if err != nil {
		return fmt.Errorf("unable to compile stylesheet: %w", err)
	}
	r.commit(rules)
	return nil
}

// collect compiles rules of the sheet with imported rules inlined at the
// position of their @import.
func (r *Registry) collect(sheet *css.Stylesheet, l Loader, depth int, chain []string) ([]*Rule, error) {
	for _, w := range sheet.Warnings {
		r.log.Debug("Stylesheet warning", zap.String("warning", w))
	}

	var (
		rules []*Rule
		errs  error
	)
	for _, item := range sheet.Items {
		switch {
		case item.Import != nil:
			imported, err := r.resolveImport(*item.Import, l, depth, chain)
			errs = multierr.Append(errs, err)
			rules = append(rules, imported...)

		case item.Rule != nil:
			for _, text := range item.Rule.Selectors {
				m, err := r.compiler.Compile(text)
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				rules = append(rules, &Rule{
					SelectorText: text,
					Selector:     m,
					Specificity:  selector.Of(m).Value(),
					Declarations: item.Rule.Declarations,
					Pseudo:       pseudoElementOf(text),
				})
			}
		}
	}
	if errs != nil {
		return nil, errs
	}
	return rules, nil
}

// resolveImport loads and compiles imported stylesheet. Targets which cannot
// be resolved are skipped without error.
func (r *Registry) resolveImport(url string, l Loader, depth int, chain []string) ([]*Rule, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "", strings.HasPrefix(url, "/"):
		r.log.Debug("Skipping @import", zap.String("url", url), zap.String("reason", "not relative"))
		return nil, nil
	case l == nil:
		r.log.Debug("Skipping @import", zap.String("url", url), zap.String("reason", "no loader"))
		return nil, nil
	case depth >= maxImportDepth || slices.Contains(chain, url):
		r.log.Debug("Skipping @import", zap.String("url", url), zap.String("reason", "import loop"))
		return nil, nil
	}

	data, err := l.Load(url)
	if err != nil {
		r.log.Debug("Skipping @import", zap.String("url", url), zap.Error(err))
		return nil, nil
	}
	rules, err := r.collect(r.parser.Parse(data, url), l, depth+1, append(slices.Clip(chain), url))
	if err != nil {
		return nil, fmt.Errorf("imported stylesheet %q: %w", url, err)
	}
	return rules, nil
}

// commit assigns ids, buckets rules and re-sorts affected buckets.
func (r *Registry) commit(rules []*Rule) {
	type bucketRef struct {
		kind selector.Kind
		key  string
	}
	touched := make(map[bucketRef]struct{})
	wildcard := false

	for _, rule := range rules {
		rule.ID = r.counter
		r.counter++

		bound := rule.Selector.Bind(func(kind selector.Kind, key string) {
			r.bucket(kind)[key] = append(r.bucket(kind)[key], rule)
			touched[bucketRef{kind, key}] = struct{}{}
		})
		if !bound {
			r.wildcard = append(r.wildcard, rule)
			wildcard = true
		}
	}

	if wildcard {
		slices.SortFunc(r.wildcard, compareRules)
	}
	for ref := range touched {
		slices.SortFunc(r.bucket(ref.kind)[ref.key], compareRules)
	}
	r.log.Debug("Rules registered", zap.Int("added", len(rules)), zap.Int("total", r.counter))
}

func (r *Registry) bucket(kind selector.Kind) map[string][]*Rule {
	switch kind {
	case selector.KindID:
		return r.byID
	case selector.KindClass:
		return r.byClass
	default:
		return r.byTag
	}
}

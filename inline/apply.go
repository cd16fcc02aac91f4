package inline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"cssapply/cascade"
	"cssapply/loader"
)

// Options describe single inlining run.
type Options struct {
	// HTML is document or fragment to process.
	HTML []byte
	// ContentType of HTML, optional, helps with encoding detection.
	ContentType string
	// CSS is applied before any stylesheet of the document itself.
	CSS string
	// Loader resolves <link> and @import references. When nil files are
	// read from Root through cache checking for changes every
	// ReloadInterval.
	Loader         loader.Loader
	Root           string
	ReloadInterval time.Duration

	InlineOptions

	Log *zap.Logger
}

// Apply inlines stylesheets of opts.HTML and returns resulting HTML.
func Apply(opts Options) (string, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	l := opts.Loader
	if l == nil {
		root := opts.Root
		if root == "" {
			root = "."
		}
		l = loader.NewCachedLoader(loader.NewFileLoader(root, log), opts.ReloadInterval, loader.WithLogger(log))
	}

	reg := cascade.NewRegistry(log)
	if opts.CSS != "" {
		if err := reg.Append([]byte(opts.CSS), l); err != nil {
			return "", fmt.Errorf("unable to use stylesheet: %w", err)
		}
	}

	doc := NewDocument(reg, l, log)
	if err := doc.Load(opts.HTML, opts.ContentType); err != nil {
		return "", err
	}
	return doc.Render(opts.InlineOptions)
}

// Package state defines shared program state.
package state

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"cssapply/config"
	"cssapply/loader"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// set once program failure has been written to the log
	ErrorLogged bool

	// used by apply subcommand
	NoDirs       bool
	Overwrite    bool
	CodePage     encoding.Encoding
	Charset      string
	StylesRoot   string
	DefaultStyle []byte

	loaders       map[string]*loader.CachedLoader
	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

// Loader returns stylesheet loader for directory root. Loaders are kept for
// the whole run so stylesheets shared by many documents are read once and
// re-read only when changed.
func (e *LocalEnv) Loader(root string) *loader.CachedLoader {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if l, ok := e.loaders[root]; ok {
		return l
	}

	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	var interval time.Duration
	if e.Cfg != nil {
		interval = e.Cfg.Document.ReloadInterval
	}
	l := loader.NewCachedLoader(loader.NewFileLoader(root, log), interval, loader.WithLogger(log))
	e.loaders[root] = l
	return l
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}

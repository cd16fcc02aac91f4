// Package loader retrieves stylesheets (and images) referenced by documents.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNotFound is returned when path cannot be resolved by a loader.
var ErrNotFound = errors.New("not found")

// Loader reads resources by path relative to its root.
type Loader interface {
	Load(path string) ([]byte, error)
	LastChangedAt(path string) (time.Time, error)
}

// clean turns reference from a document into fs.FS path. Query and fragment
// are dropped, references leaving the root are rejected.
func clean(name string) (string, error) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = path.Clean(strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./"))
	if !fs.ValidPath(name) || name == "." {
		return "", fmt.Errorf("invalid path %q: %w", name, fs.ErrInvalid)
	}
	return name, nil
}

// FileLoader reads files below Root directory.
type FileLoader struct {
	Root string
	fsys fs.FS
	log  *zap.Logger
}

// NewFileLoader creates loader reading files from root directory.
func NewFileLoader(root string, log *zap.Logger) *FileLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileLoader{Root: root, fsys: os.DirFS(root), log: log.Named("loader")}
}

// NewFSLoader creates loader on top of arbitrary file system.
func NewFSLoader(fsys fs.FS, log *zap.Logger) *FileLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileLoader{fsys: fsys, log: log.Named("loader")}
}

func (l *FileLoader) Load(name string) ([]byte, error) {
	p, err := clean(name)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return nil, fmt.Errorf("unable to load %q: %w", name, err)
	}
	l.log.Debug("Loaded", zap.String("path", p), zap.Int("bytes", len(data)))
	return data, nil
}

func (l *FileLoader) LastChangedAt(name string) (time.Time, error) {
	p, err := clean(name)
	if err != nil {
		return time.Time{}, err
	}
	fi, err := fs.Stat(l.fsys, p)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to stat %q: %w", name, err)
	}
	return fi.ModTime(), nil
}

// Map serves resources from memory, useful for stylesheets given on command
// line and for tests. Modification time of every entry is zero.
type Map map[string][]byte

func (m Map) Load(name string) ([]byte, error) {
	if data, ok := m[name]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
}

func (m Map) LastChangedAt(name string) (time.Time, error) {
	if _, ok := m[name]; ok {
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// Chain tries loaders in order and returns the first success.
type Chain []Loader

func (c Chain) Load(name string) ([]byte, error) {
	var errs []error
	for _, l := range c {
		data, err := l.Load(name)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return nil, multierr.Combine(errs...)
}

func (c Chain) LastChangedAt(name string) (time.Time, error) {
	var errs []error
	for _, l := range c {
		t, err := l.LastChangedAt(name)
		if err == nil {
			return t, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return time.Time{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return time.Time{}, multierr.Combine(errs...)
}

package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/multierr"

	"cssapply/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare creates empty report. When destination cannot be created report
// goes to temporary directory.
func (conf *ReporterConfig) Prepare() (*Report, error) {
	f, err := os.Create(conf.Destination)
	if err != nil {
		if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err != nil {
			return nil, fmt.Errorf("unable to create report: %w", err)
		}
	}
	return &Report{entries: make(map[string]entry), file: f}, nil
}

// entry is either in-memory data or a file system path read when report is
// closed.
type entry struct {
	source string
	path   string
	stamp  time.Time
	data   []byte
}

// Report collects logs, configuration, stylesheets and results of a run into
// zip archive. Not safe for concurrent use.
type Report struct {
	entries map[string]entry
	copies  []string // temporary snapshot directories
	file    *os.File
}

// Close writes archive and removes temporary snapshots.
func (r *Report) Close() (err error) {
	if r == nil || r.file == nil {
		return nil
	}
	defer func() {
		for _, dir := range r.copies {
			err = multierr.Append(err, os.RemoveAll(dir))
		}
		r.copies = nil
	}()
	defer r.file.Close()
	return r.write()
}

// Name returns absolute name of the archive.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store remembers file or directory to be archived as name. Content is read
// when report is closed.
func (r *Report) Store(name, path string) {
	if r == nil {
		return
	}
	if old, ok := r.entries[name]; ok && old.source != path {
		panic(fmt.Sprintf("report entry [%s] is already taken by %s, refusing %s", name, old.source, path))
	}
	e := entry{source: path, path: path}
	if abs, err := filepath.Abs(path); err == nil {
		e.path = abs
	}
	r.entries[name] = e
}

// StoreData archives data as name.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		return
	}
	if _, ok := r.entries[name]; ok {
		panic(fmt.Sprintf("report entry [%s] is already taken", name))
	}
	r.entries[name] = entry{data: data, stamp: time.Now()}
}

// StoreCopy snapshots file or directory right away, later changes do not
// reach the report. Taken names get timestamp suffix.
func (r *Report) StoreCopy(name, path string) error {
	if r == nil {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	e := entry{source: path, stamp: time.Now()}
	if _, ok := r.entries[name]; ok {
		name = fmt.Sprintf("%s-%d", name, e.stamp.UnixNano())
	}

	dir, err := os.MkdirTemp("", misc.GetAppName()+"-r-")
	if err != nil {
		return err
	}
	r.copies = append(r.copies, dir)
	if e.path, err = snapshot(dir, abs); err != nil {
		return err
	}
	r.entries[name] = e
	return nil
}

// snapshot copies src into dir and returns path to archive: the copied file
// or dir itself.
func snapshot(dir, src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		dst := filepath.Join(dir, filepath.Base(src))
		return dst, copyFile(dst, src, info.ModTime())
	}
	return dir, walkFiles(src, func(rel, path string, modTime time.Time) error {
		return copyFile(filepath.Join(dir, rel), path, modTime)
	})
}

// walkFiles calls fn for every regular file under root, links and other
// special files are ignored.
func walkFiles(root string, fn func(rel, path string, modTime time.Time) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(rel, path, info.ModTime())
	})
}

func copyFile(dst, src string, modTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, modTime, modTime)
}

// write produces archive with MANIFEST first and entries in manifest order.
// Paths which do not exist by now are skipped.
func (r *Report) write() error {
	zw := zip.NewWriter(r.file)
	defer zw.Close()

	now := time.Now()
	names := slices.Sorted(maps.Keys(r.entries))

	manifest := new(bytes.Buffer)
	for _, name := range names {
		e := r.entries[name]
		stamp := e.stamp
		if stamp.IsZero() {
			stamp = now
		}
		fmt.Fprintf(manifest, "%s\t%s\t%s : %s\n", stamp.UTC().Format(time.UnixDate), name, e.source, e.path)
	}
	if err := addFile(zw, "MANIFEST", now, manifest); err != nil {
		return err
	}

	for _, name := range names {
		e := r.entries[name]
		if len(e.data) > 0 {
			if err := addFile(zw, name, e.stamp, bytes.NewReader(e.data)); err != nil {
				return err
			}
			continue
		}
		if err := addPath(zw, name, e.path); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addPath(zw *zip.Writer, name, path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return nil
	case info.IsDir():
		return walkFiles(path, func(rel, file string, modTime time.Time) error {
			return addRegular(zw, filepath.ToSlash(filepath.Join(name, rel)), file, modTime)
		})
	case info.Mode().IsRegular():
		return addRegular(zw, name, path, info.ModTime())
	}
	return nil
}

func addRegular(zw *zip.Writer, name, path string, modTime time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return addFile(zw, name, modTime, f)
}

func addFile(zw *zip.Writer, name string, modTime time.Time, src io.Reader) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modTime})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// Package archive walks documents stored in zip archives.
package archive

import (
	"archive/zip"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// WalkFunc is called for each file in archive visited by Walk. The archive
// argument is path to archive passed to Walk, fsys gives access to all files
// of the archive (stylesheets and images referenced by the document), file is
// the entry itself. If an error is returned, processing stops.
type WalkFunc func(archive string, fsys fs.FS, file *zip.File) error

// Walk calls walkFn for every regular file in the archive which is located
// under prefix and accepted by match (nil match accepts everything). Archives
// with entries having absolute paths or path traversal components ("..") are
// rejected.
func Walk(archive, prefix string, match func(name string) bool, walkFn WalkFunc) error {

	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if f.FileInfo().IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if match != nil && !match(name) {
			continue
		}
		if err := walkFn(archive, &r.Reader, f); err != nil {
			return err
		}
	}
	return nil
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return false
	}
	for part := range strings.SplitSeq(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

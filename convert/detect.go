package convert

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"cssapply/config"
)

// isArchiveFile reports whether path is a zip archive. Extension is checked
// first, then file signature. Files which could not be opened are reported
// as errors, files with unexpected content are simply not archives.
func isArchiveFile(path string) (bool, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return false, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	// We only have to pass the file header = first 261 bytes
	head := make([]byte, 261)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}

// isDocumentFile reports whether name has one of configured document
// extensions. Our own output is never picked up as input.
func isDocumentFile(name string, cfg *config.DocumentConfig) bool {
	lower := strings.ToLower(name)
	if cfg.OutputExtension != "" && strings.HasSuffix(lower, strings.ToLower(cfg.OutputExtension)) {
		return false
	}
	for _, ext := range cfg.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

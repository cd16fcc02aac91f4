// Package convert implements apply subcommand: inlining stylesheets into HTML
// documents found in files, directories and zip archives.
package convert

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"cssapply/archive"
	"cssapply/cascade"
	"cssapply/inline"
	"cssapply/loader"
	"cssapply/state"
)

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("apply")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	src, err = filepath.Abs(src)
	if err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	if cmd.IsSet("preserve-class") {
		env.Cfg.Document.PreserveClass = cmd.Bool("preserve-class")
	}
	if cmd.IsSet("embed-images") {
		env.Cfg.Document.EmbedImages = cmd.Bool("embed-images")
	}

	stylesheet, root := env.Cfg.Document.StylesheetPath, env.Cfg.Document.StylesheetsRoot
	if cmd.IsSet("css") {
		stylesheet = cmd.String("css")
	}
	if cmd.IsSet("root") {
		root = cmd.String("root")
	}
	if err := prepareStyles(env, stylesheet, root, log); err != nil {
		return err
	}

	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")

	// Documents without proper declaration may need to be read in specific
	// code page
	if cs := cmd.String("charset"); len(cs) > 0 {
		if e, err := ianaindex.IANA.Encoding(cs); err != nil || e == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cs), zap.Error(err))
		} else {
			env.Charset = cs
			log.Debug("Forcefully decoding all documents", zap.String("charset", cs))
		}
	}

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	cp := cmd.String("force-zip-cp")
	if len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, log)
}

// prepareStyles reads default stylesheet and sets directory stylesheet
// references are resolved against. Both are copied into debug report as they
// were when processing started.
func prepareStyles(env *state.LocalEnv, stylesheet, root string, log *zap.Logger) (err error) {
	env.DefaultStyle = nil
	if stylesheet != "" {
		if env.DefaultStyle, err = os.ReadFile(stylesheet); err != nil {
			return fmt.Errorf("unable to read stylesheet from %q: %w", stylesheet, err)
		}
		if err := env.Rpt.StoreCopy("stylesheet/"+filepath.Base(stylesheet), stylesheet); err != nil {
			log.Warn("Unable to store stylesheet in report", zap.String("path", stylesheet), zap.Error(err))
		}
	}

	env.StylesRoot = ""
	if root == "" {
		return nil
	}
	if env.StylesRoot, err = filepath.Abs(root); err != nil {
		return err
	}
	if err := env.Rpt.StoreCopy("stylesheets", env.StylesRoot); err != nil {
		log.Warn("Unable to store stylesheets root in report", zap.String("path", env.StylesRoot), zap.Error(err))
	}
	return nil
}

// process determines the input type (directory, archive, or single file) and
// processes accordingly.
func process(ctx context.Context, src, dst string, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)

	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if err := processDir(ctx, head, dst, log); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			break
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		isArchive, err := isArchiveFile(head)
		if err != nil {
			// checking format - but cannot open target file
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if isArchive {
			// we need to look inside to see if path makes sense
			tail = strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator))
			if err := processArchive(ctx, head, filepath.ToSlash(tail), "", dst, log); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			break
		}

		if len(tail) == 0 && isDocumentFile(head, &env.Cfg.Document) {
			if err := processFile(ctx, head, filepath.Base(head), dst, log); err != nil {
				log.Error("Unable to process file", zap.String("file", head), zap.Error(err))
			}
			break
		}
		return fmt.Errorf("input was not recognized as HTML document (%s)", head)
	}
	if len(head) == 0 {
		return fmt.Errorf("input source was not found (%s)", src)
	}
	return nil
}

// processDir walks directory tree finding documents and archives and
// processes them in natural order of their paths.
func processDir(ctx context.Context, dir, dst string, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)

	var documents, archives []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		isArchive, err := isArchiveFile(path)
		if err != nil {
			// checking format - but cannot open target file
			log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		switch {
		case isArchive:
			archives = append(archives, path)
		case isDocumentFile(path, &env.Cfg.Document):
			documents = append(documents, path)
		default:
			log.Debug("Skipping file, not recognized as document or archive", zap.String("file", path))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(documents)+len(archives) == 0 {
		log.Debug("Nothing to process", zap.String("dir", dir))
		return nil
	}

	sort.Sort(natural.StringSlice(documents))
	sort.Sort(natural.StringSlice(archives))

	for _, path := range documents {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))
		if err := processFile(ctx, path, src, dst, log); err != nil {
			log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
		}
	}
	for _, path := range archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := processArchive(ctx, path, "", filepath.Dir(strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))), dst, log); err != nil {
			log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
		}
	}
	return nil
}

// processFile handles document on disk. Unless stylesheets root is
// configured references are resolved against document directory.
func processFile(ctx context.Context, path, src, dst string, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	root := env.StylesRoot
	if root == "" {
		root = filepath.Dir(path)
	}
	return processDocument(ctx, data, src, dst, env.Loader(root), log)
}

// processArchive walks all files inside archive, finds documents under
// "pathIn" and processes them. References are resolved inside the archive
// relative to the document, then against stylesheets root if any.
func processArchive(ctx context.Context, arcPath, pathIn, pathOut, dst string, log *zap.Logger) (err error) {
	env := state.EnvFromContext(ctx)

	count := 0
	defer func() {
		if err == nil && count == 0 {
			log.Debug("Nothing to process", zap.String("archive", arcPath))
		}
	}()

	match := func(name string) bool {
		return isDocumentFile(name, &env.Cfg.Document)
	}

	err = archive.Walk(arcPath, pathIn, match, func(archive string, fsys fs.FS, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		count++

		data, err := readArchived(f)
		if err != nil {
			log.Error("Unable to process file in archive",
				zap.String("archive", archive), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}

		sub, err := fs.Sub(fsys, path.Dir(f.FileHeader.Name))
		if err != nil {
			return err
		}
		var l loader.Loader = loader.NewFSLoader(sub, log)
		if env.StylesRoot != "" {
			l = loader.Chain{l, env.Loader(env.StylesRoot)}
		}

		pathInArchive := f.FileHeader.Name
		if cp := env.CodePage; cp != nil && f.FileHeader.NonUTF8 {
			// forcing zip file name encoding
			if n, err := cp.NewDecoder().String(pathInArchive); err == nil {
				pathInArchive = n
			} else {
				n, _ = ianaindex.IANA.Name(cp)
				log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", n), zap.String("path", pathInArchive), zap.Error(err))
			}
		}
		if err := processDocument(ctx, data, filepath.Join(pathOut, filepath.FromSlash(pathInArchive)), dst, l, log); err != nil {
			log.Error("Unable to process file in archive",
				zap.String("archive", archive), zap.String("file", f.FileHeader.Name), zap.Error(err))
		}
		return nil
	})
	return err
}

func readArchived(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// processDocument inlines styles of a single document. "src" is part of the
// source path (always including file name) relative to the original path.
// When actual file was specified it will be just base file name without a
// path. When looking inside archive or directory it will be relative path
// inside archive or directory (including base file name). "dst" is the
// destination directory where the result should be written.
func processDocument(ctx context.Context, data []byte, src, dst string, l loader.Loader, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	var outputName string

	log.Info("Inlining starting", zap.String("from", src))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Inlining ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("inlining panic: %v", r)
		} else if rerr == nil {
			log.Info("Inlining completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName))
		}
	}(time.Now())

	reg := cascade.NewRegistry(log)
	if len(env.DefaultStyle) > 0 {
		if err := reg.Append(env.DefaultStyle, l); err != nil {
			return fmt.Errorf("unable to use stylesheet: %w", err)
		}
	}

	var contentType string
	if env.Charset != "" {
		contentType = "text/html; charset=" + env.Charset
	}

	doc := inline.NewDocument(reg, l, log)
	if err := doc.Load(data, contentType); err != nil {
		return fmt.Errorf("unable to load document (%s): %w", src, err)
	}
	out, err := doc.Render(inline.InlineOptions{
		PreserveClass: env.Cfg.Document.PreserveClass,
		EmbedImages:   env.Cfg.Document.EmbedImages,
	})
	if err != nil {
		return err
	}

	// Determine output file name and path based on input and configuration.
	outputName = buildOutputPath(newValues(src, doc.Root()), src, dst, env)

	// Check if output file already exists
	if _, err := os.Stat(outputName); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", outputName)
		}
		log.Warn("Overwriting existing file", zap.String("file", outputName))
		if err = os.Remove(outputName); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(outputName), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	if err := os.WriteFile(outputName, []byte(out), 0644); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}

	// Store result for debugging
	if env.Rpt != nil {
		if rel, err := filepath.Rel(dst, outputName); err == nil {
			env.Rpt.Store("result/"+filepath.ToSlash(rel), outputName)
		}
	}
	return nil
}

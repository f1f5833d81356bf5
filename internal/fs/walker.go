package fs

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// WalkOptions configures a Walker.
type WalkOptions struct {
	Root           string
	MaxFileSize    int64 // 0 means no limit
	MaxFileCount   int   // 0 means no limit
	IgnorePatterns []string
	IncludeHidden  bool
}

// WalkStats counts what a walk saw.
type WalkStats struct {
	Files   int
	Skipped int
	Bytes   int64
}

// Walker yields the text files under a root, honouring .gitignore and the
// configured ignore patterns.
type Walker struct {
	opts    WalkOptions
	ignores []*gitignore.GitIgnore
	stats   WalkStats
}

// NewWalker creates a walker for opts.Root, which must be a directory.
func NewWalker(opts WalkOptions) (*Walker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	opts.Root = root

	w := &Walker{opts: opts}
	w.ignores = append(w.ignores, gitignore.CompileIgnoreLines(opts.IgnorePatterns...))
	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		gi, err := gitignore.CompileIgnoreFile(gitignorePath)
		if err != nil {
			log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
		} else {
			w.ignores = append(w.ignores, gi)
		}
	}
	return w, nil
}

// Root returns the absolute walk root.
func (w *Walker) Root() string {
	return w.opts.Root
}

// Stats returns the counts of the last walk.
func (w *Walker) Stats() WalkStats {
	return w.stats
}

// Walk calls fn for every text file in lexical order. It stops at the first
// error from fn or when ctx is done.
func (w *Walker) Walk(ctx context.Context, fn func(File) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == w.opts.Root {
			return nil
		}

		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.skip(d.Name(), rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.skip(d.Name(), rel) {
			w.stats.Skipped++
			return nil
		}
		if w.opts.MaxFileCount > 0 && w.stats.Files >= w.opts.MaxFileCount {
			log.Warn("File limit reached, stopping walk", "limit", w.opts.MaxFileCount)
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			w.stats.Skipped++
			return nil
		}
		f, ok := w.read(path, rel, info.Size())
		if !ok {
			w.stats.Skipped++
			return nil
		}

		w.stats.Files++
		w.stats.Bytes += f.Size
		return fn(f)
	})
}

// Ignored reports whether rel, a slash-separated path below the root, is
// excluded by the walk rules, including through one of its parents.
func (w *Walker) Ignored(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")
	for i, name := range parts {
		sub := strings.Join(parts[:i+1], "/")
		if i < len(parts)-1 || isDir {
			sub += "/"
		}
		if w.skip(name, sub) {
			return true
		}
	}
	return false
}

// Load reads one file below the root with the walk rules applied. ok is
// false when the file is ignored, oversized or binary.
func (w *Walker) Load(path string) (f File, ok bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, false, err
	}
	rel, err := filepath.Rel(w.opts.Root, abs)
	if err != nil {
		return File{}, false, err
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return File{}, false, fmt.Errorf("%s is outside %s", abs, w.opts.Root)
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(abs)
	if err != nil {
		return File{}, false, err
	}
	if !info.Mode().IsRegular() || w.Ignored(rel, false) {
		return File{}, false, nil
	}
	f, ok = w.read(abs, rel, info.Size())
	return f, ok, nil
}

func (w *Walker) read(path, rel string, size int64) (File, bool) {
	if w.opts.MaxFileSize > 0 && size > w.opts.MaxFileSize {
		log.Debug("Skipping large file", "path", rel, "size", size)
		return File{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug("Failed to read file", "path", rel, "error", err)
		return File{}, false
	}
	if isBinary(data) {
		return File{}, false
	}
	return File{
		Path:     path,
		RelPath:  rel,
		Size:     int64(len(data)),
		Hash:     HashContent(data),
		Language: DetectLanguage(path),
		Content:  string(data),
	}, true
}

func (w *Walker) skip(name, rel string) bool {
	if name == ".git" {
		return true
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	for _, ig := range w.ignores {
		if ig.MatchesPath(rel) {
			return true
		}
	}
	return false
}

// isBinary reports whether data looks like a binary file: a NUL byte in the
// first 8KB, or mostly control characters.
func isBinary(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	if len(head) == 0 {
		return false
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	control := 0
	for _, b := range head {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control)/float64(len(head)) > 0.3
}

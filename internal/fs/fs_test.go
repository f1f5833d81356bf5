package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"src/app.TSX", "typescript"},
		{"lib.rs", "rust"},
		{"notes.md", "markdown"},
		{"deploy/Dockerfile", "dockerfile"},
		{"Makefile", "make"},
		{"image.png", ""},
		{"LICENSE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
		})
	}
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, HashContent([]byte("hello")))
	assert.NotEqual(t, a, HashContent([]byte("hello!")))
}

func TestIsBinary(t *testing.T) {
	assert.False(t, isBinary(nil))
	assert.False(t, isBinary([]byte("package main\n\tfunc main() {}\r\n")))
	assert.True(t, isBinary([]byte{'a', 0, 'b'}))
	assert.True(t, isBinary([]byte{1, 2, 3, 4, 'a'}))
}

func numbered(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "line " + string(rune('a'+i%26))
	}
	return strings.Join(lines, "\n")
}

func TestChunker(t *testing.T) {
	type span struct{ start, end int }
	tests := []struct {
		name    string
		size    int
		overlap int
		content string
		want    []span
	}{
		{"empty", 10, 2, "", nil},
		{"whitespace", 10, 2, "  \n\n\t\n", nil},
		{"single chunk", 10, 2, numbered(7), []span{{1, 7}}},
		{"exact fit", 5, 0, numbered(10), []span{{1, 5}, {6, 10}}},
		{"overlap", 5, 2, numbered(11), []span{{1, 5}, {4, 8}, {7, 11}}},
		{"trailing newline ignored", 5, 0, numbered(5) + "\n", []span{{1, 5}}},
		{"overlap clamped", 3, 5, numbered(4), []span{{1, 3}, {2, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := NewChunker(tt.size, tt.overlap).Chunk(tt.content)
			var got []span
			for _, c := range chunks {
				got = append(got, span{c.StartLine, c.EndLine})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunkerContent(t *testing.T) {
	chunks := NewChunker(2, 0).Chunk("one\ntwo\n\n\nfive")
	require.Len(t, chunks, 2)
	assert.Equal(t, "one\ntwo", chunks[0].Content)
	assert.Equal(t, Chunk{Content: "five", StartLine: 5, EndLine: 5}, chunks[1])
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func walkAll(t *testing.T, w *Walker) []File {
	t.Helper()
	var files []File
	require.NoError(t, w.Walk(context.Background(), func(f File) error {
		files = append(files, f)
		return nil
	}))
	return files
}

func relPaths(files []File) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestWalker(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":             "package main\n",
		"docs/guide.md":       "# Guide\n",
		"build/out.txt":       "generated\n",
		"vendor/dep/x.go":     "package dep\n",
		".hidden/secret.txt":  "secret\n",
		".gitignore":          "build/\n*.log\n",
		"debug.log":           "noise\n",
		"image.bin":           "\x00\x01\x02",
		"big.txt":             strings.Repeat("x", 2048),
		"node_modules/a/b.js": "module.exports = 1\n",
	})

	w, err := NewWalker(WalkOptions{
		Root:           root,
		MaxFileSize:    1024,
		IgnorePatterns: []string{"vendor/", "node_modules/"},
	})
	require.NoError(t, err)

	files := walkAll(t, w)
	assert.Equal(t, []string{"docs/guide.md", "main.go"}, relPaths(files))

	main := files[1]
	assert.Equal(t, filepath.Join(w.Root(), "main.go"), main.Path)
	assert.Equal(t, "go", main.Language)
	assert.Equal(t, "package main\n", main.Content)
	assert.Equal(t, HashContent([]byte("package main\n")), main.Hash)
	assert.Equal(t, int64(len("package main\n")), main.Size)

	stats := w.Stats()
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 4, stats.Skipped)
}

func TestWalkerIncludeHidden(t *testing.T) {
	root := writeTree(t, map[string]string{
		".config/app.yaml": "a: 1\n",
		".git/HEAD":        "ref: refs/heads/main\n",
	})
	w, err := NewWalker(WalkOptions{Root: root, IncludeHidden: true})
	require.NoError(t, err)
	assert.Equal(t, []string{".config/app.yaml"}, relPaths(walkAll(t, w)))
}

func TestWalkerMaxFileCount(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	w, err := NewWalker(WalkOptions{Root: root, MaxFileCount: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, relPaths(walkAll(t, w)))
}

func TestWalkerCallbackError(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	w, err := NewWalker(WalkOptions{Root: root})
	require.NoError(t, err)

	stop := assert.AnError
	calls := 0
	err = w.Walk(context.Background(), func(File) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWalkerCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a"})
	w, err := NewWalker(WalkOptions{Root: root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.Walk(ctx, func(File) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewWalkerErrors(t *testing.T) {
	_, err := NewWalker(WalkOptions{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	root := writeTree(t, map[string]string{"file.txt": "x"})
	_, err = NewWalker(WalkOptions{Root: filepath.Join(root, "file.txt")})
	assert.Error(t, err)
}

func TestWalkerIgnored(t *testing.T) {
	root := writeTree(t, map[string]string{".gitignore": "*.log\ngen/\n"})
	w, err := NewWalker(WalkOptions{Root: root, IgnorePatterns: []string{"vendor/"}})
	require.NoError(t, err)

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"main.go", false, false},
		{"pkg/util.go", false, false},
		{"debug.log", false, true},
		{"gen", true, true},
		{"gen/out.go", false, true},
		{"vendor/dep/x.go", false, true},
		{".git/HEAD", false, true},
		{"pkg/.secret", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Ignored(tt.rel, tt.isDir))
		})
	}
}

func TestWalkerLoad(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/app.py": "print('hi')\n",
		"bin/tool":   "\x00ELF",
		"out.log":    "noise\n",
	})
	w, err := NewWalker(WalkOptions{Root: root, IgnorePatterns: []string{"*.log"}})
	require.NoError(t, err)

	f, ok, err := w.Load(filepath.Join(root, "src", "app.py"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "src/app.py", f.RelPath)
	assert.Equal(t, "python", f.Language)

	_, ok, err = w.Load(filepath.Join(root, "bin", "tool"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = w.Load(filepath.Join(root, "out.log"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = w.Load(filepath.Join(root, "src", "gone.py"))
	assert.Error(t, err)

	_, _, err = w.Load(filepath.Join(t.TempDir(), "elsewhere.txt"))
	assert.Error(t, err)
}

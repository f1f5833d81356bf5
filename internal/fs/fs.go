// Package fs walks a directory tree and splits text files into line-based
// chunks for ingestion.
package fs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// File is a text file found by the walker.
type File struct {
	Path     string // absolute path
	RelPath  string // slash-separated path relative to the walk root
	Size     int64
	Hash     string // xxhash of the contents
	Language string
	Content  string
}

// Chunk is a line range of a file.
type Chunk struct {
	Content   string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
}

// HashContent returns the hex xxhash of content.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

var languages = map[string]string{
	".go":    "go",
	".py":    "python",
	".pyi":   "python",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".proto": "protobuf",
	".md":    "markdown",
	".rst":   "text",
	".txt":   "text",
}

var filenames = map[string]string{
	"Makefile":   "make",
	"Dockerfile": "dockerfile",
	"go.mod":     "go",
}

// DetectLanguage guesses the language of a file from its name. It returns
// "" when unknown.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := filenames[base]; ok {
		return lang
	}
	return languages[strings.ToLower(filepath.Ext(base))]
}

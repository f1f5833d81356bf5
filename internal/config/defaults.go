package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// Store defaults
	DefaultSearchLimit = 10
	DefaultDBFileName  = "qdrant-mcp.db"

	// Embedding defaults
	DefaultEmbeddingProvider = "local"
	DefaultLocalModel        = "hash-ngram"
	DefaultLocalDimensions   = 384
	DefaultOpenAIModel       = "text-embedding-3-small"
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenAIVectorSize  = 1536
	DefaultOpenAITimeout     = 30 * time.Second
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaModel       = "nomic-embed-text"

	// Server defaults
	DefaultTransport = "stdio"
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 8000

	// Cache defaults
	DefaultCacheBackend    = "none"
	DefaultRedisAddr       = "localhost:6379"
	DefaultCacheTTL        = 24 * time.Hour
	DefaultCacheMaxEntries = 10000

	// Indexing defaults
	DefaultMaxFileSize  = 1 << 20 // 1MB
	DefaultMaxFileCount = 10000
	DefaultChunkSize    = 50
	DefaultChunkOverlap = 10
	DefaultBatchSize    = 32

	DefaultLogLevel = "info"
)

// Tool descriptions advertised to MCP clients unless overridden.
const (
	DefaultStoreDescription = "Keep the memory for later use, when you are asked to remember something."
	DefaultFindDescription  = "Look up memories in Qdrant. Use this tool when you need to: \n" +
		" - Find memories by their content \n" +
		" - Access memories for further analysis \n" +
		" - Get some personal information about the user"
)

// Accepted values for enumerated settings.
var (
	EmbeddingProviders = []string{"local", "openai-compatible", "openai", "ollama"}
	Transports         = []string{"stdio", "sse", "streamable-http"}
	CacheBackends      = []string{"none", "memory", "redis"}
	LogLevels          = []string{"debug", "info", "warn", "error", "fatal"}
	FieldTypes         = []string{"keyword", "integer", "float", "boolean"}
	Conditions         = []string{"==", "!=", ">", ">=", "<", "<=", "any", "except"}
)

// DefaultModel returns the default model name for an embedding provider.
func DefaultModel(provider string) string {
	switch provider {
	case "openai", "openai-compatible":
		return DefaultOpenAIModel
	case "ollama":
		return DefaultOllamaModel
	default:
		return DefaultLocalModel
	}
}

// DefaultIgnorePatterns returns the default list of file patterns to ignore
// when indexing a directory.
func DefaultIgnorePatterns() []string {
	return []string{
		// Lock files
		"*.lock",
		"package-lock.json",
		"go.sum",

		// Build outputs and dependencies
		"dist/",
		"build/",
		"target/",
		"__pycache__/",
		"node_modules/",
		"vendor/",
		".venv/",

		// Version control and editors
		".git/",
		".idea/",
		".vscode/",

		// Binary and media
		"*.exe",
		"*.so",
		"*.png",
		"*.jpg",
		"*.pdf",
		"*.zip",
		"*.tar.gz",

		// Minified
		"*.min.js",
		"*.map",

		// Misc
		".DS_Store",
		".env",
		"*.log",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "qdrant-mcp")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/qdrant-mcp"
	}
	return filepath.Join(home, ".config", "qdrant-mcp")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/qdrant-mcp"
	}
	return filepath.Join(home, ".local", "share", "qdrant-mcp")
}

// DefaultDatabasePath returns the default local database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}

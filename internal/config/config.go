// Package config handles configuration loading and validation for qdrant-mcp.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete qdrant-mcp configuration.
type Config struct {
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Server     ServerConfig     `mapstructure:"server"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Indexing   IndexingConfig   `mapstructure:"indexing"`
	Log        LogConfig        `mapstructure:"log"`
	Ignore     []string         `mapstructure:"ignore"`
}

// QdrantConfig configures the vector store and the query surface.
type QdrantConfig struct {
	URL                  string            `mapstructure:"url"`
	APIKey               string            `mapstructure:"api_key"`
	LocalPath            string            `mapstructure:"local_path"`
	CollectionName       string            `mapstructure:"collection_name"`
	SearchLimit          int               `mapstructure:"search_limit"`
	ReadOnly             bool              `mapstructure:"read_only"`
	ScoreThreshold       *float64          `mapstructure:"score_threshold"`
	AllowArbitraryFilter bool              `mapstructure:"allow_arbitrary_filter"`
	FilterableFields     []FilterableField `mapstructure:"filterable_fields"`
}

// FilterableField declares a payload attribute that find can filter on.
type FilterableField struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	FieldType   string `mapstructure:"field_type"`
	Condition   string `mapstructure:"condition"`
	Required    bool   `mapstructure:"required"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Model    string            `mapstructure:"model"`
	Local    LocalEmbedConfig  `mapstructure:"local"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
}

// LocalEmbedConfig configures the offline hashing embedder.
type LocalEmbedConfig struct {
	Dimensions int `mapstructure:"dimensions"`
}

// OpenAIEmbedConfig configures OpenAI and OpenAI-compatible embeddings.
type OpenAIEmbedConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	VectorSize int           `mapstructure:"vector_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL        string `mapstructure:"url"`
	VectorSize int    `mapstructure:"vector_size"`
}

// ToolsConfig holds the descriptions advertised for each tool.
type ToolsConfig struct {
	FindDescription  string `mapstructure:"find_description"`
	StoreDescription string `mapstructure:"store_description"`
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
}

// Addr returns the listen address for HTTP transports.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
}

// IndexingConfig configures the index command.
type IndexingConfig struct {
	MaxFileSize  int `mapstructure:"max_file_size"`
	MaxFileCount int `mapstructure:"max_file_count"`
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	BatchSize    int `mapstructure:"batch_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Qdrant: QdrantConfig{
			SearchLimit: DefaultSearchLimit,
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Local: LocalEmbedConfig{
				Dimensions: DefaultLocalDimensions,
			},
			OpenAI: OpenAIEmbedConfig{
				BaseURL:    DefaultOpenAIBaseURL,
				VectorSize: DefaultOpenAIVectorSize,
				Timeout:    DefaultOpenAITimeout,
			},
			Ollama: OllamaEmbedConfig{
				URL: DefaultOllamaURL,
			},
		},
		Tools: ToolsConfig{
			FindDescription:  DefaultFindDescription,
			StoreDescription: DefaultStoreDescription,
		},
		Server: ServerConfig{
			Transport: DefaultTransport,
			Host:      DefaultHost,
			Port:      DefaultPort,
		},
		Cache: CacheConfig{
			Backend:    DefaultCacheBackend,
			RedisAddr:  DefaultRedisAddr,
			TTL:        DefaultCacheTTL,
			MaxEntries: DefaultCacheMaxEntries,
		},
		Indexing: IndexingConfig{
			MaxFileSize:  DefaultMaxFileSize,
			MaxFileCount: DefaultMaxFileCount,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			BatchSize:    DefaultBatchSize,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// envBindings maps config keys to the environment variables that set them,
// in addition to the QDRANT_MCP_ prefixed form of the key.
var envBindings = map[string]string{
	"qdrant.url":                    "QDRANT_URL",
	"qdrant.api_key":                "QDRANT_API_KEY",
	"qdrant.local_path":             "QDRANT_LOCAL_PATH",
	"qdrant.collection_name":        "COLLECTION_NAME",
	"qdrant.search_limit":           "QDRANT_SEARCH_LIMIT",
	"qdrant.read_only":              "QDRANT_READ_ONLY",
	"qdrant.score_threshold":        "QDRANT_SCORE_THRESHOLD",
	"qdrant.allow_arbitrary_filter": "QDRANT_ALLOW_ARBITRARY_FILTER",
	"embeddings.provider":           "EMBEDDING_PROVIDER",
	"embeddings.model":              "EMBEDDING_MODEL",
	"embeddings.local.dimensions":   "EMBEDDING_DIMENSIONS",
	"embeddings.openai.api_key":     "OPENAI_API_KEY",
	"embeddings.openai.base_url":    "OPENAI_BASE_URL",
	"embeddings.openai.vector_size": "OPENAI_VECTOR_SIZE",
	"embeddings.openai.timeout":     "OPENAI_TIMEOUT",
	"embeddings.ollama.url":         "OLLAMA_URL",
	"tools.find_description":        "TOOL_FIND_DESCRIPTION",
	"tools.store_description":       "TOOL_STORE_DESCRIPTION",
	"server.transport":              "MCP_TRANSPORT",
	"server.host":                   "FASTMCP_HOST",
	"server.port":                   "PORT",
	"cache.backend":                 "EMBEDDING_CACHE",
	"cache.redis_addr":              "REDIS_ADDR",
	"cache.redis_password":          "REDIS_PASSWORD",
	"log.level":                     "LOG_LEVEL",
}

// Load reads configuration from defaults, an optional config file, a .env
// file in the working directory and environment variables.
func Load(configFile string) (*Config, error) {
	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not read .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QDRANT_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults sets default values in viper.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("qdrant.url", "")
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.local_path", "")
	v.SetDefault("qdrant.collection_name", "")
	v.SetDefault("qdrant.search_limit", d.Qdrant.SearchLimit)
	v.SetDefault("qdrant.read_only", false)
	v.SetDefault("qdrant.allow_arbitrary_filter", false)

	v.SetDefault("embeddings.provider", d.Embeddings.Provider)
	v.SetDefault("embeddings.model", "")
	v.SetDefault("embeddings.local.dimensions", d.Embeddings.Local.Dimensions)
	v.SetDefault("embeddings.openai.api_key", "")
	v.SetDefault("embeddings.openai.base_url", d.Embeddings.OpenAI.BaseURL)
	v.SetDefault("embeddings.openai.vector_size", d.Embeddings.OpenAI.VectorSize)
	v.SetDefault("embeddings.openai.timeout", d.Embeddings.OpenAI.Timeout)
	v.SetDefault("embeddings.ollama.url", d.Embeddings.Ollama.URL)
	v.SetDefault("embeddings.ollama.vector_size", 0)

	v.SetDefault("tools.find_description", d.Tools.FindDescription)
	v.SetDefault("tools.store_description", d.Tools.StoreDescription)

	v.SetDefault("server.transport", d.Server.Transport)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)

	v.SetDefault("indexing.max_file_size", d.Indexing.MaxFileSize)
	v.SetDefault("indexing.max_file_count", d.Indexing.MaxFileCount)
	v.SetDefault("indexing.chunk_size", d.Indexing.ChunkSize)
	v.SetDefault("indexing.chunk_overlap", d.Indexing.ChunkOverlap)
	v.SetDefault("indexing.batch_size", d.Indexing.BatchSize)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("ignore", d.Ignore)
}

// secondsToDurationHook accepts bare numbers ("30", 2.5) as seconds.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch val := data.(type) {
		case string:
			secs, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return data, nil
			}
			return time.Duration(secs * float64(time.Second)), nil
		case int:
			return time.Duration(val) * time.Second, nil
		case float64:
			return time.Duration(val * float64(time.Second)), nil
		}
		return data, nil
	}
}

// StoreLocation returns the remote URL, or the local database path when no
// URL is configured.
func (c *Config) StoreLocation() (url, localPath string) {
	if c.Qdrant.URL != "" {
		return c.Qdrant.URL, ""
	}
	if c.Qdrant.LocalPath != "" {
		return "", c.Qdrant.LocalPath
	}
	return "", DefaultDatabasePath()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Package embeddings turns text into vectors for storage and similarity search.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nickcecere/qdrant-mcp/internal/config"
)

// Provider defines the interface for embedding backends.
//
// Implementations are shared by concurrent callers and must not mutate
// state while embedding.
type Provider interface {
	// EmbedDocuments embeds a batch of texts, preserving input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single text. The result equals the first element
	// of EmbedDocuments called with that text alone.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// VectorSize returns the length of every vector this provider produces.
	VectorSize() int

	// VectorName returns the named-vector field used in collections that
	// store one vector per model.
	VectorName() string
}

// Provider kinds accepted by NewProvider.
const (
	KindLocal            = "local"
	KindOpenAICompatible = "openai-compatible"
	KindOpenAI           = "openai"
	KindOllama           = "ollama"
)

// ErrDimensionMismatch is returned when a backend produces vectors whose
// length differs from the provider's configured size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// BackendError carries the status and message of a failed backend call.
type BackendError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg config.EmbeddingsConfig) (Provider, error) {
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel(cfg.Provider)
	}

	switch cfg.Provider {
	case KindLocal:
		return NewLocalProvider(model, cfg.Local.Dimensions)
	case KindOpenAICompatible:
		return NewOpenAICompatibleProvider(OpenAICompatibleOptions{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      model,
			VectorSize: cfg.OpenAI.VectorSize,
			Timeout:    cfg.OpenAI.Timeout,
		})
	case KindOpenAI:
		return NewOpenAIProvider(
			cfg.OpenAI.APIKey,
			model,
			cfg.OpenAI.BaseURL,
			cfg.OpenAI.VectorSize,
			cfg.OpenAI.Timeout,
		)
	case KindOllama:
		return NewOllamaProvider(cfg.Ollama.URL, model, cfg.Ollama.VectorSize)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", config.ErrInvalid, cfg.Provider)
	}
}

// vectorName builds a vector field name that is stable for a model and safe
// to use as a collection vector key.
func vectorName(prefix, model string) string {
	return prefix + "-" + strings.NewReplacer("/", "-", ":", "-").Replace(model)
}

// checkVectors verifies a backend response against the request.
func checkVectors(vectors [][]float32, inputs, size int) error {
	if len(vectors) != inputs {
		return fmt.Errorf("expected %d embeddings, got %d", inputs, len(vectors))
	}
	for i, v := range vectors {
		if len(v) != size {
			return fmt.Errorf("%w: embedding %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), size)
		}
	}
	return nil
}

// first returns the single vector of a one-element batch.
func first(vectors [][]float32, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements Provider using the official OpenAI SDK.
type OpenAIProvider struct {
	client     openai.Client
	model      string
	vectorSize int
	// sendDimensions asks the API to shorten vectors when the configured
	// size differs from the model's native size.
	sendDimensions bool
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(apiKey, model, baseURL string, vectorSize int, timeout time.Duration) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	// Retries belong to the caller, not the provider.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	native := GetModelDimensions(model)
	if vectorSize == 0 {
		vectorSize = native
		if vectorSize == 0 {
			vectorSize = 1536
			log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", vectorSize)
		}
	}

	return &OpenAIProvider{
		client:         openai.NewClient(opts...),
		model:          model,
		vectorSize:     vectorSize,
		sendDimensions: native != 0 && native != vectorSize,
	}, nil
}

// EmbedDocuments embeds texts in one request.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embedTexts(ctx, texts)
}

// EmbedQuery embeds a single text.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(p.embedTexts(ctx, []string{text}))
}

// VectorSize returns the configured vector size.
func (p *OpenAIProvider) VectorSize() int {
	return p.vectorSize
}

// VectorName returns the vector field name for this model.
func (p *OpenAIProvider) VectorName() string {
	return vectorName("openai", p.model)
}

// embedTexts performs the actual embedding request.
func (p *OpenAIProvider) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from OpenAI", "model", p.model, "count", len(texts))

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if p.sendDimensions {
		params.Dimensions = openai.Int(int64(p.vectorSize))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &BackendError{
				Provider:   KindOpenAI,
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Message,
			}
		}
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	// Extract embeddings in order
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(embeddings) {
			continue
		}
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		embeddings[idx] = embedding
	}

	if err := checkVectors(embeddings, len(texts), p.vectorSize); err != nil {
		return nil, err
	}
	return embeddings, nil
}

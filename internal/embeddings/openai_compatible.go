package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// OpenAICompatibleOptions configures an OpenAICompatibleProvider.
type OpenAICompatibleOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	VectorSize int
	Timeout    time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// OpenAICompatibleProvider calls any server implementing the OpenAI
// /embeddings endpoint (OpenAI, vLLM, LM Studio, text-embeddings-inference).
type OpenAICompatibleProvider struct {
	baseURL    string
	apiKey     string
	model      string
	vectorSize int
	client     *http.Client
}

// embeddingRequest is the request body for the /embeddings endpoint.
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse is the response from the /embeddings endpoint.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     *int      `json:"index"`
	} `json:"data"`
}

// NewOpenAICompatibleProvider creates a provider for an OpenAI-style endpoint.
func NewOpenAICompatibleProvider(opts OpenAICompatibleOptions) (*OpenAICompatibleProvider, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if opts.VectorSize <= 0 {
		opts.VectorSize = GetModelDimensions(opts.Model)
		if opts.VectorSize == 0 {
			return nil, fmt.Errorf("vector size is required for model %q", opts.Model)
		}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &OpenAICompatibleProvider{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		vectorSize: opts.VectorSize,
		client:     client,
	}, nil
}

// EmbedDocuments embeds texts in one request.
func (p *OpenAICompatibleProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embedTexts(ctx, texts)
}

// EmbedQuery embeds a single text.
func (p *OpenAICompatibleProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(p.embedTexts(ctx, []string{text}))
}

// VectorSize returns the configured vector size.
func (p *OpenAICompatibleProvider) VectorSize() int {
	return p.vectorSize
}

// VectorName returns the vector field name for this model.
func (p *OpenAICompatibleProvider) VectorName() string {
	return vectorName("openai", p.model)
}

// embedTexts performs the actual embedding request.
func (p *OpenAICompatibleProvider) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	log.Debug("Requesting embeddings", "url", p.baseURL, "model", p.model, "count", len(texts))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &BackendError{
			Provider:   KindOpenAICompatible,
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(body),
		}
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Servers that send an index may return data out of order.
	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		idx := i
		if d.Index != nil {
			idx = *d.Index
		}
		if idx < 0 || idx >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		embeddings[idx] = d.Embedding
	}

	if err := checkVectors(embeddings, len(texts), p.vectorSize); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// apiErrorMessage extracts error.message from an OpenAI-style error body,
// falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(body))
}

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

// OllamaProvider implements Provider using a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	vectorSize int
	client     *http.Client
}

// ollamaEmbedRequest is the request body for the Ollama embed API.
type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Truncate  bool     `json:"truncate,omitempty"`
}

// ollamaEmbedResponse is the response from the Ollama embed API.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaProvider creates a new Ollama embedding provider. A zero
// vectorSize is looked up from the known model table.
func NewOllamaProvider(baseURL, model string, vectorSize int) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if vectorSize == 0 {
		vectorSize = GetModelDimensions(model)
		if vectorSize == 0 {
			return nil, fmt.Errorf("unknown dimensions for ollama model %q, set embeddings.ollama.vector_size", model)
		}
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		vectorSize: vectorSize,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// EmbedDocuments embeds texts in one request.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embedTexts(ctx, texts)
}

// EmbedQuery embeds a single text.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(p.embedTexts(ctx, []string{text}))
}

// VectorSize returns the embedding dimensions.
func (p *OllamaProvider) VectorSize() int {
	return p.vectorSize
}

// VectorName returns the vector field name for this model.
func (p *OllamaProvider) VectorName() string {
	return vectorName("ollama", p.model)
}

// embedTexts performs the actual embedding request.
func (p *OllamaProvider) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := ollamaEmbedRequest{
		Model:    p.model,
		Input:    texts,
		Truncate: true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/api/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting embeddings from Ollama", "model", p.model, "count", len(texts))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &BackendError{
			Provider:   KindOllama,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if err := checkVectors(result.Embeddings, len(texts), p.vectorSize); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Feature weights for the hashing embedder.
const (
	wordWeight    = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.25
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "is": true, "was": true, "are": true, "were": true,
	"be": true, "been": true, "it": true, "its": true, "this": true,
	"that": true, "these": true, "those": true, "do": true, "does": true,
}

// LocalProvider embeds text offline by hashing word, word-bigram and
// character-trigram features into a fixed number of buckets.
//
// Similar wording yields similar vectors; it has no notion of synonyms.
type LocalProvider struct {
	model      string
	dimensions int
}

// NewLocalProvider creates a hashing embedder with the given dimensions.
func NewLocalProvider(model string, dimensions int) (*LocalProvider, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("local embedder needs positive dimensions, got %d", dimensions)
	}
	return &LocalProvider{model: model, dimensions: dimensions}, nil
}

// EmbedDocuments embeds each text independently.
func (p *LocalProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(text)
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(p.EmbedDocuments(ctx, []string{text}))
}

// VectorSize returns the configured dimensions.
func (p *LocalProvider) VectorSize() int {
	return p.dimensions
}

// VectorName returns the vector field name for this model.
func (p *LocalProvider) VectorName() string {
	return vectorName("local", p.model)
}

func (p *LocalProvider) embed(text string) []float32 {
	vec := make([]float32, p.dimensions)
	words := tokenize(text)

	for i, w := range words {
		p.add(vec, "w:"+w, wordWeight)
		if i > 0 {
			p.add(vec, "b:"+words[i-1]+" "+w, bigramWeight)
		}
		padded := []rune("^" + w + "$")
		for j := 0; j+3 <= len(padded); j++ {
			p.add(vec, "c:"+string(padded[j:j+3]), trigramWeight)
		}
	}

	// Text made only of stop words or punctuation still gets a direction.
	if len(words) == 0 {
		p.add(vec, "raw:"+strings.ToLower(strings.TrimSpace(text)), wordWeight)
	}

	normalize(vec)
	return vec
}

// add hashes a feature into a bucket; the top hash bit picks the sign so
// collisions tend to cancel instead of accumulate.
func (p *LocalProvider) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(p.dimensions)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit, dropping stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	words := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			words = append(words, f)
		}
	}
	return words
}

// normalize scales vec to unit length in place.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

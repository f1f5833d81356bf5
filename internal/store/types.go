// Package store provides vector storage and retrieval behind a small client
// interface, with a remote Qdrant backend and a local SQLite + sqlite-vec one.
package store

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by every backend.
var (
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidFilter      = errors.New("invalid filter")
)

// Distance is the similarity metric of a vector field.
type Distance string

const DistanceCosine Distance = "Cosine"

// VectorParams describes one vector field of a collection.
type VectorParams struct {
	Size     int      `json:"size"`
	Distance Distance `json:"distance"`
}

// VectorsConfig is a collection's vector layout: either a single unnamed
// vector or a mapping of named vectors. Exactly one side is set.
type VectorsConfig struct {
	Unnamed *VectorParams           `json:"unnamed,omitempty"`
	Named   map[string]VectorParams `json:"named,omitempty"`
}

// IsNamed reports whether the layout is a mapping of named vectors.
func (v VectorsConfig) IsNamed() bool {
	return v.Unnamed == nil
}

// Params returns the parameters for a vector name. The empty name addresses
// the unnamed vector.
func (v VectorsConfig) Params(name string) (VectorParams, bool) {
	if name == "" {
		if v.Unnamed == nil {
			return VectorParams{}, false
		}
		return *v.Unnamed, true
	}
	p, ok := v.Named[name]
	return p, ok
}

func (v VectorsConfig) validate() error {
	if v.Unnamed != nil && len(v.Named) > 0 {
		return fmt.Errorf("vectors config cannot be both named and unnamed")
	}
	if v.Unnamed == nil && len(v.Named) == 0 {
		return fmt.Errorf("vectors config is empty")
	}
	if v.Unnamed != nil && v.Unnamed.Size <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", v.Unnamed.Size)
	}
	for name, p := range v.Named {
		if name == "" {
			return fmt.Errorf("named vector with empty name")
		}
		if p.Size <= 0 {
			return fmt.Errorf("vector %q size must be positive, got %d", name, p.Size)
		}
	}
	return nil
}

// CreateCollectionRequest describes a collection to create.
type CreateCollectionRequest struct {
	Name    string
	Vectors VectorsConfig
}

// CollectionInfo is the part of a collection's description callers need.
type CollectionInfo struct {
	Name        string
	Vectors     VectorsConfig
	PointsCount uint64
}

// Vectors holds a point's vectors: a dense unnamed vector or a set of named
// ones.
type Vectors struct {
	Dense []float32
	Named map[string][]float32
}

// DenseVector addresses the unnamed vector of a collection.
func DenseVector(v []float32) Vectors {
	return Vectors{Dense: v}
}

// NamedVector addresses one named vector of a collection.
func NamedVector(name string, v []float32) Vectors {
	return Vectors{Named: map[string][]float32{name: v}}
}

// Point is a record to upsert.
type Point struct {
	ID      string
	Vector  Vectors
	Payload map[string]any
}

// QueryRequest is a nearest-neighbour query.
type QueryRequest struct {
	Collection string
	Vector     []float32
	// Using names the vector field to search; empty for unnamed layouts.
	Using          string
	Limit          int
	Filter         *Filter
	ScoreThreshold *float64
}

// ScoredPoint is a query hit, best first.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// FieldType is the type of a payload index.
type FieldType string

const (
	FieldKeyword FieldType = "keyword"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldBool    FieldType = "boolean"
)

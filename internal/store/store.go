package store

import (
	"context"
	"fmt"
)

// Client defines the vector-store operations the connector relies on.
type Client interface {
	// Collection management
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateCollection returns ErrCollectionExists if the name is taken.
	CreateCollection(ctx context.Context, req CreateCollectionRequest) error
	CreatePayloadIndex(ctx context.Context, collection, field string, fieldType FieldType) error
	// CollectionInfo returns ErrCollectionNotFound for unknown collections.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	ListCollections(ctx context.Context) ([]string, error)

	// Points
	Upsert(ctx context.Context, collection string, points []Point) error
	Query(ctx context.Context, req QueryRequest) ([]ScoredPoint, error)
	Count(ctx context.Context, collection string) (uint64, error)
	// Delete removes the points matching filter, which must not be empty.
	Delete(ctx context.Context, collection string, filter *Filter) error

	Close() error
}

// Open returns the backend for a location. A non-empty url selects the
// remote Qdrant client, otherwise a SQLite database is opened at localPath.
func Open(ctx context.Context, url, apiKey, localPath string) (Client, error) {
	switch {
	case url != "" && localPath != "":
		return nil, fmt.Errorf("store url and local path are mutually exclusive")
	case url != "":
		return NewQdrant(ctx, url, apiKey)
	case localPath != "":
		return NewSQLite(localPath)
	default:
		return nil, fmt.Errorf("store url or local path is required")
	}
}

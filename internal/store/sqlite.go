package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLite implements Client on a local SQLite database, ranking with
// sqlite-vec's cosine distance. Filters and score thresholds are applied in
// process.
type SQLite struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLite opens or creates a database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened SQLite store", "path", dbPath)

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CollectionExists reports whether a collection exists.
func (s *SQLite) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM collections WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %q: %w", name, err)
	}
	return n > 0, nil
}

// CreateCollection creates a collection with the given vector layout.
func (s *SQLite) CreateCollection(ctx context.Context, req CreateCollectionRequest) error {
	if req.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if err := req.Vectors.validate(); err != nil {
		return err
	}
	cfg, err := json.Marshal(req.Vectors)
	if err != nil {
		return fmt.Errorf("failed to encode vectors config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, "INSERT INTO collections (name, vectors_config) VALUES (?, ?)", req.Name, string(cfg))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s", ErrCollectionExists, req.Name)
		}
		return fmt.Errorf("failed to create collection %q: %w", req.Name, err)
	}

	log.Debug("Created collection", "name", req.Name)
	return nil
}

// CreatePayloadIndex records a payload index. Filters are evaluated in
// process, so the record only documents the field.
func (s *SQLite) CreatePayloadIndex(ctx context.Context, collection, field string, fieldType FieldType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, _, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payload_indexes (collection_id, field, field_type) VALUES (?, ?, ?)
		ON CONFLICT(collection_id, field) DO UPDATE SET field_type = excluded.field_type
	`, id, field, string(fieldType))
	if err != nil {
		return fmt.Errorf("failed to create index on %q: %w", field, err)
	}
	return nil
}

// CollectionInfo returns a collection's vector layout and point count.
func (s *SQLite) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, vectors, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	count, err := s.count(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{Name: name, Vectors: vectors, PointsCount: count}, nil
}

// ListCollections returns all collection names, sorted.
func (s *SQLite) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Upsert inserts points, replacing any with the same ID.
func (s *SQLite) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collectionID, vectors, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range points {
		named, err := pointVectors(p, vectors)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of point %s: %w", p.ID, err)
		}

		var pointID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO points (collection_id, uuid, payload) VALUES (?, ?, ?)
			ON CONFLICT(collection_id, uuid) DO UPDATE SET payload = excluded.payload, updated_at = datetime('now')
			RETURNING id
		`, collectionID, p.ID, string(payload)).Scan(&pointID)
		if err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM point_vectors WHERE point_id = ?", pointID); err != nil {
			return fmt.Errorf("failed to delete old vectors: %w", err)
		}
		for name, vec := range named {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO point_vectors (point_id, vector_name, embedding) VALUES (?, ?, ?)
			`, pointID, name, serializeEmbedding(vec))
			if err != nil {
				return fmt.Errorf("failed to insert vector %q for point %s: %w", name, p.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Query ranks points by cosine similarity, best first.
func (s *SQLite) Query(ctx context.Context, req QueryRequest) ([]ScoredPoint, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("query limit must be positive, got %d", req.Limit)
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	collectionID, vectors, err := s.collection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	params, ok := vectors.Params(req.Using)
	if !ok {
		return nil, fmt.Errorf("collection %q has no vector named %q", req.Collection, req.Using)
	}
	if len(req.Vector) != params.Size {
		return nil, fmt.Errorf("query vector has %d dimensions, collection %q expects %d", len(req.Vector), req.Collection, params.Size)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.uuid, p.payload, vec_distance_cosine(v.embedding, ?) AS distance
		FROM point_vectors v
		JOIN points p ON p.id = v.point_id
		WHERE p.collection_id = ? AND v.vector_name = ?
		ORDER BY distance ASC, p.id ASC
	`, serializeEmbedding(req.Vector), collectionID, req.Using)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []ScoredPoint
	for rows.Next() {
		var id, payloadJSON string
		var distance float64
		if err := rows.Scan(&id, &payloadJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		score := 1 - distance
		// Rows are sorted by distance, so nothing later can pass.
		if req.ScoreThreshold != nil && score < *req.ScoreThreshold {
			break
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of point %s: %w", id, err)
		}
		if !req.Filter.Matches(payload) {
			continue
		}

		results = append(results, ScoredPoint{ID: id, Score: score, Payload: payload})
		if len(results) == req.Limit {
			break
		}
	}
	return results, rows.Err()
}

// Count returns the number of points in a collection.
func (s *SQLite) Count(ctx context.Context, collection string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, _, err := s.collection(ctx, collection)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, id)
}

// Delete removes the points whose payload matches filter.
func (s *SQLite) Delete(ctx context.Context, collection string, filter *Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("%w: delete needs a non-empty filter", ErrInvalidFilter)
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collectionID, _, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, payload FROM points WHERE collection_id = ?", collectionID)
	if err != nil {
		return fmt.Errorf("failed to scan points: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		var payloadJSON string
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan point: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			rows.Close()
			return fmt.Errorf("failed to decode payload of point %d: %w", id, err)
		}
		if filter.Matches(payload) {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM points WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete point: %w", err)
		}
	}
	log.Debug("Deleted points", "collection", collection, "count", len(ids))
	return tx.Commit()
}

// collection looks up a collection's ID and vector layout. Callers hold mu.
func (s *SQLite) collection(ctx context.Context, name string) (int64, VectorsConfig, error) {
	var id int64
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT id, vectors_config FROM collections WHERE name = ?", name).Scan(&id, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, VectorsConfig{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return 0, VectorsConfig{}, fmt.Errorf("failed to get collection %q: %w", name, err)
	}

	var vectors VectorsConfig
	if err := json.Unmarshal([]byte(raw), &vectors); err != nil {
		return 0, VectorsConfig{}, fmt.Errorf("failed to decode vectors config of %q: %w", name, err)
	}
	return id, vectors, nil
}

func (s *SQLite) count(ctx context.Context, collectionID int64) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE collection_id = ?", collectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

// pointVectors checks a point's vectors against the collection layout and
// returns them keyed by stored vector name.
func pointVectors(p Point, cfg VectorsConfig) (map[string][]float32, error) {
	out := make(map[string][]float32)
	if p.Vector.Named == nil {
		if cfg.IsNamed() {
			return nil, fmt.Errorf("point %s has an unnamed vector but the collection uses named vectors", p.ID)
		}
		out[""] = p.Vector.Dense
	} else {
		if !cfg.IsNamed() {
			return nil, fmt.Errorf("point %s has named vectors but the collection uses an unnamed vector", p.ID)
		}
		for name, vec := range p.Vector.Named {
			out[name] = vec
		}
	}

	var problems []string
	for name, vec := range out {
		params, ok := cfg.Params(name)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown vector %q", name))
			continue
		}
		if len(vec) != params.Size {
			problems = append(problems, fmt.Sprintf("vector %q has %d dimensions, expected %d", name, len(vec), params.Size))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("point %s: %s", p.ID, strings.Join(problems, "; "))
	}
	return out, nil
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	qdrantRESTPort = 6333
	qdrantGRPCPort = 6334
)

// Qdrant implements Client on top of Qdrant's gRPC API.
type Qdrant struct {
	client *qdrant.Client
}

// NewQdrant connects to a Qdrant server. rawURL takes the REST form
// (http://host:6333); the REST port is mapped to the gRPC port and https
// enables TLS.
func NewQdrant(ctx context.Context, rawURL, apiKey string) (*Qdrant, error) {
	cfg, err := qdrantConfig(rawURL, apiKey)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	log.Debug("Connected to Qdrant", "host", cfg.Host, "port", cfg.Port, "tls", cfg.UseTLS)
	return &Qdrant{client: client}, nil
}

// qdrantConfig parses a server URL into client configuration.
func qdrantConfig(rawURL, apiKey string) (*qdrant.Config, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url %q: %w", rawURL, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid qdrant url %q: missing host", rawURL)
	}

	useTLS := false
	switch u.Scheme {
	case "http", "grpc":
	case "https", "grpcs":
		useTLS = true
	default:
		return nil, fmt.Errorf("invalid qdrant url %q: unsupported scheme %q", rawURL, u.Scheme)
	}

	port := qdrantGRPCPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant url %q: bad port", rawURL)
		}
		if port == qdrantRESTPort {
			port = qdrantGRPCPort
		}
	}

	return &qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	}, nil
}

// Close closes the gRPC connections.
func (q *Qdrant) Close() error {
	return q.client.Close()
}

// CollectionExists reports whether a collection exists.
func (q *Qdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	ok, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %q: %w", name, err)
	}
	return ok, nil
}

// CreateCollection creates a collection with the given vector layout.
func (q *Qdrant) CreateCollection(ctx context.Context, req CreateCollectionRequest) error {
	if err := req.Vectors.validate(); err != nil {
		return err
	}

	var vectors *qdrant.VectorsConfig
	if req.Vectors.Unnamed != nil {
		vectors = qdrant.NewVectorsConfig(toQdrantParams(*req.Vectors.Unnamed))
	} else {
		params := make(map[string]*qdrant.VectorParams, len(req.Vectors.Named))
		for name, p := range req.Vectors.Named {
			params[name] = toQdrantParams(p)
		}
		vectors = qdrant.NewVectorsConfigMap(params)
	}

	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: req.Name,
		VectorsConfig:  vectors,
	})
	if err != nil {
		if isAlreadyExists(err) {
			return fmt.Errorf("%w: %s", ErrCollectionExists, req.Name)
		}
		return fmt.Errorf("failed to create collection %q: %w", req.Name, err)
	}
	return nil
}

// CreatePayloadIndex indexes a payload field.
func (q *Qdrant) CreatePayloadIndex(ctx context.Context, collection, field string, fieldType FieldType) error {
	ft, err := toQdrantFieldType(fieldType)
	if err != nil {
		return err
	}
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		FieldName:      field,
		FieldType:      ft.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index on %q: %w", field, err)
	}
	return nil
}

// CollectionInfo returns the collection's vector layout and point count.
func (q *Qdrant) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("failed to get collection %q: %w", name, err)
	}

	result := &CollectionInfo{Name: name, PointsCount: info.GetPointsCount()}
	cfg := info.GetConfig().GetParams().GetVectorsConfig()
	if p := cfg.GetParams(); p != nil {
		result.Vectors.Unnamed = &VectorParams{Size: int(p.GetSize()), Distance: fromQdrantDistance(p.GetDistance())}
	} else {
		result.Vectors.Named = make(map[string]VectorParams)
		for n, p := range cfg.GetParamsMap().GetMap() {
			result.Vectors.Named[n] = VectorParams{Size: int(p.GetSize()), Distance: fromQdrantDistance(p.GetDistance())}
		}
	}
	return result, nil
}

// ListCollections returns all collection names.
func (q *Qdrant) ListCollections(ctx context.Context) ([]string, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// Upsert writes points and waits for them to be applied.
func (q *Qdrant) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to convert payload of point %s: %w", p.ID, err)
		}
		pbPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: toQdrantVectors(p.Vector),
			Payload: payload,
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points into %q: %w", len(points), collection, err)
	}
	return nil
}

// Query runs a nearest-neighbour search.
func (q *Qdrant) Query(ctx context.Context, req QueryRequest) ([]ScoredPoint, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("query limit must be positive, got %d", req.Limit)
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}

	pbReq := &qdrant.QueryPoints{
		CollectionName: req.Collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Filter:         toQdrantFilter(req.Filter),
		Limit:          qdrant.PtrOf(uint64(req.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if req.Using != "" {
		pbReq.Using = qdrant.PtrOf(req.Using)
	}
	if req.ScoreThreshold != nil {
		pbReq.ScoreThreshold = qdrant.PtrOf(float32(*req.ScoreThreshold))
	}

	hits, err := q.client.Query(ctx, pbReq)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", req.Collection, err)
	}

	results := make([]ScoredPoint, len(hits))
	for i, hit := range hits {
		results[i] = ScoredPoint{
			ID:      pointID(hit.GetId()),
			Score:   float64(hit.GetScore()),
			Payload: fromQdrantPayload(hit.GetPayload()),
		}
	}
	return results, nil
}

// Count returns the exact number of points in a collection.
func (q *Qdrant) Count(ctx context.Context, collection string) (uint64, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %q: %w", collection, err)
	}
	return n, nil
}

// Delete removes the points matching filter.
func (q *Qdrant) Delete(ctx context.Context, collection string, filter *Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("%w: delete needs a non-empty filter", ErrInvalidFilter)
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points from %q: %w", collection, err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	// Older servers report a duplicate create as a bad request.
	var qErr *qdrant.QdrantError
	return errors.As(err, &qErr) && strings.Contains(err.Error(), "already exists")
}

func toQdrantParams(p VectorParams) *qdrant.VectorParams {
	return &qdrant.VectorParams{
		Size:     uint64(p.Size),
		Distance: qdrant.Distance_Cosine,
	}
}

func fromQdrantDistance(d qdrant.Distance) Distance {
	if d == qdrant.Distance_Cosine {
		return DistanceCosine
	}
	return Distance(d.String())
}

func toQdrantFieldType(t FieldType) (qdrant.FieldType, error) {
	switch t {
	case FieldKeyword:
		return qdrant.FieldType_FieldTypeKeyword, nil
	case FieldInteger:
		return qdrant.FieldType_FieldTypeInteger, nil
	case FieldFloat:
		return qdrant.FieldType_FieldTypeFloat, nil
	case FieldBool:
		return qdrant.FieldType_FieldTypeBool, nil
	default:
		return 0, fmt.Errorf("unsupported payload index type %q", t)
	}
}

func toQdrantVectors(v Vectors) *qdrant.Vectors {
	if v.Named == nil {
		return qdrant.NewVectors(v.Dense...)
	}
	named := make(map[string]*qdrant.Vector, len(v.Named))
	for name, vec := range v.Named {
		named[name] = qdrant.NewVector(vec...)
	}
	return qdrant.NewVectorsMap(named)
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	return &qdrant.Filter{
		Must:    toQdrantConditions(f.Must),
		Should:  toQdrantConditions(f.Should),
		MustNot: toQdrantConditions(f.MustNot),
	}
}

func toQdrantConditions(conds []Condition) []*qdrant.Condition {
	if len(conds) == 0 {
		return nil
	}
	out := make([]*qdrant.Condition, 0, len(conds))
	for i := range conds {
		out = append(out, toQdrantCondition(&conds[i]))
	}
	return out
}

// toQdrantCondition converts a validated condition.
func toQdrantCondition(c *Condition) *qdrant.Condition {
	if c.isNested() {
		return qdrant.NewFilterAsCondition(toQdrantFilter(c.nested()))
	}
	if c.Range != nil {
		return qdrant.NewRange(c.Key, &qdrant.Range{
			Gt:  c.Range.Gt,
			Gte: c.Range.Gte,
			Lt:  c.Range.Lt,
			Lte: c.Range.Lte,
		})
	}

	m := c.Match
	switch {
	case m.Text != nil:
		return qdrant.NewMatchText(c.Key, *m.Text)
	case m.Any != nil:
		if strs, ok := stringList(m.Any); ok {
			return qdrant.NewMatchKeywords(c.Key, strs...)
		}
		return qdrant.NewMatchInts(c.Key, intList(m.Any)...)
	case m.Except != nil:
		if strs, ok := stringList(m.Except); ok {
			return qdrant.NewMatchExcept(c.Key, strs...)
		}
		return qdrant.NewMatchExceptInts(c.Key, intList(m.Except)...)
	}

	switch v := m.Value.(type) {
	case bool:
		return qdrant.NewMatchBool(c.Key, v)
	case int64:
		return qdrant.NewMatchInt(c.Key, v)
	default:
		return qdrant.NewMatchKeyword(c.Key, fmt.Sprint(v))
	}
}

func stringList(values []any) ([]string, bool) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func intList(values []any) []int64 {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		if n, ok := v.(int64); ok {
			out = append(out, n)
		}
	}
	return out
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

// fromQdrantValue converts a protobuf value into the shapes encoding/json
// produces, except that integers stay int64.
func fromQdrantValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = fromQdrantValue(item)
		}
		return out
	default:
		return nil
	}
}

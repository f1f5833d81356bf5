package store

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantConfig(t *testing.T) {
	tests := []struct {
		url     string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{url: "http://localhost:6333", host: "localhost", port: 6334},
		{url: "http://localhost:6334", host: "localhost", port: 6334},
		{url: "https://xyz.cloud.qdrant.io:6333", host: "xyz.cloud.qdrant.io", port: 6334, tls: true},
		{url: "https://xyz.cloud.qdrant.io", host: "xyz.cloud.qdrant.io", port: 6334, tls: true},
		{url: "qdrant:7000", host: "qdrant", port: 7000},
		{url: "ftp://localhost", wantErr: true},
		{url: "http://", wantErr: true},
		{url: "http://localhost:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg, err := qdrantConfig(tt.url, "secret")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, cfg.Host)
			assert.Equal(t, tt.port, cfg.Port)
			assert.Equal(t, tt.tls, cfg.UseTLS)
			assert.Equal(t, "secret", cfg.APIKey)
		})
	}
}

func TestToQdrantFilter(t *testing.T) {
	assert.Nil(t, toQdrantFilter(nil))
	assert.Nil(t, toQdrantFilter(&Filter{}))

	f, err := ParseFilter([]byte(`{
		"must": [
			{"key": "metadata.color", "match": {"value": "red"}},
			{"key": "metadata.year", "match": {"value": 2024}},
			{"key": "metadata.draft", "match": {"value": true}},
			{"key": "metadata.price", "range": {"gte": 1, "lt": 5}},
			{"should": [{"key": "metadata.tag", "match": {"any": ["a", "b"]}}]}
		],
		"must_not": [
			{"key": "metadata.n", "match": {"except": [1, 2]}},
			{"key": "document", "match": {"text": "draft"}}
		]
	}`))
	require.NoError(t, err)

	pb := toQdrantFilter(f)
	require.NotNil(t, pb)
	require.Len(t, pb.Must, 5)
	require.Len(t, pb.MustNot, 2)
	assert.Empty(t, pb.Should)

	assert.Equal(t, qdrant.NewMatchKeyword("metadata.color", "red").String(), pb.Must[0].String())
	assert.Equal(t, qdrant.NewMatchInt("metadata.year", 2024).String(), pb.Must[1].String())
	assert.Equal(t, qdrant.NewMatchBool("metadata.draft", true).String(), pb.Must[2].String())

	r := pb.Must[3].GetField().GetRange()
	require.NotNil(t, r)
	assert.Equal(t, 1.0, r.GetGte())
	assert.Equal(t, 5.0, r.GetLt())
	assert.Nil(t, r.Gt)

	nested := pb.Must[4].GetFilter()
	require.NotNil(t, nested)
	require.Len(t, nested.Should, 1)
	assert.Equal(t, qdrant.NewMatchKeywords("metadata.tag", "a", "b").String(), nested.Should[0].String())

	assert.Equal(t, qdrant.NewMatchExceptInts("metadata.n", 1, 2).String(), pb.MustNot[0].String())
	assert.Equal(t, qdrant.NewMatchText("document", "draft").String(), pb.MustNot[1].String())
}

func TestToQdrantVectors(t *testing.T) {
	dense := toQdrantVectors(DenseVector([]float32{1, 2}))
	assert.NotNil(t, dense.GetVector())
	assert.Nil(t, dense.GetVectors())

	named := toQdrantVectors(NamedVector("openai-small", []float32{1, 2}))
	require.NotNil(t, named.GetVectors())
	assert.Contains(t, named.GetVectors().GetVectors(), "openai-small")
}

func TestToQdrantFieldType(t *testing.T) {
	for ft, want := range map[FieldType]qdrant.FieldType{
		FieldKeyword: qdrant.FieldType_FieldTypeKeyword,
		FieldInteger: qdrant.FieldType_FieldTypeInteger,
		FieldFloat:   qdrant.FieldType_FieldTypeFloat,
		FieldBool:    qdrant.FieldType_FieldTypeBool,
	} {
		got, err := toQdrantFieldType(ft)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := toQdrantFieldType("geo")
	assert.Error(t, err)
}

func TestFromQdrantPayload(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"document": "hello",
		"metadata": map[string]any{
			"startLine": 3,
			"score":     0.5,
			"ok":        true,
			"tags":      []any{"a", "b"},
			"none":      nil,
		},
	})

	got := fromQdrantPayload(payload)
	assert.Equal(t, "hello", got["document"])

	meta, ok := got["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), meta["startLine"])
	assert.Equal(t, 0.5, meta["score"])
	assert.Equal(t, true, meta["ok"])
	assert.Equal(t, []any{"a", "b"}, meta["tags"])
	assert.Nil(t, meta["none"])
}

func TestPointID(t *testing.T) {
	assert.Equal(t, "5c56c793-69f3-4fbf-87e6-c4bf54c28c26", pointID(qdrant.NewID("5c56c793-69f3-4fbf-87e6-c4bf54c28c26")))
	assert.Equal(t, "42", pointID(qdrant.NewIDNum(42)))
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/metrics"
	"github.com/nickcecere/qdrant-mcp/internal/store"
)

// Tool names.
const (
	FindToolName  = "qdrant-find"
	StoreToolName = "qdrant-store"
)

// Parameter names.
const (
	paramQuery       = "query"
	paramCollection  = "collection_name"
	paramQueryFilter = "query_filter"
	paramInformation = "information"
	paramMetadata    = "metadata"
)

type findArgs struct {
	Query      string
	Collection string
	Filter     *store.Filter
}

// findBinder turns raw find arguments into a search, with the collection
// curried and the filter surface resolved from the configuration.
type findBinder struct {
	params            paramSet
	defaultCollection string
	fields            []config.FilterableField
	arbitrary         bool
}

func newFindBinder(q config.QdrantConfig) (*findBinder, error) {
	b := &findBinder{
		defaultCollection: q.CollectionName,
		arbitrary:         q.AllowArbitraryFilter,
	}
	b.params = append(b.params, param{Name: paramQuery, Type: typeString, Description: "What to search for", Required: true})
	if b.defaultCollection == "" {
		b.params = append(b.params, param{Name: paramCollection, Type: typeString, Description: "The collection to search in", Required: true})
	}

	for _, f := range q.FilterableFields {
		if f.Condition == "" {
			continue
		}
		if _, taken := b.params.lookup(f.Name); taken || f.Name == paramQueryFilter {
			return nil, fmt.Errorf("%w: filterable field %q clashes with a tool parameter", config.ErrInvalid, f.Name)
		}
		b.fields = append(b.fields, f)
		b.params = append(b.params, fieldParam(f))
	}

	if b.arbitrary {
		b.params = append(b.params, param{
			Name:        paramQueryFilter,
			Type:        typeObject,
			Description: "Qdrant filter with must, should and must_not conditions on payload keys such as metadata.<field>",
		})
	}
	return b, nil
}

func (b *findBinder) bind(raw json.RawMessage) (findArgs, error) {
	args, err := b.params.decode(raw)
	if err != nil {
		return findArgs{}, err
	}

	out := findArgs{Query: args[paramQuery].(string), Collection: b.defaultCollection}
	if c, ok := args[paramCollection].(string); ok {
		out.Collection = c
	}

	byFields, err := fieldFilter(b.fields, args)
	if err != nil {
		return findArgs{}, err
	}
	var arbitrary *store.Filter
	if v, ok := args[paramQueryFilter].(map[string]any); ok {
		if arbitrary, err = parseArbitraryFilter(v); err != nil {
			return findArgs{}, err
		}
	}
	out.Filter = combineFilters(byFields, arbitrary)
	return out, nil
}

// describeFields appends the filterable fields to the find description.
// Fields without a condition can only be used through query_filter.
func (b *findBinder) describeFields(description string, fields []config.FilterableField) string {
	if len(fields) == 0 {
		return description
	}
	var sb strings.Builder
	sb.WriteString(description)
	sb.WriteString("\n\nFilterable metadata fields:")
	for _, f := range fields {
		fmt.Fprintf(&sb, "\n - metadata.%s (%s)", f.Name, f.FieldType)
		if f.Description != "" {
			fmt.Fprintf(&sb, ": %s", f.Description)
		}
		if f.Condition == "" && !b.arbitrary {
			sb.WriteString(" [not filterable through this tool]")
		}
	}
	return sb.String()
}

type storeArgs struct {
	Information string
	Collection  string
	Metadata    map[string]any
}

type storeBinder struct {
	params            paramSet
	defaultCollection string
}

func newStoreBinder(q config.QdrantConfig) *storeBinder {
	b := &storeBinder{defaultCollection: q.CollectionName}
	b.params = append(b.params, param{Name: paramInformation, Type: typeString, Description: "Text to store", Required: true})
	if b.defaultCollection == "" {
		b.params = append(b.params, param{Name: paramCollection, Type: typeString, Description: "The collection to store the information in", Required: true})
	}
	b.params = append(b.params, param{
		Name:        paramMetadata,
		Type:        typeObject,
		Description: "Extra metadata stored along with memorised information. Any json is accepted.",
	})
	return b
}

func (b *storeBinder) bind(raw json.RawMessage) (storeArgs, error) {
	args, err := b.params.decode(raw)
	if err != nil {
		return storeArgs{}, err
	}
	out := storeArgs{Information: args[paramInformation].(string), Collection: b.defaultCollection}
	if c, ok := args[paramCollection].(string); ok {
		out.Collection = c
	}
	if m, ok := args[paramMetadata].(map[string]any); ok {
		out.Metadata = m
	}
	return out, nil
}

// Tools exposes the connector as MCP tools.
type Tools struct {
	conn     *connector.Connector
	cfg      config.ToolsConfig
	fields   []config.FilterableField
	readOnly bool

	find  *findBinder
	store *storeBinder
}

// NewTools resolves the tool parameter surface from cfg.
func NewTools(conn *connector.Connector, cfg *config.Config) (*Tools, error) {
	find, err := newFindBinder(cfg.Qdrant)
	if err != nil {
		return nil, err
	}
	return &Tools{
		conn:     conn,
		cfg:      cfg.Tools,
		fields:   cfg.Qdrant.FilterableFields,
		readOnly: cfg.Qdrant.ReadOnly,
		find:     find,
		store:    newStoreBinder(cfg.Qdrant),
	}, nil
}

// Register adds the tools to s. The store tool is left out in read-only
// mode.
func (t *Tools) Register(s *mcp.Server) {
	s.AddTool(&mcp.Tool{
		Name:        FindToolName,
		Description: t.find.describeFields(t.cfg.FindDescription, t.fields),
		InputSchema: t.find.params.schema(),
	}, t.handleFind)

	if t.readOnly {
		log.Debug("Read-only mode, not registering tool", "tool", StoreToolName)
		return
	}
	s.AddTool(&mcp.Tool{
		Name:        StoreToolName,
		Description: t.cfg.StoreDescription,
		InputSchema: t.store.params.schema(),
	}, t.handleStore)
}

func (t *Tools) handleFind(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(FindToolName, func() (string, error) {
		args, err := t.find.bind(req.Params.Arguments)
		if err != nil {
			return "", err
		}
		log.Debug("Finding", "query", args.Query, "collection", args.Collection, "filtered", args.Filter != nil)

		entries, err := t.conn.Search(ctx, args.Query, connector.SearchOptions{
			Collection: args.Collection,
			Filter:     args.Filter,
		})
		if err != nil {
			return "", err
		}
		return FormatResults(args.Query, entries), nil
	}), nil
}

func (t *Tools) handleStore(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(StoreToolName, func() (string, error) {
		args, err := t.store.bind(req.Params.Arguments)
		if err != nil {
			return "", err
		}
		log.Debug("Storing", "collection", args.Collection, "bytes", len(args.Information))

		entry := connector.Entry{Content: args.Information, Metadata: args.Metadata}
		if err := t.conn.Store(ctx, entry, args.Collection); err != nil {
			return "", err
		}
		return fmt.Sprintf("Remembered: %s in collection %s", args.Information, args.Collection), nil
	}), nil
}

// call runs a tool body and reports its error as a tool error result.
func (t *Tools) call(tool string, fn func() (string, error)) *mcp.CallToolResult {
	start := time.Now()
	text, err := fn()
	metrics.ToolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	metrics.ToolCallsTotal.WithLabelValues(tool, metrics.Status(err)).Inc()

	if err != nil {
		log.Warn("Tool call failed", "tool", tool, "error", err)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// FormatResults renders search results as numbered text entries.
func FormatResults(query string, entries []connector.Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No results found for the query '%s'.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for the query '%s':\n\n", query)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. ", i+1)
		sb.WriteString(formatEntry(e))
	}
	return sb.String()
}

func formatEntry(e connector.Entry) string {
	var lines []string
	if path, ok := e.Metadata["filePath"]; ok && path != "" {
		lines = append(lines, fmt.Sprintf("File path: %v", path))
	}
	if e.Score != nil {
		lines = append(lines, fmt.Sprintf("Score: %.4f", *e.Score))
	}
	start, hasStart := e.Metadata["startLine"]
	end, hasEnd := e.Metadata["endLine"]
	if hasStart && hasEnd {
		lines = append(lines, fmt.Sprintf("Lines: %v-%v", start, end))
	}
	lines = append(lines, "Content: "+e.Content)
	return strings.Join(lines, "\n")
}

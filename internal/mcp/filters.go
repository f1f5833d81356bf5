package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/store"
)

// fieldParam returns the tool parameter exposing a filterable field.
func fieldParam(f config.FilterableField) param {
	p := param{
		Name:        f.Name,
		Type:        schemaType(f.FieldType),
		Description: f.Description,
		Required:    f.Required,
	}
	if f.Condition == "any" || f.Condition == "except" {
		p.Items = p.Type
		p.Type = typeArray
	}
	return p
}

func schemaType(fieldType string) string {
	switch fieldType {
	case "integer":
		return typeInteger
	case "float":
		return typeNumber
	case "boolean":
		return typeBoolean
	default:
		return typeString
	}
}

// fieldFilter builds the filter for the filterable fields present in args.
// It returns nil when none of them were given.
func fieldFilter(fields []config.FilterableField, args map[string]any) (*store.Filter, error) {
	f := &store.Filter{}
	for _, field := range fields {
		v, ok := args[field.Name]
		if !ok {
			continue
		}
		if err := addFieldCondition(f, field, v); err != nil {
			return nil, err
		}
	}
	if f.IsEmpty() {
		return nil, nil
	}
	return f, nil
}

func addFieldCondition(f *store.Filter, field config.FilterableField, v any) error {
	key := connector.MetadataField(field.Name)
	switch field.Condition {
	case "==", "!=":
		cond := store.MatchValue(key, v)
		if field.FieldType == "float" {
			x := v.(float64)
			cond = store.RangeCondition(key, store.Range{Gte: &x, Lte: &x})
		}
		if field.Condition == "==" {
			f.Must = append(f.Must, cond)
		} else {
			f.MustNot = append(f.MustNot, cond)
		}
	case ">", ">=", "<", "<=":
		x, err := toFloat(v)
		if err != nil {
			return fmt.Errorf("%w: parameter %s: %v", ErrInvalidParams, field.Name, err)
		}
		var r store.Range
		switch field.Condition {
		case ">":
			r.Gt = &x
		case ">=":
			r.Gte = &x
		case "<":
			r.Lt = &x
		case "<=":
			r.Lte = &x
		}
		f.Must = append(f.Must, store.RangeCondition(key, r))
	case "any":
		f.Must = append(f.Must, store.MatchAny(key, v.([]any)...))
	case "except":
		f.Must = append(f.Must, store.MatchExcept(key, v.([]any)...))
	default:
		return fmt.Errorf("%w: unsupported condition %q on %s", ErrInvalidParams, field.Condition, field.Name)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// parseArbitraryFilter converts a decoded query_filter object.
func parseArbitraryFilter(v map[string]any) (*store.Filter, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: query_filter: %v", ErrInvalidParams, err)
	}
	f, err := store.ParseFilter(data)
	if err != nil {
		return nil, fmt.Errorf("%w: query_filter: %w", ErrInvalidParams, err)
	}
	if f.IsEmpty() {
		return nil, nil
	}
	return f, nil
}

// combineFilters joins the non-nil filters so all of them must hold.
func combineFilters(filters ...*store.Filter) *store.Filter {
	var present []*store.Filter
	for _, f := range filters {
		if f != nil {
			present = append(present, f)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}
	combined := &store.Filter{}
	for _, f := range present {
		combined.Must = append(combined.Must, store.Nested(f))
	}
	return combined
}

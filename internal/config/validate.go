package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validate checks the configuration for conflicting or out-of-range settings.
// Every returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var problems []string

	if c.Qdrant.LocalPath != "" && (c.Qdrant.URL != "" || c.Qdrant.APIKey != "") {
		problems = append(problems, "qdrant.local_path cannot be combined with qdrant.url or qdrant.api_key")
	}
	if c.Qdrant.SearchLimit <= 0 {
		problems = append(problems, fmt.Sprintf("qdrant.search_limit must be positive, got %d", c.Qdrant.SearchLimit))
	}

	if c.Embeddings.Provider != "" && !slices.Contains(EmbeddingProviders, c.Embeddings.Provider) {
		problems = append(problems, fmt.Sprintf("unknown embedding provider %q (expected one of %s)",
			c.Embeddings.Provider, strings.Join(EmbeddingProviders, ", ")))
	}
	switch c.Embeddings.Provider {
	case "local":
		if c.Embeddings.Local.Dimensions <= 0 {
			problems = append(problems, "embeddings.local.dimensions must be positive")
		}
	case "openai", "openai-compatible":
		if c.Embeddings.OpenAI.VectorSize <= 0 {
			problems = append(problems, "embeddings.openai.vector_size must be positive")
		}
		if c.Embeddings.OpenAI.Timeout < 0 {
			problems = append(problems, "embeddings.openai.timeout cannot be negative")
		}
	}

	if !slices.Contains(Transports, c.Server.Transport) {
		problems = append(problems, fmt.Sprintf("unknown transport %q (expected one of %s)",
			c.Server.Transport, strings.Join(Transports, ", ")))
	}
	if !slices.Contains(CacheBackends, c.Cache.Backend) {
		problems = append(problems, fmt.Sprintf("unknown cache backend %q (expected one of %s)",
			c.Cache.Backend, strings.Join(CacheBackends, ", ")))
	}
	if !slices.Contains(LogLevels, strings.ToLower(c.Log.Level)) {
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	problems = append(problems, validateFilterableFields(c.Qdrant.FilterableFields)...)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func validateFilterableFields(fields []FilterableField) []string {
	var problems []string
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			problems = append(problems, fmt.Sprintf("filterable field #%d has no name", i))
			continue
		}
		if seen[f.Name] {
			problems = append(problems, fmt.Sprintf("filterable field %q declared twice", f.Name))
		}
		seen[f.Name] = true

		if !slices.Contains(FieldTypes, f.FieldType) {
			problems = append(problems, fmt.Sprintf("filterable field %q has unknown type %q", f.Name, f.FieldType))
			continue
		}
		if f.Condition == "" {
			continue
		}
		if !slices.Contains(Conditions, f.Condition) {
			problems = append(problems, fmt.Sprintf("filterable field %q has unknown condition %q", f.Name, f.Condition))
			continue
		}
		if f.IsOrdering() && (f.FieldType == "keyword" || f.FieldType == "boolean") {
			problems = append(problems, fmt.Sprintf("condition %q is not supported for %s field %q", f.Condition, f.FieldType, f.Name))
		}
		if (f.Condition == "any" || f.Condition == "except") && f.FieldType != "keyword" && f.FieldType != "integer" {
			problems = append(problems, fmt.Sprintf("condition %q requires a keyword or integer field, %q is %s", f.Condition, f.Name, f.FieldType))
		}
	}
	return problems
}

// IsOrdering reports whether the field uses a range comparison.
func (f FilterableField) IsOrdering() bool {
	switch f.Condition {
	case ">", ">=", "<", "<=":
		return true
	}
	return false
}

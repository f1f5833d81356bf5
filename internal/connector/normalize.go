package connector

import (
	"encoding/json"
	"fmt"
)

// extractor turns a payload into an entry, or reports that the payload does
// not follow its convention.
type extractor struct {
	name    string
	extract func(payload map[string]any) (Entry, bool)
}

// textFields are tried in order by the text-field extractor.
var textFields = []string{"text", "content", "body", "description"}

// extractors are tried in order; the last always succeeds. A null content
// field counts as absent.
var extractors = []extractor{
	{name: "document", extract: extractDocument},
	{name: "codeChunk", extract: extractCodeChunk},
	{name: "text-field", extract: extractTextField},
	{name: "fallback", extract: extractFallback},
}

// normalize converts a payload written by any producer into an entry.
func normalize(payload map[string]any) Entry {
	for _, ex := range extractors {
		if entry, ok := ex.extract(payload); ok {
			return entry
		}
	}
	return Entry{}
}

func extractDocument(payload map[string]any) (Entry, bool) {
	v, ok := payload[DocumentKey]
	if !ok || v == nil {
		return Entry{}, false
	}
	entry := Entry{Content: stringify(v)}
	if m, ok := payload[MetadataKey].(map[string]any); ok {
		entry.Metadata = m
	}
	return entry, true
}

func extractCodeChunk(payload map[string]any) (Entry, bool) {
	v, ok := payload["codeChunk"]
	if !ok || v == nil {
		return Entry{}, false
	}
	return Entry{Content: stringify(v), Metadata: without(payload, "codeChunk")}, true
}

func extractTextField(payload map[string]any) (Entry, bool) {
	for _, field := range textFields {
		if v, ok := payload[field]; ok && v != nil {
			return Entry{Content: stringify(v), Metadata: without(payload, field)}, true
		}
	}
	return Entry{}, false
}

func extractFallback(payload map[string]any) (Entry, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{Content: fmt.Sprint(payload)}, true
	}
	return Entry{Content: string(data)}, true
}

// without copies payload minus one key.
func without(payload map[string]any, key string) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

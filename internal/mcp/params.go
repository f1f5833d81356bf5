package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidParams is wrapped by every argument validation error.
var ErrInvalidParams = errors.New("invalid parameters")

// JSON schema types used in tool parameters.
const (
	typeString  = "string"
	typeInteger = "integer"
	typeNumber  = "number"
	typeBoolean = "boolean"
	typeObject  = "object"
	typeArray   = "array"
)

// param is one tool argument.
type param struct {
	Name        string
	Type        string
	Items       string // element type of arrays
	Description string
	Required    bool
}

// paramSet is the narrowed argument list of a tool.
type paramSet []param

func (ps paramSet) names() []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

func (ps paramSet) lookup(name string) (param, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return param{}, false
}

// schema returns the JSON schema advertised for the tool input.
func (ps paramSet) schema() map[string]any {
	props := make(map[string]any, len(ps))
	required := []string{}
	for _, p := range ps {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Type == typeArray {
			prop["items"] = map[string]any{"type": p.Items}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":                 typeObject,
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// decode parses raw tool arguments and checks them against the set. Null
// values of optional parameters count as absent. Numbers are returned as
// int64 or float64 according to the parameter type.
func (ps paramSet) decode(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, fmt.Errorf("%w: arguments must be a JSON object: %v", ErrInvalidParams, err)
		}
	}

	var unknown []string
	for name := range args {
		if _, ok := ps.lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown parameter(s) %s; accepted parameters are %s",
			ErrInvalidParams, strings.Join(unknown, ", "), strings.Join(ps.names(), ", "))
	}

	var missing []string
	out := make(map[string]any, len(args))
	for _, p := range ps {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		converted, err := convert(p.Type, p.Items, v)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %s: %v", ErrInvalidParams, p.Name, err)
		}
		out[p.Name] = converted
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required parameter(s) %s", ErrInvalidParams, strings.Join(missing, ", "))
	}
	return out, nil
}

func convert(typ, items string, v any) (any, error) {
	switch typ {
	case typeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case typeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case typeInteger:
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			return nil, fmt.Errorf("%s is not an integer", n)
		}
	case typeNumber:
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
	case typeObject:
		if m, ok := v.(map[string]any); ok {
			return plainNumbers(m), nil
		}
	case typeArray:
		list, ok := v.([]any)
		if !ok {
			break
		}
		out := make([]any, len(list))
		for i, el := range list {
			c, err := convert(items, "", el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out[i] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected %s, got %s", typ, jsonType(v))
}

// plainNumbers replaces json.Number values with int64 or float64 so the
// value can be handed to store clients.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, el := range x {
			x[k] = plainNumbers(el)
		}
		return x
	case []any:
		for i, el := range x {
			x[i] = plainNumbers(el)
		}
		return x
	default:
		return v
	}
}

func jsonType(v any) string {
	switch v.(type) {
	case string:
		return typeString
	case bool:
		return typeBoolean
	case json.Number:
		return typeNumber
	case map[string]any:
		return typeObject
	case []any:
		return typeArray
	default:
		return fmt.Sprintf("%T", v)
	}
}

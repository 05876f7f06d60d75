// Package flowfile loads flow definitions and JSON documents (configs,
// trigger output) from YAML or JSON files.
package flowfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/stepflow/pkg/schema"
)

// Format is the encoding of a document.
type Format int

const (
	YAML Format = iota
	JSON
)

// FormatOf picks the format from the file extension. Anything that is not
// .json is read as YAML, which also accepts JSON.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return YAML
}

// LoadFlow reads a flow definition. Unknown fields are rejected.
func LoadFlow(path string) (*schema.Flow, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	flow, err := DecodeFlow(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return flow, nil
}

// DecodeFlow decodes a flow definition.
func DecodeFlow(data []byte, format Format) (*schema.Flow, error) {
	raw, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var flow schema.Flow
	if err := dec.Decode(&flow); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode flow: %s", err.Error()).WithCause(err)
	}
	return &flow, nil
}

// LoadDocument reads an object-shaped document such as configs or a trigger
// output. An empty path yields nil. "-" reads standard input as JSON or YAML.
func LoadDocument(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	doc, err := DecodeDocument(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// DecodeDocument decodes an object-shaped document into plain JSON values.
// An empty document yields an empty map.
func DecodeDocument(data []byte, format Format) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	raw, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "document must be an object: %s", err.Error()).WithCause(err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func read(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// toJSON re-encodes a document as JSON so that every value takes its JSON
// form (numbers as float64, string-keyed objects).
func toJSON(data []byte, format Format) ([]byte, error) {
	if format == JSON {
		if !json.Valid(data) {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid JSON document")
		}
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse YAML: %s", err.Error()).WithCause(err)
	}
	v, err := stringKeys(v)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "YAML document is not JSON-compatible: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

// stringKeys converts the map[any]any that YAML produces for mappings with
// non-string keys into map[string]any.
func stringKeys(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			conv, err := stringKeys(item)
			if err != nil {
				return nil, err
			}
			val[k] = conv
		}
		return val, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			switch k.(type) {
			case string, int, int64, uint64, float64, bool:
			default:
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported YAML key type %T", k)
			}
			conv, err := stringKeys(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = conv
		}
		return out, nil
	case []any:
		for i, item := range val {
			conv, err := stringKeys(item)
			if err != nil {
				return nil, err
			}
			val[i] = conv
		}
		return val, nil
	default:
		return v, nil
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	yaml "go.yaml.in/yaml/v3"
)

// Format is the on-disk config syntax, chosen by file extension.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// toJSON converts yaml/toml input to JSON so one strict decoder
// (DisallowUnknownFields) handles every format.
func toJSON(path string, data []byte) ([]byte, Format, error) {
	f := formatOf(path)
	var v any
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, f, fmt.Errorf("yaml unmarshal: %w", err)
		}
	case FormatTOML:
		m := map[string]any{}
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, f, fmt.Errorf("toml unmarshal: %w", err)
		}
		v = m
	default:
		return data, f, nil
	}

	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, f, fmt.Errorf("%s->json marshal: %w", f, err)
	}
	return j, f, nil
}

// stringKeys rewrites map keys to strings so the tree can be JSON-marshaled.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = stringKeys(x[i])
		}
		return out
	default:
		return in
	}
}

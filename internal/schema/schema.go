// Package schema reads declarative class definitions and compiles them into
// facets classes. Definitions may be written in YAML, TOML or JSON; all
// three decode into the same structures.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Format is a definition file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Decoding errors.
var (
	ErrFormatUnknown = errors.New("unknown schema format")
	ErrNoClasses     = errors.New("schema defines no classes")
)

var jsonAPI = jsoniter.Config{UseNumber: true}.Froze()

// FormatFor picks a format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrFormatUnknown, path)
}

// Schema is a set of class definitions in declaration order.
type Schema struct {
	Classes []ClassSpec `mapstructure:"classes"`
}

// ClassSpec defines one class. Base must name a class declared earlier.
type ClassSpec struct {
	Name   string               `mapstructure:"name"`
	Base   string               `mapstructure:"base"`
	Prefix string               `mapstructure:"prefix"`
	Facets map[string]FacetSpec `mapstructure:"facets"`
}

// FacetSpec defines one attribute. An absent Kind means plain.
type FacetSpec struct {
	Kind           string         `mapstructure:"kind"`
	Default        any            `mapstructure:"default"`
	Validator      *ValidatorSpec `mapstructure:"validator"`
	Delegate       string         `mapstructure:"delegate"`
	Naming         string         `mapstructure:"naming"`
	Prefix         string         `mapstructure:"prefix"`
	ModifyDelegate bool           `mapstructure:"modify_delegate"`
	Flags          []string       `mapstructure:"flags"`
	Info           string         `mapstructure:"info"`
}

// ValidatorSpec describes a validator by type name. Only the fields
// relevant to Type are read.
type ValidatorSpec struct {
	Type        string          `mapstructure:"type"`
	Low         *float64        `mapstructure:"low"`
	High        *float64        `mapstructure:"high"`
	ExcludeLow  bool            `mapstructure:"exclude_low"`
	ExcludeHigh bool            `mapstructure:"exclude_high"`
	Values      []any           `mapstructure:"values"`
	Map         map[string]any  `mapstructure:"map"`
	GoType      string          `mapstructure:"go_type"`
	Nullable    bool            `mapstructure:"nullable"`
	Compatible  []string        `mapstructure:"compatible"`
	Coerce      []string        `mapstructure:"coerce"`
	Slots       []ValidatorSpec `mapstructure:"slots"`
	Parts       []ValidatorSpec `mapstructure:"parts"`
	Slow        bool            `mapstructure:"slow"`
}

// Load reads a definition file, choosing the format from its extension.
func Load(path string) (*Schema, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s := &Schema{}
	if err := Decode(data, format, s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(s.Classes) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoClasses)
	}
	return s, nil
}

// Decode parses data in the given format into out, which must be a
// pointer to a mapstructure-tagged struct. Unknown keys are errors.
func Decode(data []byte, format Format, out any) error {
	raw, err := parse(data, format)
	if err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode %s: %w", format, err)
	}
	return nil
}

func parse(data []byte, format Format) (map[string]any, error) {
	raw := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case FormatJSON:
		if err := jsonAPI.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormatUnknown, format)
	}
	return normalize(raw).(map[string]any), nil
}

// normalize gives every format the same scalar types: integers become int
// and other numbers float64.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case json.Number:
		return number(x)
	case jsoniter.Number:
		return number(json.Number(x))
	case int64:
		return int(x)
	case uint64:
		return int(x)
	}
	return v
}

func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	f, _ := n.Float64()
	return f
}

package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"dario.cat/mergo"
	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

type CoerceMode string

const (
	CoerceNone  CoerceMode = "false"
	CoerceTypes CoerceMode = "true"
	CoerceArray CoerceMode = "array"
)

func parseCoerceMode(s string) (CoerceMode, error) {
	switch s {
	case "false", "":
		return CoerceNone, nil
	case "true":
		return CoerceTypes, nil
	case "array":
		return CoerceArray, nil
	default:
		return "", fmt.Errorf("invalid coerceTypes value %q (want true, false or \"array\")", s)
	}
}

// UnmarshalJSON accepts a boolean or the string "array".
func (m *CoerceMode) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*m = CoerceMode(strconv.FormatBool(b))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	mode, err := parseCoerceMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// UnmarshalYAML implements BytesUnmarshaler for goccy/go-yaml
func (m *CoerceMode) UnmarshalYAML(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	return m.UnmarshalTOML(raw)
}

// UnmarshalTOML implements toml.Unmarshaler for BurntSushi/toml.
func (m *CoerceMode) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case bool:
		*m = CoerceMode(strconv.FormatBool(t))
		return nil
	case string:
		mode, err := parseCoerceMode(t)
		if err != nil {
			return err
		}
		*m = mode
		return nil
	default:
		return fmt.Errorf("invalid coerceTypes value of type %T", v)
	}
}

func (m CoerceMode) MarshalJSON() ([]byte, error) {
	switch m {
	case CoerceTypes:
		return []byte("true"), nil
	case CoerceNone, "":
		return []byte("false"), nil
	default:
		return json.Marshal(string(m))
	}
}

// Options configures an Engine. A nil pointer or empty string means "not set", so
// layers can be merged without clearing values set by an earlier layer.
type Options struct {
	CoerceTypes      *CoerceMode `json:"coerceTypes,omitempty" yaml:"coerceTypes,omitempty" toml:"coerceTypes,omitempty"`
	AllErrors        *bool       `json:"allErrors,omitempty" yaml:"allErrors,omitempty" toml:"allErrors,omitempty"`
	RemoveAdditional *bool       `json:"removeAdditional,omitempty" yaml:"removeAdditional,omitempty" toml:"removeAdditional,omitempty"`
	UseDefaults      *bool       `json:"useDefaults,omitempty" yaml:"useDefaults,omitempty" toml:"useDefaults,omitempty"`
	AssertFormat     *bool       `json:"assertFormat,omitempty" yaml:"assertFormat,omitempty" toml:"assertFormat,omitempty"`
	Draft            string      `json:"draft,omitempty" yaml:"draft,omitempty" toml:"draft,omitempty"`
}

// Defaults returns the base configuration every engine starts from.
func Defaults() Options {
	coerce := CoerceTypes
	return Options{
		CoerceTypes:      &coerce,
		AllErrors:        Bool(true),
		RemoveAdditional: Bool(true),
		UseDefaults:      Bool(false),
		AssertFormat:     Bool(false),
		Draft:            "2020-12",
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Coerce returns a pointer to m.
func Coerce(m CoerceMode) *CoerceMode {
	return &m
}

// Resolve merges layers on top of Defaults. Later layers win; fields a layer leaves
// unset keep the value of the layers beneath it.
func Resolve(layers ...Options) (Options, error) {
	out := Defaults()

	for _, layer := range layers {
		if err := mergo.Merge(&out, layer, mergo.WithOverride, mergo.WithTransformers(pointerOverride{})); err != nil {
			return Options{}, fmt.Errorf("unable to merge options: %w", err)
		}
	}

	return out, nil
}

// pointerOverride replaces set pointer fields with a copy of the source value. Without
// it mergo would merge through the pointee and refuse to override with false.
type pointerOverride struct{}

func (pointerOverride) Transformer(t reflect.Type) func(dst, src reflect.Value) error {
	if t.Kind() != reflect.Pointer {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if src.IsNil() || !dst.CanSet() {
			return nil
		}
		v := reflect.New(t.Elem())
		v.Elem().Set(src.Elem())
		dst.Set(v)
		return nil
	}
}

func (o Options) coerceMode() CoerceMode {
	if o.CoerceTypes == nil {
		return CoerceNone
	}
	return *o.CoerceTypes
}

func flag(b *bool) bool {
	return b != nil && *b
}

var drafts = map[string]*jsonschema.Draft{
	"4":       jsonschema.Draft4,
	"6":       jsonschema.Draft6,
	"7":       jsonschema.Draft7,
	"2019-09": jsonschema.Draft2019,
	"2020-12": jsonschema.Draft2020,
}

func (o Options) draft() (*jsonschema.Draft, error) {
	if o.Draft == "" {
		return jsonschema.Draft2020, nil
	}

	d, ok := drafts[o.Draft]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDraft, o.Draft)
	}
	return d, nil
}

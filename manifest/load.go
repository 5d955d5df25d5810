// Package manifest reads route manifests: a list of routes with their schemas and
// canned responses, written in YAML, JSON or TOML.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"github.com/masnyjimmy/qvalidate/validation"
)

var (
	// ErrFormat is returned when a manifest cannot be decoded.
	ErrFormat = errors.New("malformed manifest")

	// ErrInvalid is returned when a decoded manifest does not match the manifest schema.
	ErrInvalid = errors.New("invalid manifest")
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatOf picks the format from the file extension. Unknown extensions are read as YAML.
func FormatOf(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

func (f Format) unmarshal(data []byte, out any) error {
	switch f {
	case FormatJSON:
		return json.Unmarshal(data, out)
	case FormatTOML:
		return toml.Unmarshal(data, out)
	default:
		return yaml.Unmarshal(data, out)
	}
}

func Load(filename string) (*Manifest, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Unable to read file %q: %w", filename, err)
	}

	return Parse(bytes, FormatOf(filename))
}

/*
Parse
1. decode into a generic document
2. validate it against the manifest schema
3. decode into Manifest
*/
func Parse(bytes []byte, format Format) (*Manifest, error) {
	var object any

	if format == FormatTOML {
		// toml documents are always tables
		table := make(map[string]any)
		if err := format.unmarshal(bytes, &table); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		object = table
	} else if err := format.unmarshal(bytes, &object); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	if err := validation.Validate(object); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var out Manifest

	if err := format.unmarshal(bytes, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	return &out, nil
}

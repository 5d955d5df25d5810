package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Engine compiles schema documents into Validators. All validators produced by one
// Engine share its options.
type Engine struct {
	options Options

	mu       sync.Mutex
	compiler *jsonschema.Compiler
	count    int
}

func New(opt Options) (*Engine, error) {
	draft, err := opt.draft()
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(draft)

	if flag(opt.AssertFormat) {
		compiler.AssertFormat()
	}

	return &Engine{
		options:  opt,
		compiler: compiler,
	}, nil
}

func (e *Engine) Options() Options {
	return e.options
}

// normalize converts any decoded document (yaml, toml, Go literals) into the shape
// produced by jsonschema.UnmarshalJSON.
func normalize(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal schema: %w", err)
	}

	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// Compile compiles a schema document. It is meant to be called while routes are
// registered; a failure here should abort startup.
func (e *Engine) Compile(doc any) (*Validator, error) {
	normalized, err := normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.count++
	url := fmt.Sprintf("route-schema-%d.json", e.count)

	if err := e.compiler.AddResource(url, normalized); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	compiled, err := e.compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	return &Validator{
		schema:  compiled,
		prep:    newPreparer(normalized, e.options),
		options: e.options,
	}, nil
}

// plainValue turns values the engine cannot walk (structs, pointers, typed maps and
// slices) into decoded JSON, with numbers as float64. Decoded JSON is returned as is.
func plainValue(value any) (any, error) {
	if isPlain(value) {
		return value, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("unable to encode value: %w", err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unable to decode value: %w", err)
	}
	return out, nil
}

func isPlain(value any) bool {
	switch v := value.(type) {
	case nil, bool, string, float64, json.Number,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return true
	case map[string]any:
		for _, item := range v {
			if !isPlain(item) {
				return false
			}
		}
		return true
	case []any:
		for _, item := range v {
			if !isPlain(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Validator checks values against one compiled schema. It is safe for concurrent use.
type Validator struct {
	schema  *jsonschema.Schema
	prep    *preparer
	options Options
}

// Validate applies defaults, type coercion and property stripping to value according
// to the engine options, then validates it. Maps and slices are rewritten in place; the
// returned value is the new root and must be used in place of value.
//
// On failure the error is a *ValidationError.
func (v *Validator) Validate(value any) (any, error) {
	value, err := plainValue(value)
	if err != nil {
		return nil, err
	}

	value = v.prep.apply(value)

	err = v.schema.Validate(value)
	if err == nil {
		return value, nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return value, &ValidationError{
			Violations: []Violation{{Message: err.Error()}},
		}
	}

	violations := collectViolations(verr)
	if !flag(v.options.AllErrors) && len(violations) > 1 {
		violations = violations[:1]
	}

	return value, &ValidationError{Violations: violations}
}

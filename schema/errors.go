package schema

import "errors"

var (
	// ErrCompile is returned when a schema document cannot be compiled
	ErrCompile = errors.New("schema compilation failed")

	// ErrDraft is returned for an unknown draft name in Options
	ErrDraft = errors.New("unknown json-schema draft")
)

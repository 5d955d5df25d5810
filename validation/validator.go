package validation

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/masnyjimmy/qvalidate/schema"
)

//go:embed schema.json
var schemaBytes []byte

var manifestValidator *schema.Validator

func init() {
	var object any

	if err := json.Unmarshal(schemaBytes, &object); err != nil {
		panic(err)
	}

	engine, err := schema.New(schema.Options{
		CoerceTypes:      schema.Coerce(schema.CoerceNone),
		AllErrors:        schema.Bool(true),
		RemoveAdditional: schema.Bool(false),
	})
	if err != nil {
		panic(err)
	}

	manifestValidator, err = engine.Compile(object)
	if err != nil {
		panic(err)
	}
}

// Validate checks a decoded manifest (from yaml, json or toml) against the manifest
// schema. The document is not modified.
func Validate(document any) error {
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("Unable to encode document: %w", err)
	}

	return ValidateJSON(data)
}

func ValidateJSON(documentBytes []byte) error {
	var document any

	if err := json.Unmarshal(documentBytes, &document); err != nil {
		return fmt.Errorf("Unable to parse document: %w", err)
	}

	_, err := manifestValidator.Validate(document)
	return err
}

package openapi

type Response struct {
	Description string                 `json:"description" yaml:"description"`
	Content     map[string]TypedSchema `json:"content,omitempty" yaml:"content,omitempty"`
}

type StatusCode = string

type TypedSchema struct {
	Schema any `json:"schema" yaml:"schema"`
}

package openapi

import "net/http"

type Path struct {
	Summary string     `json:"summary,omitempty" yaml:"summary,omitempty"`
	Get     *Operation `json:"get,omitempty" yaml:"get,omitempty"`
	Post    *Operation `json:"post,omitempty" yaml:"post,omitempty"`
	Put     *Operation `json:"put,omitempty" yaml:"put,omitempty"`
	Patch   *Operation `json:"patch,omitempty" yaml:"patch,omitempty"`
	Delete  *Operation `json:"delete,omitempty" yaml:"delete,omitempty"`
	Head    *Operation `json:"head,omitempty" yaml:"head,omitempty"`
	Options *Operation `json:"options,omitempty" yaml:"options,omitempty"`
}

// slot returns the operation field for method, or nil for methods OpenAPI has no
// field for.
func (p *Path) slot(method string) **Operation {
	switch method {
	case http.MethodGet:
		return &p.Get
	case http.MethodPost:
		return &p.Post
	case http.MethodPut:
		return &p.Put
	case http.MethodPatch:
		return &p.Patch
	case http.MethodDelete:
		return &p.Delete
	case http.MethodHead:
		return &p.Head
	case http.MethodOptions:
		return &p.Options
	default:
		return nil
	}
}

type Operation struct {
	OperationId string              `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Summary     string              `json:"summary,omitempty" yaml:"summary,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses" yaml:"responses"`
}

// RequestBody always carries a single application/json entry, the route's body schema.
type RequestBody struct {
	Required bool                   `json:"required,omitempty" yaml:"required,omitempty"`
	Content  map[string]TypedSchema `json:"content" yaml:"content"`
}

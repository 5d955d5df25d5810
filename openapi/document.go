// Package openapi renders registered routes and their schemas as an OpenAPI 3.1
// document.
package openapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/masnyjimmy/qvalidate/host"
)

const Version = "3.1.0"

type Document struct {
	Openapi string          `json:"openapi" yaml:"openapi"`
	Info    Info            `json:"info" yaml:"info"`
	Paths   map[string]Path `json:"paths" yaml:"paths"`
}

// Info is the document's info object; Title and Version are required by OpenAPI, so
// Build fills in placeholders when they are empty.
type Info struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type buildContext struct {
	out *Document
}

// Build creates the document for routes. Route schemas are used as-is, so they
// should be valid OpenAPI 3.1 (JSON Schema 2020-12) schemas.
func Build(info Info, routes []*host.Route) (*Document, error) {
	if info.Title == "" {
		info.Title = "qvalidate"
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}

	c := &buildContext{
		out: &Document{
			Openapi: Version,
			Info:    info,
			Paths:   make(map[string]Path),
		},
	}

	for _, route := range routes {
		if err := c.addRoute(route); err != nil {
			return nil, fmt.Errorf("route %s: %w", route.ID(), err)
		}
	}

	return c.out, nil
}

func BuildJSON(info Info, routes []*host.Route) ([]byte, error) {
	doc, err := Build(info, routes)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func BuildYAML(info Info, routes []*host.Route) ([]byte, error) {
	doc, err := Build(info, routes)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func (c *buildContext) addRoute(route *host.Route) error {
	template, names := pathTemplate(route.URL)

	path := c.out.Paths[template]
	slot := path.slot(strings.ToUpper(route.Method))
	if slot == nil {
		return nil
	}

	op, err := c.operation(route, names)
	if err != nil {
		return err
	}

	*slot = op
	c.out.Paths[template] = path
	return nil
}

func (c *buildContext) operation(route *host.Route, pathParams []string) (*Operation, error) {
	var schemas host.RouteSchema
	if route.Schema != nil {
		schemas = *route.Schema
	}

	params, err := plain(schemas.Params)
	if err != nil {
		return nil, err
	}
	query, err := plain(schemas.Query)
	if err != nil {
		return nil, err
	}
	body, err := plain(schemas.Body)
	if err != nil {
		return nil, err
	}
	reply, err := plain(schemas.Reply)
	if err != nil {
		return nil, err
	}

	out := &Operation{
		OperationId: operationID(route),
		Summary:     route.Summary,
		Parameters:  make([]Parameter, 0, len(pathParams)),
		Responses:   make(map[StatusCode]Response),
	}

	paramProps := properties(params)
	for _, name := range pathParams {
		schema, ok := paramProps[name]
		if !ok {
			schema = map[string]any{"type": "string"}
		}
		out.Parameters = append(out.Parameters, Parameter{
			Name:     name,
			In:       InPath,
			Required: true,
			Schema:   schema,
		})
	}

	queryProps := properties(query)
	required := requiredSet(query)
	names := make([]string, 0, len(queryProps))
	for name := range queryProps {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		out.Parameters = append(out.Parameters, Parameter{
			Name:     name,
			In:       InQuery,
			Required: required[name],
			Schema:   queryProps[name],
		})
	}

	if body != nil {
		out.RequestBody = &RequestBody{
			Required: true,
			Content: map[string]TypedSchema{
				"application/json": {Schema: body},
			},
		}
	}

	success := Response{Description: "Successful response"}
	if reply != nil {
		success.Content = map[string]TypedSchema{
			"application/json": {Schema: reply},
		}
	}
	out.Responses[statusOK] = success

	if route.Schema != nil {
		out.Responses[statusBadRequest] = Response{
			Description: "Validation failed",
			Content: map[string]TypedSchema{
				"text/plain": {Schema: map[string]any{"type": "string"}},
			},
		}
	}

	return out, nil
}

var (
	statusOK         = fmt.Sprint(http.StatusOK)
	statusBadRequest = fmt.Sprint(http.StatusBadRequest)
)

// plain turns a schema document into generic JSON values.
func plain(doc any) (any, error) {
	if doc == nil {
		return nil, nil
	}

	bytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to encode schema: %w", err)
	}

	var out any
	if err := json.Unmarshal(bytes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func properties(schema any) map[string]any {
	object, ok := schema.(map[string]any)
	if !ok {
		return nil
	}
	props, _ := object["properties"].(map[string]any)
	return props
}

func requiredSet(schema any) map[string]bool {
	object, ok := schema.(map[string]any)
	if !ok {
		return nil
	}
	list, _ := object["required"].([]any)

	out := make(map[string]bool, len(list))
	for _, v := range list {
		if name, ok := v.(string); ok {
			out[name] = true
		}
	}
	return out
}

// pathTemplate converts a gorilla/mux template into an OpenAPI path, dropping
// variable patterns: "/users/{id:[0-9]{1,3}}" becomes "/users/{id}".
func pathTemplate(url string) (string, []string) {
	var (
		out   strings.Builder
		names []string
		depth int
		start int
	)

	for i := 0; i < len(url); i++ {
		switch url[i] {
		case '{':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case '}':
			depth--
			if depth == 0 {
				name, _, _ := strings.Cut(url[start:i], ":")
				name = strings.TrimSpace(name)
				names = append(names, name)
				out.WriteString("{" + name + "}")
			}
		default:
			if depth == 0 {
				out.WriteByte(url[i])
			}
		}
	}

	return out.String(), names
}

func operationID(route *host.Route) string {
	template, _ := pathTemplate(route.URL)

	replacer := strings.NewReplacer("/", "_", "{", "", "}", "", "-", "_", ".", "_")
	id := strings.Trim(replacer.Replace(template), "_")
	if id == "" {
		id = "root"
	}
	return strings.ToLower(route.Method) + "_" + id
}

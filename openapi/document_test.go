package openapi

import (
	"encoding/json"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masnyjimmy/qvalidate/host"
)

func routes() []*host.Route {
	return []*host.Route{
		{
			Method:  "GET",
			URL:     "/users/{id:[0-9]{1,3}}/posts/{post}",
			Summary: "user post",
			Schema: &host.RouteSchema{
				Params: map[string]any{
					"type":       "object",
					"properties": map[string]any{"id": map[string]any{"type": "integer"}},
				},
				Query: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit":  map[string]any{"type": "integer"},
						"cursor": map[string]any{"type": "string"},
					},
					"required": []any{"limit"},
				},
				Reply: map[string]any{"type": "object"},
			},
		},
		{
			Method: "POST",
			URL:    "/users",
			Schema: &host.RouteSchema{Body: map[string]any{"type": "object"}},
		},
		{Method: "GET", URL: "/"},
		{Method: "PROPFIND", URL: "/dav"},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	doc, err := Build(Info{Title: "demo"}, routes())
	require.NoError(t, err)

	assert.Equal(t, Version, doc.Openapi)
	assert.Equal(t, "demo", doc.Info.Title)
	assert.Equal(t, "0.0.0", doc.Info.Version)
	assert.NotContains(t, doc.Paths, "/dav")

	path, ok := doc.Paths["/users/{id}/posts/{post}"]
	require.True(t, ok)
	require.NotNil(t, path.Get)
	get := path.Get

	assert.Equal(t, "get_users_id_posts_post", get.OperationId)
	assert.Equal(t, "user post", get.Summary)
	require.Len(t, get.Parameters, 4)

	assert.Equal(t, Parameter{Name: "id", In: InPath, Required: true, Schema: map[string]any{"type": "integer"}}, get.Parameters[0])
	assert.Equal(t, Parameter{Name: "post", In: InPath, Required: true, Schema: map[string]any{"type": "string"}}, get.Parameters[1])
	assert.Equal(t, "cursor", get.Parameters[2].Name)
	assert.False(t, get.Parameters[2].Required)
	assert.Equal(t, "limit", get.Parameters[3].Name)
	assert.True(t, get.Parameters[3].Required)
	assert.Equal(t, InQuery, get.Parameters[3].In)

	assert.Contains(t, get.Responses["200"].Content, "application/json")
	assert.Contains(t, get.Responses["400"].Content, "text/plain")

	post := doc.Paths["/users"].Post
	require.NotNil(t, post)
	require.NotNil(t, post.RequestBody)
	assert.True(t, post.RequestBody.Required)
	assert.Equal(t, map[string]any{"type": "object"}, post.RequestBody.Content["application/json"].Schema)

	root := doc.Paths["/"].Get
	require.NotNil(t, root)
	assert.Equal(t, "get_root", root.OperationId)
	assert.NotContains(t, root.Responses, "400")
	assert.Empty(t, root.Parameters)
}

func TestBuildJSONAndYAML(t *testing.T) {
	t.Parallel()

	data, err := BuildJSON(Info{Title: "demo", Version: "1"}, routes())
	require.NoError(t, err)

	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, "3.1.0", fromJSON["openapi"])

	data, err = BuildYAML(Info{Title: "demo", Version: "1"}, routes())
	require.NoError(t, err)

	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, "3.1.0", fromYAML["openapi"])
	assert.Contains(t, fromYAML["paths"], "/users")
}

func TestBuild_UnencodableSchema(t *testing.T) {
	t.Parallel()

	_, err := Build(Info{}, []*host.Route{{
		Method: "GET",
		URL:    "/x",
		Schema: &host.RouteSchema{Body: map[string]any{"bad": make(chan int)}},
	}})
	assert.ErrorContains(t, err, "route GET /x")
}

func TestPathTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		out   string
		names []string
	}{
		{"/", "/", nil},
		{"/users/{id}", "/users/{id}", []string{"id"}},
		{"/a/{x:[a-z]+}/b/{y}", "/a/{x}/b/{y}", []string{"x", "y"}},
		{"/n/{code:[0-9]{3}}", "/n/{code}", []string{"code"}},
	}

	for _, tt := range tests {
		out, names := pathTemplate(tt.in)
		assert.Equal(t, tt.out, out, tt.in)
		assert.Equal(t, tt.names, names, tt.in)
	}
}

package manifest

import (
	"github.com/masnyjimmy/qvalidate/host"
	"github.com/masnyjimmy/qvalidate/schema"
)

type Info struct {
	Title       string `json:"title" yaml:"title" toml:"title"`
	Version     string `json:"version" yaml:"version" toml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// CORS mirrors the subset of rs/cors options a manifest may set.
type CORS struct {
	AllowedOrigins   []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty" toml:"allowedOrigins,omitempty"`
	AllowedMethods   []string `json:"allowedMethods,omitempty" yaml:"allowedMethods,omitempty" toml:"allowedMethods,omitempty"`
	AllowedHeaders   []string `json:"allowedHeaders,omitempty" yaml:"allowedHeaders,omitempty" toml:"allowedHeaders,omitempty"`
	ExposedHeaders   []string `json:"exposedHeaders,omitempty" yaml:"exposedHeaders,omitempty" toml:"exposedHeaders,omitempty"`
	AllowCredentials bool     `json:"allowCredentials,omitempty" yaml:"allowCredentials,omitempty" toml:"allowCredentials,omitempty"`
	MaxAge           int      `json:"maxAge,omitempty" yaml:"maxAge,omitempty" toml:"maxAge,omitempty"`
}

type Manifest struct {
	Info      Info           `json:"info" yaml:"info" toml:"info"`
	Validator schema.Options `json:"validator" yaml:"validator" toml:"validator"`
	CORS      *CORS          `json:"cors,omitempty" yaml:"cors,omitempty" toml:"cors,omitempty"`
	Routes    []Route        `json:"routes" yaml:"routes" toml:"routes"`
}

// HostRoutes converts every manifest route into a host route with a stub handler.
func (m *Manifest) HostRoutes() []host.Route {
	out := make([]host.Route, len(m.Routes))

	for idx, r := range m.Routes {
		out[idx] = host.Route{
			Method:  r.Method,
			URL:     r.URL,
			Summary: r.Summary,
			Schema:  r.Schema,
			Handler: r.Handler(),
		}
	}

	return out
}

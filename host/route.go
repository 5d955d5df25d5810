package host

import (
	"fmt"
	"net/http"
	"strings"
)

// RouteSchema holds the optional schema documents of a route. A nil member means the
// corresponding part is not validated.
type RouteSchema struct {
	Params any `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Query  any `json:"query,omitempty" yaml:"query,omitempty" toml:"query,omitempty"`
	Body   any `json:"body,omitempty" yaml:"body,omitempty" toml:"body,omitempty"`
	Reply  any `json:"reply,omitempty" yaml:"reply,omitempty" toml:"reply,omitempty"`
}

// HandlerFunc produces the reply for a request, usually through rep.Send.
type HandlerFunc func(req *Request, rep *Reply) error

// Route is a (method, url, handler, schema) registration. URL uses gorilla/mux
// templates, e.g. "/users/{id}".
type Route struct {
	Method  string
	URL     string
	Summary string
	Schema  *RouteSchema
	Handler HandlerFunc
}

// ID returns "METHOD URL".
func (r *Route) ID() string {
	return r.Method + " " + r.URL
}

func (r *Route) normalize() error {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	r.Method = strings.ToUpper(r.Method)

	if !strings.HasPrefix(r.URL, "/") {
		return fmt.Errorf("%w: url %q must start with /", ErrRoute, r.URL)
	}
	if r.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrRoute, r.ID())
	}
	return nil
}

package manifest

import (
	"encoding/json"
	"net/http"

	"github.com/masnyjimmy/qvalidate/host"
)

type Route struct {
	Method   string            `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	URL      string            `json:"url" yaml:"url" toml:"url"`
	Summary  string            `json:"summary,omitempty" yaml:"summary,omitempty" toml:"summary,omitempty"`
	Schema   *host.RouteSchema `json:"schema,omitempty" yaml:"schema,omitempty" toml:"schema,omitempty"`
	Response Response          `json:"response" yaml:"response" toml:"response"`
}

// Response is the canned reply of a stub route. With Echo set the reply is
// {"params", "query", "body"} as seen by the handler, after validation.
type Response struct {
	Status  int               `json:"status,omitempty" yaml:"status,omitempty" toml:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`
	Body    any               `json:"body,omitempty" yaml:"body,omitempty" toml:"body,omitempty"`
	Echo    bool              `json:"echo,omitempty" yaml:"echo,omitempty" toml:"echo,omitempty"`
}

func (r Route) Handler() host.HandlerFunc {
	response := r.Response

	status := response.Status
	if status == 0 {
		status = http.StatusOK
	}

	return func(req *host.Request, rep *host.Reply) error {
		for name, value := range response.Headers {
			rep.Header.Set(name, value)
		}
		rep.Code(status)

		if response.Echo {
			return rep.Send(map[string]any{
				"params": req.Params,
				"query":  req.Query,
				"body":   req.Body,
			})
		}

		if response.Body == nil {
			return nil
		}

		// reply validation may rewrite the payload, every request gets its own copy
		body, err := copyValue(response.Body)
		if err != nil {
			return err
		}
		return rep.Send(body)
	}
}

func copyValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

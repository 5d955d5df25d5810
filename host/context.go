package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request is the per-request view handed to hooks and handlers. Params, Query and
// Body are owned by the request and may be rewritten by hooks before the handler runs.
type Request struct {
	ID     string
	Route  *Route
	Params map[string]any
	Query  map[string]any
	Body   any
	Raw    *http.Request
}

func (r *Request) Context() context.Context {
	return r.Raw.Context()
}

// Reply collects the handler's output until it is serialized.
type Reply struct {
	Route   *Route
	Status  int
	Header  http.Header
	Payload any

	sent bool
}

func newReply(route *Route) *Reply {
	return &Reply{
		Route:  route,
		Status: http.StatusOK,
		Header: make(http.Header),
	}
}

// Code sets the status of a successful reply.
func (r *Reply) Code(status int) *Reply {
	r.Status = status
	return r
}

// Send records the payload to serialize once the handler returns.
func (r *Reply) Send(payload any) error {
	r.Payload = payload
	r.sent = true
	return nil
}

func (r *Reply) Sent() bool {
	return r.sent
}

func parseParams(vars map[string]string) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func parseQuery(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	return out
}

func parseBody(r *http.Request, limit int64) (any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if int64(len(data)) > limit {
		return nil, NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("body must be valid JSON: %v", err))
	}
	return body, nil
}

// encodeReply serializes the payload. It runs before anything is written so a
// serialization failure can still be reported as an error response.
func encodeReply(rep *Reply) (data []byte, contentType string, err error) {
	switch p := rep.Payload.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(p), "text/plain; charset=utf-8", nil
	case []byte:
		return p, "application/octet-stream", nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, "", fmt.Errorf("unable to serialize reply: %w", err)
		}
		return data, "application/json", nil
	}
}

func writeReply(w http.ResponseWriter, rep *Reply, data []byte, contentType string) error {
	for k, vs := range rep.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	if !rep.sent || rep.Payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	setDefaultContentType(w, contentType)
	w.WriteHeader(rep.Status)
	_, err := w.Write(data)
	return err
}

func setDefaultContentType(w http.ResponseWriter, ct string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", ct)
	}
}

func writeError(w http.ResponseWriter, err error) int {
	status := statusOf(err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, err.Error())
	return status
}

// headerTracker records the status once headers are sent.
type headerTracker struct {
	http.ResponseWriter
	status int
}

func (w *headerTracker) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerTracker) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *headerTracker) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

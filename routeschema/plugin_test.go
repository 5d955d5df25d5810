package routeschema

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/masnyjimmy/qvalidate/host"
	"github.com/masnyjimmy/qvalidate/schema"
)

func object(props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func number() map[string]any {
	return map[string]any{"type": "number"}
}

var (
	paramsSchema = object(map[string]any{"p1": number()})
	querySchema  = object(map[string]any{"q1": number()})
	bodySchema   = object(map[string]any{"b1": number()})
	replySchema  = object(map[string]any{"r1": number()})
)

type seen struct {
	params map[string]any
	query  map[string]any
	body   any
}

// newApp registers the plugin and a POST /check/{p1}/{p2} route that records what the
// handler observed and replies {r1: 789, r2: "YYYY"}.
func newApp(t *testing.T, rs *host.RouteSchema, opt Options) (*host.App, *seen) {
	t.Helper()
	app := host.New(host.Options{})
	require.NoError(t, app.Register(New(opt)))

	got := &seen{}
	_, err := app.Route(host.Route{
		Method: http.MethodPost,
		URL:    "/check/{p1}/{p2}",
		Schema: rs,
		Handler: func(req *host.Request, rep *host.Reply) error {
			got.params = req.Params
			got.query = req.Query
			got.body = req.Body
			return rep.Send(map[string]any{"r1": 789, "r2": "YYYY"})
		},
	})
	require.NoError(t, err)
	require.NoError(t, app.Ready())
	return app, got
}

func inject(t *testing.T, app http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const payload = `{"b1":123,"b2":"cccc"}`

func TestNoSchema(t *testing.T) {
	t.Parallel()
	app, got := newApp(t, nil, Options{})

	rec := inject(t, app, http.MethodPost, "/check/111/bbb?q1=1111&q2=bbbb", payload)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"p1": "111", "p2": "bbb"}, got.params)
	assert.Equal(t, map[string]any{"q1": "1111", "q2": "bbbb"}, got.query)
	assert.Equal(t, map[string]any{"b1": float64(123), "b2": "cccc"}, got.body)
	assert.Equal(t, map[string]any{"r1": float64(789), "r2": "YYYY"}, decode(t, rec))
}

func TestParamsSchema(t *testing.T) {
	t.Parallel()
	app, got := newApp(t, &host.RouteSchema{Params: paramsSchema}, Options{})

	rec := inject(t, app, http.MethodPost, "/check/111/bbb?q1=1111&q2=bbbb", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"p1": float64(111)}, got.params)
	assert.Equal(t, map[string]any{"q1": "1111", "q2": "bbbb"}, got.query)
	assert.Equal(t, map[string]any{"b1": float64(123), "b2": "cccc"}, got.body)
	assert.Equal(t, map[string]any{"r1": float64(789), "r2": "YYYY"}, decode(t, rec))

	rec = inject(t, app, http.MethodPost, "/check/aaa/bbb?q1=1111&q2=bbbb", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data/p1 must be number", rec.Body.String())
}

func TestQuerySchema(t *testing.T) {
	t.Parallel()
	app, got := newApp(t, &host.RouteSchema{Params: paramsSchema, Query: querySchema}, Options{})

	rec := inject(t, app, http.MethodPost, "/check/111/bbb?q1=1111&q2=bbbb", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"p1": float64(111)}, got.params)
	assert.Equal(t, map[string]any{"q1": float64(1111)}, got.query)
	assert.Equal(t, map[string]any{"b1": float64(123), "b2": "cccc"}, got.body)

	rec = inject(t, app, http.MethodPost, "/check/1111/bbb?q1=aaaa&q2=bbbb", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data/q1 must be number", rec.Body.String())
}

func TestBodySchema(t *testing.T) {
	t.Parallel()
	app, got := newApp(t, &host.RouteSchema{Params: paramsSchema, Query: querySchema, Body: bodySchema}, Options{})

	rec := inject(t, app, http.MethodPost, "/check/111/bbb?q1=1111&q2=bbbb", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"p1": float64(111)}, got.params)
	assert.Equal(t, map[string]any{"q1": float64(1111)}, got.query)
	assert.Equal(t, map[string]any{"b1": float64(123)}, got.body)

	rec = inject(t, app, http.MethodPost, "/check/1111/bbb?q1=111&q2=bbbb", `{"b1":"aaa","b2":"cccc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data/b1 must be number", rec.Body.String())
}

func TestReplySchema(t *testing.T) {
	t.Parallel()
	app := host.New(host.Options{})
	require.NoError(t, app.Register(New(Options{})))

	_, err := app.Route(host.Route{
		Method: http.MethodPost,
		URL:    "/check/{p1}/{p2}",
		Schema: &host.RouteSchema{Params: paramsSchema, Query: querySchema, Body: bodySchema, Reply: replySchema},
		Handler: func(req *host.Request, rep *host.Reply) error {
			return rep.Send(map[string]any{"r1": 789, "r2": "YYYY"})
		},
	})
	require.NoError(t, err)
	_, err = app.Route(host.Route{
		URL:    "/check-reply",
		Schema: &host.RouteSchema{Reply: object(map[string]any{"b1": number()})},
		Handler: func(req *host.Request, rep *host.Reply) error {
			return rep.Send(map[string]any{"b1": "aaaa"})
		},
	})
	require.NoError(t, err)
	_, err = app.Route(host.Route{
		URL:    "/check-strip",
		Schema: &host.RouteSchema{Reply: object(map[string]any{"b1": number()})},
		Handler: func(req *host.Request, rep *host.Reply) error {
			return rep.Send(map[string]any{"b1": 5, "extra": "x"})
		},
	})
	require.NoError(t, err)
	require.NoError(t, app.Ready())

	rec := inject(t, app, http.MethodPost, "/check/111/bbb?q1=1111&q2=bbbb", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"r1": float64(789)}, decode(t, rec))

	rec = inject(t, app, http.MethodGet, "/check-reply", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data/b1 must be number", rec.Body.String())

	rec = inject(t, app, http.MethodGet, "/check-strip", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"b1":5}`, rec.Body.String())
}

func TestShortCircuit(t *testing.T) {
	t.Parallel()
	handled := false
	app := host.New(host.Options{})
	require.NoError(t, app.Register(New(Options{})))
	_, err := app.Route(host.Route{
		Method: http.MethodPost,
		URL:    "/check/{p1}/{p2}",
		Schema: &host.RouteSchema{Params: paramsSchema, Query: querySchema, Body: bodySchema},
		Handler: func(*host.Request, *host.Reply) error {
			handled = true
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, app.Ready())

	// every part is invalid; only params is reported
	rec := inject(t, app, http.MethodPost, "/check/aaa/bbb?q1=zzz", `{"b1":"yyy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data/p1 must be number", rec.Body.String())

	// params valid: query is reported, body is not
	rec = inject(t, app, http.MethodPost, "/check/1/bbb?q1=zzz", `{"b1":"yyy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data/q1 must be number", rec.Body.String())

	assert.False(t, handled)
}

func TestCompileFailureAbortsReady(t *testing.T) {
	t.Parallel()
	app := host.New(host.Options{})
	require.NoError(t, app.Register(New(Options{})))
	_, err := app.Route(host.Route{
		URL:     "/broken",
		Schema:  &host.RouteSchema{Body: map[string]any{"type": 12}},
		Handler: func(*host.Request, *host.Reply) error { return nil },
	})
	require.NoError(t, err)

	err = app.Ready()
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrCompile)
	assert.Contains(t, err.Error(), "route GET /broken")
	assert.Contains(t, err.Error(), "body schema")
}

func TestOptionLayers(t *testing.T) {
	t.Parallel()

	t.Run("host setting disables coercion", func(t *testing.T) {
		t.Parallel()
		app := host.New(host.Options{Settings: map[string]any{
			SettingName: schema.Options{CoerceTypes: schema.Coerce(schema.CoerceNone)},
		}})
		p := New(Options{})
		require.NoError(t, app.Register(p))
		assert.Equal(t, schema.CoerceNone, *p.Engine().Options().CoerceTypes)
		assert.True(t, *p.Engine().Options().AllErrors)
	})

	t.Run("explicit options win over host setting", func(t *testing.T) {
		t.Parallel()
		app := host.New(host.Options{Settings: map[string]any{
			SettingName: &schema.Options{CoerceTypes: schema.Coerce(schema.CoerceNone)},
		}})
		p := New(Options{Schema: schema.Options{CoerceTypes: schema.Coerce(schema.CoerceArray)}})
		require.NoError(t, app.Register(p))
		assert.Equal(t, schema.CoerceArray, *p.Engine().Options().CoerceTypes)
	})

	t.Run("bad setting type", func(t *testing.T) {
		t.Parallel()
		app := host.New(host.Options{Settings: map[string]any{SettingName: 42}})
		assert.Error(t, app.Register(New(Options{})))
	})

	t.Run("engine is decorated", func(t *testing.T) {
		t.Parallel()
		app := host.New(host.Options{})
		p := New(Options{})
		require.NoError(t, app.Register(p))

		v, ok := app.Decoration(DecorationName)
		require.True(t, ok)
		assert.Same(t, p.Engine(), v)
	})
}

func TestFailureReporting(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.WarnLevel)

	var (
		mu       sync.Mutex
		failures []Failure
	)
	app, _ := newApp(t, &host.RouteSchema{Params: paramsSchema}, Options{
		Logger: zap.New(core),
		OnFailure: func(_ context.Context, f Failure) {
			mu.Lock()
			failures = append(failures, f)
			mu.Unlock()
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/check/aaa/bbb", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	entries := logs.FilterMessage("validation failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "params", entries[0].ContextMap()["part"])

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	f := failures[0]
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "req-1", f.RequestID)
	assert.Equal(t, "POST /check/{p1}/{p2}", f.Route)
	assert.Equal(t, PartParams, f.Part)
	assert.Equal(t, "data/p1 must be number", f.Message)
	assert.Equal(t, []schema.Violation{{Path: "/p1", Keyword: "type", Message: "must be number"}}, f.Violations)
}

func TestErrorType(t *testing.T) {
	t.Parallel()
	verr := &schema.ValidationError{Violations: []schema.Violation{{Path: "/a", Message: "must be string"}}}
	err := error(&Error{Part: PartBody, Route: "GET /", Err: verr})

	assert.Equal(t, "data/a must be string", err.Error())

	var target *schema.ValidationError
	assert.True(t, errors.As(err, &target))
	assert.Same(t, verr, target)

	var sc host.StatusCoder
	require.True(t, errors.As(err, &sc))
	assert.Equal(t, http.StatusBadRequest, sc.StatusCode())
}

func TestRegistryOnlyStoresRoutesWithSchemas(t *testing.T) {
	t.Parallel()
	engine, err := schema.New(schema.Defaults())
	require.NoError(t, err)
	r := newRegistry()

	bare := &host.Route{URL: "/a"}
	empty := &host.Route{URL: "/b", Schema: &host.RouteSchema{}}
	withBody := &host.Route{URL: "/c", Schema: &host.RouteSchema{Body: bodySchema}}

	for _, route := range []*host.Route{bare, empty, withBody} {
		require.NoError(t, r.compile(engine, route))
	}

	assert.Nil(t, r.lookup(bare))
	assert.Nil(t, r.lookup(empty))
	v := r.lookup(withBody)
	require.NotNil(t, v)
	assert.Nil(t, v.params)
	assert.Nil(t, v.query)
	assert.NotNil(t, v.body)
	assert.Nil(t, v.reply)
}

type replyBody struct {
	B1    float64 `json:"b1"`
	Extra string  `json:"extra,omitempty"`
}

func TestReplyGoTypes(t *testing.T) {
	t.Parallel()
	app := host.New(host.Options{})
	require.NoError(t, app.Register(New(Options{})))

	replies := map[string]any{
		"/struct":    replyBody{B1: 5},
		"/pointer":   &replyBody{B1: 6},
		"/stripped":  replyBody{B1: 7, Extra: "x"},
		"/typed-map": map[string]int{"b1": 8},
		"/invalid":   map[string]string{"b1": "aaaa"},
	}
	for url, payload := range replies {
		_, err := app.Route(host.Route{
			URL:    url,
			Schema: &host.RouteSchema{Reply: object(map[string]any{"b1": number()})},
			Handler: func(req *host.Request, rep *host.Reply) error {
				return rep.Send(payload)
			},
		})
		require.NoError(t, err)
	}
	require.NoError(t, app.Ready())

	tests := []struct {
		url  string
		code int
		body string
	}{
		{"/struct", http.StatusOK, `{"b1":5}`},
		{"/pointer", http.StatusOK, `{"b1":6}`},
		{"/stripped", http.StatusOK, `{"b1":7}`},
		{"/typed-map", http.StatusOK, `{"b1":8}`},
	}
	for _, tt := range tests {
		rec := inject(t, app, http.MethodGet, tt.url, "")
		assert.Equal(t, tt.code, rec.Code, tt.url)
		assert.JSONEq(t, tt.body, rec.Body.String(), tt.url)
	}

	rec := inject(t, app, http.MethodGet, "/invalid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data/b1 must be number", rec.Body.String())
}

func settingsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"settings": map[string]any{
				"type":    "object",
				"default": map[string]any{"level": 1, "tags": []any{"a"}},
			},
		},
	}
}

func TestSchemaDocumentIsNotMutated(t *testing.T) {
	t.Parallel()
	app := host.New(host.Options{})
	require.NoError(t, app.Register(New(Options{Schema: schema.Options{UseDefaults: schema.Bool(true)}})))

	doc := settingsSchema()
	var seenDefaults []any
	_, err := app.Route(host.Route{
		Method: http.MethodPost,
		URL:    "/settings",
		Schema: &host.RouteSchema{Body: doc},
		Handler: func(req *host.Request, rep *host.Reply) error {
			settings := req.Body.(map[string]any)["settings"].(map[string]any)
			seenDefaults = append(seenDefaults, []any{settings["level"], settings["tags"].([]any)[0]})
			settings["level"] = 99
			settings["tags"].([]any)[0] = "changed"
			return rep.Send(req.Body)
		},
	})
	require.NoError(t, err)
	require.NoError(t, app.Ready())
	assert.Equal(t, settingsSchema(), doc)

	for i := 0; i < 2; i++ {
		rec := inject(t, app, http.MethodPost, "/settings", `{}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"settings":{"level":99,"tags":["changed"]}}`, rec.Body.String())
	}

	// each request starts from the declared default, not the previous request's copy
	assert.Equal(t, []any{
		[]any{float64(1), "a"},
		[]any{float64(1), "a"},
	}, seenDefaults)
	assert.Equal(t, settingsSchema(), doc)
}

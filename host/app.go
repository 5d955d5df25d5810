// Package host is a small application container around gorilla/mux. It owns route
// registration, the request lifecycle and error mapping, and exposes three hook slots
// plugins attach to:
//
//   - OnRoute runs once per route when the app becomes ready, before any traffic.
//   - BeforeHandler runs per request after params, query and body are parsed.
//   - BeforeSerialize runs per request after the handler produced its payload.
//
// A hook returning an error stops the lifecycle; the error is written as a plain text
// body with the status reported by its StatusCode method, or 500.
package host

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Version is the host version plugins are checked against.
const Version = "0.3.0"

const defaultBodyLimit = 10 << 20

type RouteHook func(route *Route) error

type RequestHook func(req *Request, rep *Reply) error

// Plugin extends an App. MinHostVersion is a constraint such as ">=0.1.0"; empty means
// any version.
type Plugin interface {
	Name() string
	MinHostVersion() string
	Register(app *App) error
}

type Options struct {
	// Version overrides the reported host version (tests).
	Version string

	// Settings are application-level values plugins may look up, e.g. "validator".
	Settings map[string]any

	Logger *zap.Logger

	// CORS enables rs/cors in front of the router when set.
	CORS *cors.Options

	// BodyLimit caps request bodies; defaults to 10 MiB.
	BodyLimit int64
}

type App struct {
	options Options
	logger  *zap.Logger

	mu              sync.Mutex
	routes          []*Route
	plugins         []string
	decorations     map[string]any
	onRoute         []RouteHook
	beforeHandler   []RequestHook
	beforeSerialize []RequestHook

	readyMu sync.Mutex
	ready   atomic.Bool
	handler http.Handler
}

func New(opt Options) *App {
	if opt.Version == "" {
		opt.Version = Version
	}
	if opt.BodyLimit <= 0 {
		opt.BodyLimit = defaultBodyLimit
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	return &App{
		options:     opt,
		logger:      opt.Logger,
		decorations: make(map[string]any),
	}
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) Version() string {
	return a.options.Version
}

// Setting looks up an application-level setting.
func (a *App) Setting(key string) (any, bool) {
	v, ok := a.options.Settings[key]
	return v, ok
}

// Register checks the plugin's version constraint and lets it attach hooks.
func (a *App) Register(p Plugin) error {
	if a.ready.Load() {
		return ErrStarted
	}

	ok, err := satisfies(a.options.Version, p.MinHostVersion())
	if err != nil {
		return fmt.Errorf("plugin %s: %w", p.Name(), err)
	}
	if !ok {
		return fmt.Errorf("%w: plugin %s requires %s, host is %s", ErrVersion, p.Name(), p.MinHostVersion(), a.options.Version)
	}

	if err := p.Register(a); err != nil {
		return fmt.Errorf("plugin %s: %w", p.Name(), err)
	}

	a.mu.Lock()
	a.plugins = append(a.plugins, p.Name())
	a.mu.Unlock()

	a.logger.Debug("plugin registered", zap.String("plugin", p.Name()))
	return nil
}

func (a *App) Plugins() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.plugins...)
}

// Decorate exposes a value under name for other plugins.
func (a *App) Decorate(name string, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.decorations[name]; ok {
		return fmt.Errorf("%w: %s", ErrDecorated, name)
	}
	a.decorations[name] = value
	return nil
}

func (a *App) Decoration(name string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.decorations[name]
	return v, ok
}

func (a *App) OnRoute(h RouteHook) error {
	return a.addHook(func() { a.onRoute = append(a.onRoute, h) })
}

func (a *App) BeforeHandler(h RequestHook) error {
	return a.addHook(func() { a.beforeHandler = append(a.beforeHandler, h) })
}

func (a *App) BeforeSerialize(h RequestHook) error {
	return a.addHook(func() { a.beforeSerialize = append(a.beforeSerialize, h) })
}

func (a *App) addHook(add func()) error {
	if a.ready.Load() {
		return ErrStarted
	}
	a.mu.Lock()
	add()
	a.mu.Unlock()
	return nil
}

// Route registers a route. The returned pointer is the route's identity for the
// lifetime of the app.
func (a *App) Route(def Route) (*Route, error) {
	if a.ready.Load() {
		return nil, ErrStarted
	}

	route := &def
	if err := route.normalize(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.routes = append(a.routes, route)
	a.mu.Unlock()
	return route, nil
}

func (a *App) Routes() []*Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Route(nil), a.routes...)
}

// Ready runs the OnRoute hooks for every route and builds the router. Any hook error
// aborts startup. Calling Ready again is a no-op.
func (a *App) Ready() error {
	a.readyMu.Lock()
	defer a.readyMu.Unlock()

	if a.ready.Load() {
		return nil
	}

	a.mu.Lock()
	routes := append([]*Route(nil), a.routes...)
	hooks := append([]RouteHook(nil), a.onRoute...)
	plugins := append([]string(nil), a.plugins...)
	a.mu.Unlock()

	for _, route := range routes {
		for _, hook := range hooks {
			if err := hook(route); err != nil {
				return fmt.Errorf("route %s: %w", route.ID(), err)
			}
		}
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, NewHTTPError(http.StatusNotFound, "route "+r.Method+" "+r.URL.Path+" not found"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, NewHTTPError(http.StatusMethodNotAllowed, ""))
	})

	for _, route := range routes {
		router.Handle(route.URL, a.dispatch(route)).Methods(route.Method)
	}

	var h http.Handler = router
	if a.options.CORS != nil {
		h = cors.New(*a.options.CORS).Handler(h)
	}

	a.handler = h
	a.ready.Store(true)

	a.logger.Info("host ready",
		zap.Int("routes", len(routes)),
		zap.Strings("plugins", plugins),
		zap.String("version", a.options.Version))
	return nil
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !a.ready.Load() {
		writeError(w, &HTTPError{Status: http.StatusServiceUnavailable, Message: ErrNotReady.Error()})
		return
	}
	a.handler.ServeHTTP(w, r)
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (a *App) dispatch(route *Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		req := &Request{
			ID:     requestID(r),
			Route:  route,
			Params: parseParams(mux.Vars(r)),
			Query:  parseQuery(r.URL.Query()),
			Raw:    r,
		}
		rep := newReply(route)
		w.Header().Set("X-Request-ID", req.ID)

		status, err := a.lifecycle(w, req, rep)

		fields := []zap.Field{
			zap.String("request_id", req.ID),
			zap.String("route", route.ID()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		switch {
		case err != nil && status >= http.StatusInternalServerError:
			a.logger.Error("request failed", append(fields, zap.Error(err))...)
		case err != nil:
			a.logger.Info("request rejected", append(fields, zap.Error(err))...)
		default:
			a.logger.Debug("request completed", fields...)
		}
	})
}

func (a *App) lifecycle(rw http.ResponseWriter, req *Request, rep *Reply) (status int, err error) {
	w := &headerTracker{ResponseWriter: rw}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
			if w.status != 0 {
				// the reply is already on the wire
				status = w.status
				a.logger.Error("panic after reply was written", zap.String("request_id", req.ID), zap.Error(err))
				return
			}
			status = writeError(w, err)
		}
	}()

	if err := a.run(req, rep); err != nil {
		return writeError(w, err), err
	}

	data, contentType, err := encodeReply(rep)
	if err != nil {
		return writeError(w, err), err
	}

	if err := writeReply(w, rep, data, contentType); err != nil {
		a.logger.Debug("unable to write reply", zap.String("request_id", req.ID), zap.Error(err))
	}
	if !rep.sent || rep.Payload == nil {
		return http.StatusNoContent, nil
	}
	return rep.Status, nil
}

func (a *App) run(req *Request, rep *Reply) error {
	body, err := parseBody(req.Raw, a.options.BodyLimit)
	if err != nil {
		return err
	}
	req.Body = body

	for _, hook := range a.beforeHandler {
		if err := hook(req, rep); err != nil {
			return err
		}
	}

	if err := req.Route.Handler(req, rep); err != nil {
		return err
	}

	for _, hook := range a.beforeSerialize {
		if err := hook(req, rep); err != nil {
			return err
		}
	}

	return nil
}

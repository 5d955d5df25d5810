// Package server turns a route manifest into a running, reloadable HTTP handler:
// a host app with the routeschema plugin, stub handlers for every route and the
// inspection endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/masnyjimmy/qvalidate/host"
	"github.com/masnyjimmy/qvalidate/inspect"
	"github.com/masnyjimmy/qvalidate/manifest"
	"github.com/masnyjimmy/qvalidate/openapi"
	"github.com/masnyjimmy/qvalidate/routeschema"
	"github.com/masnyjimmy/qvalidate/schema"
	"github.com/masnyjimmy/qvalidate/watch"
)

type Options struct {
	Logger *zap.Logger

	// Validator is the explicit options layer, on top of the manifest's validator
	// section.
	Validator schema.Options

	// OnFailure receives every validation failure of the current instance.
	OnFailure func(ctx context.Context, f routeschema.Failure)
}

// Instance is one ready host app built from one manifest.
type Instance struct {
	App      *host.App
	Document []byte
}

func corsOptions(c *manifest.CORS) *cors.Options {
	if c == nil {
		return nil
	}
	return &cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}

// Build creates and readies a host app for m. Schema compile errors are returned
// here, before any traffic is served.
func Build(m *manifest.Manifest, opt Options) (*Instance, error) {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := host.New(host.Options{
		Settings: map[string]any{
			routeschema.SettingName: m.Validator,
		},
		Logger: logger,
		CORS:   corsOptions(m.CORS),
	})

	plugin := routeschema.New(routeschema.Options{
		Schema:    opt.Validator,
		OnFailure: opt.OnFailure,
	})
	if err := app.Register(plugin); err != nil {
		return nil, err
	}

	for _, route := range m.HostRoutes() {
		if _, err := app.Route(route); err != nil {
			return nil, err
		}
	}

	if err := app.Ready(); err != nil {
		return nil, err
	}

	document, err := openapi.BuildJSON(openapi.Info{
		Title:       m.Info.Title,
		Version:     m.Info.Version,
		Description: m.Info.Description,
	}, app.Routes())
	if err != nil {
		return nil, err
	}

	return &Instance{App: app, Document: document}, nil
}

// Reloadable forwards requests to the current app. Swapping never interrupts
// requests already running on the previous app.
type Reloadable struct {
	current atomic.Pointer[host.App]
}

func (r *Reloadable) Swap(app *host.App) {
	r.current.Store(app)
}

func (r *Reloadable) Current() *host.App {
	return r.current.Load()
}

func (r *Reloadable) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	app := r.current.Load()
	if app == nil {
		http.Error(w, host.ErrNotReady.Error(), http.StatusServiceUnavailable)
		return
	}
	app.ServeHTTP(w, req)
}

// Server serves a manifest file and rebuilds it on demand.
type Server struct {
	filename  string
	options   Options
	logger    *zap.Logger
	inspector *inspect.Inspector
	handler   Reloadable
}

func New(filename string, opt Options) (*Server, error) {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	s := &Server{
		filename: filename,
		logger:   opt.Logger,
	}
	s.inspector = inspect.New(nil, inspect.Options{Logger: opt.Logger.Named("inspect")})

	onFailure := opt.OnFailure
	opt.OnFailure = func(ctx context.Context, f routeschema.Failure) {
		s.inspector.Publish(f)
		if onFailure != nil {
			onFailure(ctx, f)
		}
	}
	s.options = opt

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload reads the manifest again and swaps in a new instance. On error the
// current instance keeps serving.
func (s *Server) Reload() error {
	m, err := manifest.Load(s.filename)
	if err != nil {
		return err
	}

	instance, err := Build(m, s.options)
	if err != nil {
		return fmt.Errorf("unable to build %s: %w", s.filename, err)
	}

	s.handler.Swap(instance.App)
	s.inspector.SetDocument(instance.Document)

	s.logger.Info("manifest loaded",
		zap.String("file", s.filename),
		zap.Int("routes", len(m.Routes)))
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.inspector.Handler(&s.handler)
}

func (s *Server) Inspector() *inspect.Inspector {
	return s.inspector
}

// Watch reloads the manifest whenever its file changes, until ctx is done.
func (s *Server) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := watch.File(s.filename, debounce)
	if err != nil {
		return err
	}
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watcher.Updates():
			if err != nil {
				s.logger.Warn("watch error", zap.Error(err))
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Error("unable to reload manifest", zap.Error(err))
			}
		}
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("server started", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

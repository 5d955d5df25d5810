// Package inspect exposes a running instance for debugging: the OpenAPI document of
// its routes and a server-sent event feed of reloads and validation failures.
package inspect

import (
	"encoding/json"
	"net/http"
	"path"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/masnyjimmy/qvalidate/routeschema"
)

const (
	DefaultBaseURL = "/_inspect"

	EventReload    = "reload"
	EventViolation = "violation"
)

type Options struct {
	BaseURL string
	Logger  *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		BaseURL: DefaultBaseURL,
	}
}

type urls struct {
	Document string
	Events   string
}

func makeUrls(base string) urls {
	return urls{
		Document: path.Join(base, "openapi.json"),
		Events:   path.Join(base, "events"),
	}
}

type Inspector struct {
	broadcaster *broadcaster
	urls        urls
	logger      *zap.Logger

	mu       sync.RWMutex
	document []byte
}

func New(document []byte, opt Options) *Inspector {
	if opt.BaseURL == "" {
		opt.BaseURL = DefaultBaseURL
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	return &Inspector{
		broadcaster: newBroadcaster(),
		urls:        makeUrls(opt.BaseURL),
		logger:      opt.Logger,
		document:    slices.Clone(document),
	}
}

// Handler serves the inspection endpoints and passes every other request to h.
func (s *Inspector) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case s.urls.Document:
			w.Header().Set("Content-Type", "application/json")
			w.Write(s.Document())
		case s.urls.Events:
			s.broadcaster.ServeHTTP(w, r)
		default:
			if h != nil {
				h.ServeHTTP(w, r)
			} else {
				http.NotFound(w, r)
			}
		}
	})
}

func (s *Inspector) Document() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// SetDocument swaps the served document and notifies subscribers with a reload event.
func (s *Inspector) SetDocument(document []byte) {
	s.mu.Lock()
	s.document = slices.Clone(document)
	s.mu.Unlock()
	s.broadcaster.broadcast(event{name: EventReload, data: EventReload})
}

// Publish sends a validation failure to subscribers as a violation event.
func (s *Inspector) Publish(f routeschema.Failure) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Error("unable to encode failure", zap.Error(err))
		return
	}
	s.broadcaster.broadcast(event{name: EventViolation, data: string(data)})
}

// Subscribers returns the number of connected event streams.
func (s *Inspector) Subscribers() int {
	return s.broadcaster.count()
}

package host

import (
	"errors"
	"net/http"
)

var (
	// ErrNotReady is returned when serving before Ready completed
	ErrNotReady = errors.New("host is not ready")

	// ErrStarted is returned when registering after Ready
	ErrStarted = errors.New("host already started")

	// ErrVersion is returned when a plugin does not support this host version
	ErrVersion = errors.New("unsupported host version")

	// ErrDecorated is returned when a decoration name is already taken
	ErrDecorated = errors.New("decoration already registered")

	// ErrRoute is returned for an invalid route definition
	ErrRoute = errors.New("invalid route")
)

// StatusCoder is implemented by errors that know which HTTP status they map to.
type StatusCoder interface {
	StatusCode() int
}

// HTTPError is a request error with an explicit status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string   { return e.Message }
func (e *HTTPError) StatusCode() int { return e.Status }

// NewHTTPError builds an HTTPError; an empty message uses the status text.
func NewHTTPError(status int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HTTPError{Status: status, Message: message}
}

func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 600 {
			return code
		}
	}
	return http.StatusInternalServerError
}

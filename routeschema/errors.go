package routeschema

import (
	"net/http"

	"github.com/masnyjimmy/qvalidate/schema"
)

// Error is raised when a request part or a reply does not match its route schema.
// Its message is exactly the formatted violation text; the structured violations stay
// reachable through Unwrap / errors.As.
type Error struct {
	Part  Part
	Route string
	Err   *schema.ValidationError
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) StatusCode() int {
	return http.StatusBadRequest
}

func (e *Error) Violations() []schema.Violation {
	return e.Err.Violations
}

package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Violation is a single failed constraint.
type Violation struct {
	// Path is the JSON pointer of the offending value ("" for the root).
	Path string `json:"path"`

	// Keyword is the schema keyword that failed, e.g. "type" or "required".
	Keyword string `json:"keyword"`

	// Message is the human-readable description, without the path.
	Message string `json:"message"`
}

// ValidationError is returned by Validator.Validate when a value does not conform.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return ErrorsText(e.Violations)
}

const (
	dataVar   = "data"
	separator = ", "
)

// ErrorsText renders violations as "data/<path> <message>" joined by ", ". Violations
// produced by a Validator are ordered by path, not by the order keywords were
// evaluated in, so the text is stable across runs; a missing required property is
// reported once per property.
func ErrorsText(violations []Violation) string {
	if len(violations) == 0 {
		return "No errors"
	}

	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = dataVar + v.Path + " " + v.Message
	}
	return strings.Join(parts, separator)
}

func collectViolations(err *jsonschema.ValidationError) []Violation {
	var out []Violation
	walkLeaves(err, &out)

	slices.SortStableFunc(out, func(a, b Violation) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

func walkLeaves(err *jsonschema.ValidationError, out *[]Violation) {
	if len(err.Causes) == 0 {
		*out = append(*out, newViolations(err)...)
		return
	}

	for _, cause := range err.Causes {
		walkLeaves(cause, out)
	}
}

func newViolations(err *jsonschema.ValidationError) []Violation {
	keyword := ""
	if path := err.ErrorKind.KeywordPath(); len(path) > 0 {
		keyword = path[len(path)-1]
	}
	path := instancePointer(err.InstanceLocation)

	if req, ok := err.ErrorKind.(*kind.Required); ok && len(req.Missing) > 1 {
		out := make([]Violation, len(req.Missing))
		for i, name := range req.Missing {
			out[i] = Violation{
				Path:    path,
				Keyword: keyword,
				Message: requiredMessage(name),
			}
		}
		return out
	}

	return []Violation{{
		Path:    path,
		Keyword: keyword,
		Message: describe(err.ErrorKind),
	}}
}

func requiredMessage(name string) string {
	return "must have required property '" + name + "'"
}

func instancePointer(tokens []string) string {
	var b strings.Builder
	escaper := strings.NewReplacer("~", "~0", "/", "~1")
	for _, tok := range tokens {
		b.WriteByte('/')
		b.WriteString(escaper.Replace(tok))
	}
	return b.String()
}

// describe phrases the common keywords the way clients of this library have come to
// expect; anything else falls back to the engine's English message.
func describe(k jsonschema.ErrorKind) string {
	switch k := k.(type) {
	case *kind.Type:
		return "must be " + strings.Join(k.Want, ",")
	case *kind.Required:
		if len(k.Missing) == 0 {
			return "must have required property"
		}
		return requiredMessage(k.Missing[0])
	case *kind.AdditionalProperties:
		return "must NOT have additional properties"
	case *kind.Enum:
		return "must be equal to one of the allowed values"
	case *kind.Const:
		return "must be equal to constant"
	case *kind.MinLength:
		return fmt.Sprintf("must NOT have fewer than %d characters", k.Want)
	case *kind.MaxLength:
		return fmt.Sprintf("must NOT have more than %d characters", k.Want)
	case *kind.MinItems:
		return fmt.Sprintf("must NOT have fewer than %d items", k.Want)
	case *kind.MaxItems:
		return fmt.Sprintf("must NOT have more than %d items", k.Want)
	case *kind.Pattern:
		return fmt.Sprintf("must match pattern %q", k.Want)
	case *kind.Format:
		return fmt.Sprintf("must match format %q", k.Want)
	default:
		return k.LocalizedString(message.NewPrinter(language.English))
	}
}

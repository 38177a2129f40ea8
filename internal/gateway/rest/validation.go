package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// structValidator reports fields by their JSON names.
var structValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// ValidationError is one rejected field of a request body.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned by validateStruct and rendered as a 400.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

var tagMessages = map[string]string{
	"required":    "This field is required",
	"min":         "Must contain at least %s",
	"max":         "Must be at most %s",
	"excludesall": "Must not contain any of %q",
	"oneof":       "Must be one of: %s",
}

func fieldMessage(fe validator.FieldError) string {
	format, ok := tagMessages[fe.Tag()]
	switch {
	case !ok:
		return "Failed validation: " + fe.Tag()
	case strings.Contains(format, "%"):
		return fmt.Sprintf(format, fe.Param())
	default:
		return format
	}
}

// validateStruct checks validate tags on s. Field paths drop the
// top-level type name, e.g. "items[0].entityId".
func validateStruct(s any) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{Errors: []ValidationError{{Field: "unknown", Message: err.Error()}}}
	}
	out := ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out.Errors = append(out.Errors, ValidationError{Field: field, Message: fieldMessage(fe)})
	}
	return out
}

// decodeBody reads a JSON body. A *http.MaxBytesError is returned
// unwrapped so callers can answer 413.
func decodeBody[T any](r *http.Request) (*T, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, errors.New("request body is required")
	}
	v := new(T)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return v, nil
}

func decodeAndValidate[T any](r *http.Request) (*T, error) {
	v, err := decodeBody[T](r)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(v); err != nil {
		return nil, err
	}
	return v, nil
}

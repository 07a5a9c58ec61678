package credentials

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/go-playground/validator/v10"
)

// ErrValidation matches every *ValidationError
var ErrValidation = errors.New("validation failed")

// ValidationError lists every problem found in a server record
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names, which is what callers send
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the fields a server needs before it can be saved.
// It returns a *ValidationError naming every failing field.
func Validate(srv *types.Server) error {
	if srv == nil {
		return &ValidationError{Problems: []string{"server is required"}}
	}

	trimmed := *srv
	trimmed.Name = strings.TrimSpace(srv.Name)
	trimmed.Host = strings.TrimSpace(srv.Host)
	trimmed.Username = strings.TrimSpace(srv.Username)

	err := validate.Struct(&trimmed)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return &ValidationError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url", "http_url":
		return fe.Field() + " must be a valid http or https URL"
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/continuity-handoff/internal/jobs"
	"github.com/jonathan/continuity-handoff/internal/schemas"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		ve       *ErrValidation
		schemaVE *schemas.ValidationError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &schemaVE), errors.Is(err, jobs.ErrInvalidCheckpoint):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrResultTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, jobs.ErrCheckpointsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// validationError converts the first validator failure into an ErrValidation
func validationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return &ErrValidation{Field: errs[0].Field(), Message: errs[0].Tag()}
	}
	return &ErrValidation{Field: "body", Message: err.Error()}
}

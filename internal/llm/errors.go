package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPStatusError is a provider error that carries an HTTP status
type HTTPStatusError struct {
	StatusCode int
	Cause      error
}

func (e *HTTPStatusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider status %d: %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("provider status %d", e.StatusCode)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether err is a 429-equivalent provider response
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "429")
}

// Attempt records one failed model in a chain
type Attempt struct {
	Model ModelRef
	Err   error
}

// ChainError is returned when every model in a chain failed
type ChainError struct {
	Attempts []Attempt
	Cause    error
}

func (e *ChainError) Error() string {
	if len(e.Attempts) == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("model chain failed: %v", e.Cause)
		}
		return "model chain failed: no models available"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Model, a.Err))
	}
	return "model chain failed: " + strings.Join(parts, "; ")
}

func (e *ChainError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	if n := len(e.Attempts); n > 0 {
		return e.Attempts[n-1].Err
	}
	return nil
}

// ErrEmptyOutput is recorded when a model returns blank or error-shaped text
var ErrEmptyOutput = errors.New("error-shaped or empty output")

// errorMarkers are prefixes some proxies return in place of a completion
var errorMarkers = []string{"(groq error)", "(groq disabled)", "(llm error)", "(error)"}

// IsErrorShaped reports whether a completion is empty or an inline error marker
func IsErrorShaped(out string) bool {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, m := range errorMarkers {
		if strings.HasPrefix(lower, m) {
			return true
		}
	}
	return false
}

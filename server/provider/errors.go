package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Excerpt limits for upstream error bodies.
const (
	CatalogExcerptLimit    = 500
	CompletionExcerptLimit = 2000
)

var (
	// ErrNoModels indicates the catalog held no usable model ids
	ErrNoModels = errors.New("no models returned by Groq")

	// ErrEmptyContent indicates a successful completion without usable text,
	// including a body that could not be decoded
	ErrEmptyContent = errors.New("empty content from Groq")

	// ErrInvalidCatalog indicates the models response did not match its schema
	ErrInvalidCatalog = errors.New("invalid models response from Groq")
)

// StatusError is a non-success HTTP response from the upstream API.
type StatusError struct {
	Status  int
	Excerpt string
	Err     error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Excerpt)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Excerpt trims s and cuts it to at most limit runes.
func Excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// IsBreakerSuccess reports whether err should leave the circuit breaker
// untouched. Client-side rejections and caller cancellation say nothing
// about upstream health; rate limiting and server errors do.
func IsBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyContent) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status < http.StatusInternalServerError &&
			statusErr.Status != http.StatusTooManyRequests
	}
	return false
}

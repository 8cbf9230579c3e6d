package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// Error is a failure already classified into an HTTP status and a detail
// message safe to show to callers.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

// APIError reports a non-2xx answer from the generation API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation api returned status %d: %s", e.StatusCode, e.Body)
}

func timeoutError(err error) *Error {
	return &Error{
		Status: http.StatusGatewayTimeout,
		Detail: "Image generation timeout: " + Category(err),
	}
}

// classify turns any error from the generation call into an *Error.
// Errors that are already classified are returned unchanged.
func classify(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(err)
	}
	return &Error{
		Status: http.StatusInternalServerError,
		Detail: "Failed to generate image: " + Category(err),
	}
}

// Category names the kind of an error without its message: the first
// exported type found while unwrapping, or the innermost type otherwise.
func Category(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DeadlineExceeded"
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}

	last := err
	for current := err; current != nil; current = errors.Unwrap(current) {
		last = current
		name := typeName(current)
		if name == "" {
			continue
		}
		short := name[strings.LastIndex(name, ".")+1:]
		if short != "" && short[0] >= 'A' && short[0] <= 'Z' {
			return name
		}
	}
	return typeName(last)
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

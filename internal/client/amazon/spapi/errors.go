package spapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited means the upstream quota is exhausted. Retry after a pause.
	ErrRateLimited = errors.New("spapi: rate limited")
	// ErrNotFound means the item has no active listings.
	ErrNotFound = errors.New("spapi: not found")
	// ErrTransient covers network, parse and 5xx failures as well as an open
	// circuit breaker.
	ErrTransient = errors.New("spapi: transient failure")
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spapi error (%d): %s", e.Status, e.Body)
}

// Unwrap maps the HTTP status onto the package sentinels so callers can use
// errors.Is without looking at status codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrTransient
	}
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
}

// countsAsFailure reports whether err should move the circuit breaker.
// Missing items and quota answers say nothing about upstream health.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrRateLimited)
}

// Package errs defines the error kinds surfaced by the houdl packages.
//
// Every kind is a struct carrying enough context for an actionable message
// (endpoint, status, filter parameters) and matches its sentinel via
// [errors.Is]:
//
//	if errors.Is(err, errs.ErrAuth) { ... }
//
//	var apiErr *errs.APIError
//	if errors.As(err, &apiErr) { fmt.Println(apiErr.Status) }
package errs

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrAuth is matched by [AuthError].
	ErrAuth = errors.New("authorization failed")
	// ErrNetwork is matched by [NetworkError].
	ErrNetwork = errors.New("network failure")
	// ErrAPI is matched by [APIError].
	ErrAPI = errors.New("api error")
	// ErrNotFound is matched by [NotFoundError].
	ErrNotFound = errors.New("not found")
)

// AuthError reports rejected or expired credentials.
type AuthError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrAuth, e.Endpoint)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError reports a connection or transport failure.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrNetwork, e.Endpoint, e.Err)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response, or a 2xx response whose body
// does not honour the API contract.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%v: %s: status %d", ErrAPI, e.Endpoint, e.Status)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s, body: %s", msg, e.Body)
	}

	return msg
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

func (e *APIError) Unwrap() error { return e.Err }

// NotFoundError reports that no build or artifact matched the given parameters.
type NotFoundError struct {
	What   string
	Params map[string]string
}

func (e *NotFoundError) Error() string {
	if len(e.Params) == 0 {
		return fmt.Sprintf("%s %v", e.What, ErrNotFound)
	}

	parts := make([]string, 0, len(e.Params))
	for _, k := range slices.Sorted(maps.Keys(e.Params)) {
		parts = append(parts, k+"="+e.Params[k])
	}

	return fmt.Sprintf("%s %v: %s", e.What, ErrNotFound, strings.Join(parts, " "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

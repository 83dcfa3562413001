package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// maxErrBodySize is how much of an unexpected response is kept in
	// an UnexpectedStatusError.
	maxErrBodySize = 4 << 10

	// maxDrainSize is how much of an unread body is drained before close.
	maxDrainSize = 64 << 10
)

var (
	// ErrUnexpectedStatusCode is wrapped by every [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is also wrapped when the status was 401 or 403.
	ErrAuthFailure = errors.New("auth failure")
	// ErrTransport wraps failures to obtain a response at all.
	ErrTransport = errors.New("transport failure")
	// ErrDecode wraps failures decoding a JSON response body.
	ErrDecode = errors.New("decoding body")
)

// UnexpectedStatusError reports a response whose status differs from the
// one the caller expected. Body holds at most the first 4KB, trimmed.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}

func newStatusError(resp *http.Response) *UnexpectedStatusError {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	if err != nil {
		b = []byte("unable to read body")
	}

	sentinel := ErrUnexpectedStatusCode
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sentinel = fmt.Errorf("%w: %w", ErrAuthFailure, ErrUnexpectedStatusCode)
	}

	return &UnexpectedStatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(b)),
		Err:        sentinel,
	}
}

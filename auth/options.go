package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Option is a functional option for configuring a [Session] via [NewSession].
type Option func(*options) error

type options struct {
	tokenURL *url.URL
	logger   *slog.Logger
	timeout  *time.Duration
	now      func() time.Time
}

// WithTokenURL overrides [DefaultTokenURL].
func WithTokenURL(raw string) Option {
	return func(o *options) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing token url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("token url %q must be absolute", raw)
		}

		o.tokenURL = u
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Session].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}

		o.logger = logger
		return nil
	}
}

// WithTimeout bounds each token request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}

		o.timeout = &d
		return nil
	}
}

// WithClock replaces time.Now, letting tests control expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}

		o.now = now
		return nil
	}
}

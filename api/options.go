package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring a [Client] via [New].
type Option func(*options) error

type options struct {
	endpoint *url.URL
	logger   *slog.Logger
	tracer   trace.Tracer
	timeout  *time.Duration
}

// WithEndpoint overrides [DefaultEndpoint].
func WithEndpoint(raw string) Option {
	return func(o *options) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing endpoint: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("endpoint %q must be absolute", raw)
		}

		o.endpoint = u
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}

		o.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used for per-attempt spans.
// A no-op tracer is used when unset.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}

		o.tracer = tracer
		return nil
	}
}

// WithTimeout bounds a whole Call, including a refresh and the retried
// request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}

		o.timeout = &d
		return nil
	}
}

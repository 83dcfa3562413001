package houdl

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/houdl/client/throttle"
)

// Option defines optional settings for a [Service].
//
// WithTokenURL and WithAPIURL point the Service at a different vendor
// deployment. WithThrottle limits token and API requests only; artifact
// downloads are never throttled.
type Option func(*serviceOpts) error
type serviceOpts struct {
	tokenURL  string
	apiURL    string
	rt        http.RoundTripper
	timeout   *time.Duration
	userAgent string
	throttle  *throttle.Config
	chunkSize int
	tp        trace.TracerProvider
	logger    *slog.Logger
}

func WithTokenURL(raw string) Option {
	return func(o *serviceOpts) error {
		if raw == "" {
			return errors.New("token url must not be empty")
		}
		o.tokenURL = raw
		return nil
	}
}

func WithAPIURL(raw string) Option {
	return func(o *serviceOpts) error {
		if raw == "" {
			return errors.New("api url must not be empty")
		}
		o.apiURL = raw
		return nil
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(o *serviceOpts) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		o.rt = rt
		return nil
	}
}

// WithTimeout bounds each token request and each API call. Artifact
// streams are bounded only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *serviceOpts) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		o.timeout = &d
		return nil
	}
}

func WithUserAgent(header string) Option {
	return func(o *serviceOpts) error {
		o.userAgent = header
		return nil
	}
}

func WithThrottle(rps, burst int) Option {
	return func(o *serviceOpts) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		o.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

func WithChunkSize(n int) Option {
	return func(o *serviceOpts) error {
		if n <= 0 {
			return errors.New("chunk size must be greater than zero")
		}
		o.chunkSize = n
		return nil
	}
}

// WithTracerProvider traces API calls and artifact streams.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *serviceOpts) error {
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		o.tp = tp
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOpts) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/adamwoolhether/houdl/client/throttle"
)

// Option configures a [Client] built by [Build].
type Option func(*options) error

type options struct {
	base     http.RoundTripper
	headers  http.Header
	throttle *throttle.Config
	logger   *slog.Logger
}

// WithTransport replaces [http.DefaultTransport] as the base of the chain.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		o.base = rt
		return nil
	}
}

// WithUserAgent sets the User-Agent of every request.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return errors.New("user agent must not be empty")
		}
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set("User-Agent", ua)
		return nil
	}
}

// WithThrottle limits the Client to rps requests per second, with bursts
// of up to burst requests.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		o.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithLogger injects the logger used by the Client and its throttle.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// DoOption configures a single [Client.Do].
type DoOption func(*doOpts)

type doOpts struct {
	dest any
}

// WithDestination decodes the JSON response body into dest.
func WithDestination[T any](dest *T) DoOption {
	return func(o *doOpts) {
		o.dest = dest
	}
}

// RequestOption configures a request built by [Client.Request].
type RequestOption func(*requestOpts) error

type requestOpts struct {
	form        url.Values
	contentType string
	headers     http.Header
	basicAuth   *basicAuth
	bearer      string
}

type basicAuth struct {
	user string
	pass string
}

// WithForm sets a url-encoded form body.
func WithForm(form url.Values) RequestOption {
	return func(o *requestOpts) error {
		if form == nil {
			return errors.New("form must not be nil")
		}
		o.form = form
		return nil
	}
}

// WithContentType sets the Content-Type header, overriding the form default.
func WithContentType(contentType string) RequestOption {
	return func(o *requestOpts) error {
		if contentType == "" {
			return errors.New("content type must not be empty")
		}
		o.contentType = contentType
		return nil
	}
}

// WithHeaders adds headers to the request.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(o *requestOpts) error {
		o.headers = headers
		return nil
	}
}

// WithBasicAuth sets HTTP basic authentication. It takes precedence over
// [WithBearerToken].
func WithBasicAuth(user, pass string) RequestOption {
	return func(o *requestOpts) error {
		if user == "" {
			return errors.New("basic auth user must not be empty")
		}
		o.basicAuth = &basicAuth{user: user, pass: pass}
		return nil
	}
}

// WithBearerToken sets an Authorization: Bearer header.
func WithBearerToken(token string) RequestOption {
	return func(o *requestOpts) error {
		if token == "" {
			return errors.New("bearer token must not be empty")
		}
		o.bearer = token
		return nil
	}
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adamwoolhether/houdl/client/throttle"
)

// Client carries the token exchange, API calls and artifact downloads of
// one houdl service over a shared transport chain.
type Client struct {
	hc     *http.Client
	logger *slog.Logger
}

// Build constructs a Client from the given options. The transport chain is
// base transport, then header stamping, then the throttle.
func Build(optFns ...Option) (*Client, error) {
	opts := options{
		base:   http.DefaultTransport,
		logger: slog.Default(),
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	c := &Client{logger: opts.logger}

	rt := opts.base
	if len(opts.headers) > 0 {
		rt = stamp{headers: opts.headers, next: rt}
	}
	if opts.throttle != nil {
		var err error
		rt, err = throttle.NewRoundTripper(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return c.logger }, rt)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
	}

	// No overall timeout: downloads run for as long as their context allows.
	c.hc = &http.Client{Transport: rt}

	return c, nil
}

// Logger returns the logger the Client was built with, so the packages
// sharing a Client also share its logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Request builds a request for u. A form body sets the Content-Type to
// application/x-www-form-urlencoded unless [WithContentType] overrides it.
func (c *Client) Request(ctx context.Context, u *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if settings.form != nil {
		body = strings.NewReader(settings.form.Encode())
		if settings.contentType == "" {
			settings.contentType = "application/x-www-form-urlencoded"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	if settings.contentType != "" {
		req.Header.Set("Content-Type", settings.contentType)
	}
	for k, vals := range settings.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	switch {
	case settings.basicAuth != nil:
		req.SetBasicAuth(settings.basicAuth.user, settings.basicAuth.pass)
	case settings.bearer != "":
		req.Header.Set("Authorization", "Bearer "+settings.bearer)
	}

	return req, nil
}

// Do sends req and, when [WithDestination] is given, decodes the JSON body.
// A status other than expCode yields an [UnexpectedStatusError].
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		opt(&settings)
	}

	resp, err := c.send(req, expCode)
	if err != nil {
		return err
	}
	defer c.discard(resp)

	if settings.dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(settings.dest); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return nil
}

// Open sends req and returns the response with its body unread, for
// callers streaming large payloads. The caller must close the body.
func (c *Client) Open(req *http.Request, expCode int) (*http.Response, error) {
	return c.send(req, expCode)
}

func (c *Client) send(req *http.Request, expCode int) (*http.Response, error) {
	start := time.Now()

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.logger.Debug("http exchange",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode != expCode {
		defer c.discard(resp)
		return nil, newStatusError(resp)
	}

	return resp, nil
}

// discard drains what is left of a body, up to maxDrainSize, so the
// connection returns to the pool.
func (c *Client) discard(resp *http.Response) {
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize)); err != nil {
		c.logger.Debug("draining response body", "error", err)
	}
	if err := resp.Body.Close(); err != nil {
		c.logger.Error("closing response body", "error", err)
	}
}

// stamp is an http.RoundTripper setting fixed headers on every request.
type stamp struct {
	headers http.Header
	next    http.RoundTripper
}

func (s stamp) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	for k, vals := range s.headers {
		cpy.Header[k] = vals
	}

	return s.next.RoundTrip(cpy)
}

// Package api calls the vendor's JSON RPC endpoint on behalf of an
// authenticated session.
//
// Each call is a POST whose single form field json carries
// [method, [], params] and whose Authorization header carries the bearer
// token. A call rejected with 401 or 403 refreshes the token once and is
// re-sent once; no other failure is retried.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/houdl/auth"
	"github.com/adamwoolhether/houdl/client"
	"github.com/adamwoolhether/houdl/errs"
)

// DefaultEndpoint is the vendor's RPC endpoint.
const DefaultEndpoint = "https://www.sidefx.com/api"

// RPC methods understood by the endpoint.
const (
	MethodListBuilds    = "download.get_daily_builds_list"
	MethodBuildDownload = "download.get_daily_build_download"
)

// RequestIDHeader carries a fresh identifier on every attempt.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies bearer tokens. [auth.Session] satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (auth.AccessToken, error)
	Refresh(ctx context.Context) (auth.AccessToken, error)
}

// Client sends authenticated RPC calls.
type Client struct {
	hc       *client.Client
	tokens   TokenSource
	endpoint *url.URL
	logger   *slog.Logger
	tracer   trace.Tracer
	timeout  time.Duration
}

// New constructs a Client.
func New(hc *client.Client, tokens TokenSource, optFns ...Option) (*Client, error) {
	if hc == nil {
		return nil, errors.New("http client must not be nil")
	}
	if tokens == nil {
		return nil, errors.New("token source must not be nil")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying api option: %w", err)
		}
	}

	c := &Client{
		hc:     hc,
		tokens: tokens,
		logger: hc.Logger(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}

	if opts.endpoint != nil {
		c.endpoint = opts.endpoint
	} else {
		u, err := url.Parse(DefaultEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing default endpoint: %w", err)
		}
		c.endpoint = u
	}
	if opts.logger != nil {
		c.logger = opts.logger
	}
	if opts.tracer != nil {
		c.tracer = opts.tracer
	}
	if opts.timeout != nil {
		c.timeout = *opts.timeout
	}

	return c, nil
}

// Call invokes method with params and decodes the JSON result into dest,
// which must be a pointer or nil.
//
// Errors are [errs.AuthError] when the token is rejected even after one
// refresh, [errs.APIError] for any other non-2xx status or a malformed body,
// and [errs.NetworkError] when no response was received.
func (c *Client) Call(ctx context.Context, method string, params any, dest any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		tok     auth.AccessToken
		err     error
		attempt int
	)

	st := stateUnauthenticated
	for !st.terminal() {
		var o outcome

		switch st {
		case stateUnauthenticated:
			tok, err = c.tokens.Token(ctx)
			o = classify(err)

		case stateAuthenticated, stateRefreshAttempted:
			attempt++
			err = c.send(ctx, method, params, dest, tok.Value, attempt)
			o = classify(err)
		}

		prev := st
		st = next(st, o)
		c.logger.Debug("api call transition", "method", method, "from", prev, "outcome", o, "to", st)

		if st == stateRefreshAttempted {
			tok, err = c.tokens.Refresh(ctx)
			if err != nil {
				st = next(st, classify(err))
			}
		}
	}

	if st == stateFailed {
		return fmt.Errorf("calling %s: %w", method, err)
	}

	return nil
}

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, errs.ErrAuth):
		return outcomeAuthFailure
	default:
		return outcomeFailure
	}
}

// send performs one attempt of the call.
func (c *Client) send(ctx context.Context, method string, params any, dest any, token string, attempt int) error {
	reqID := uuid.NewString()

	ctx, span := c.tracer.Start(ctx, "api.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", method),
			attribute.String("request.id", reqID),
			attribute.Int("attempt", attempt),
		),
	)
	defer span.End()

	err := c.roundTrip(ctx, method, params, dest, token, reqID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (c *Client) roundTrip(ctx context.Context, method string, params any, dest any, token, reqID string) error {
	endpoint := c.endpoint.String()

	payload, err := encodeCall(method, params)
	if err != nil {
		return err
	}

	req, err := c.hc.Request(ctx, c.endpoint, http.MethodPost,
		client.WithForm(url.Values{"json": {payload}}),
		client.WithBearerToken(token),
		client.WithHeaders(map[string][]string{RequestIDHeader: {reqID}}),
	)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.Debug("api request", "method", method, "request_id", reqID)

	var raw json.RawMessage
	if err := c.hc.Do(req, http.StatusOK, client.WithDestination(&raw)); err != nil {
		var statusErr *client.UnexpectedStatusError
		switch {
		case errors.Is(err, client.ErrAuthFailure) && errors.As(err, &statusErr):
			return &errs.AuthError{Endpoint: endpoint, Status: statusErr.StatusCode, Err: err}
		case errors.As(err, &statusErr):
			return &errs.APIError{Endpoint: endpoint, Status: statusErr.StatusCode, Body: statusErr.Body, Err: client.ErrUnexpectedStatusCode}
		case errors.Is(err, client.ErrDecode):
			return &errs.APIError{Endpoint: endpoint, Status: http.StatusOK, Err: err}
		default:
			return &errs.NetworkError{Endpoint: endpoint, Err: err}
		}
	}

	if dest == nil {
		return nil
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return &errs.APIError{Endpoint: endpoint, Status: http.StatusOK, Body: truncate(raw), Err: fmt.Errorf("%w: %w", client.ErrDecode, err)}
	}

	return nil
}

// encodeCall renders the json form value: [method, [], params].
func encodeCall(method string, params any) (string, error) {
	if params == nil {
		params = struct{}{}
	}

	b, err := json.Marshal([]any{method, []any{}, params})
	if err != nil {
		return "", fmt.Errorf("encoding %s params: %w", method, err)
	}

	return string(b), nil
}

const maxBodyInError = 512

func truncate(raw []byte) string {
	if len(raw) > maxBodyInError {
		return string(raw[:maxBodyInError]) + "..."
	}

	return string(raw)
}

// Package auth exchanges long-lived application credentials for
// short-lived bearer tokens and keeps the current token for reuse.
//
// A [Session] hands out its cached [AccessToken] while more than
// [ExpiryMargin] of its lifetime remains and acquires a new one otherwise:
//
//	creds, _ := auth.NewCredentials(os.Getenv("SESI_USER_ID"), os.Getenv("SESI_USER_SECRET"))
//	sess, err := auth.NewSession(creds, hc)
//	tok, err := sess.Token(ctx)
//
// Tokens live in process memory only.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adamwoolhether/houdl/client"
	"github.com/adamwoolhether/houdl/errs"
)

const (
	// DefaultTokenURL is the vendor's application token endpoint.
	DefaultTokenURL = "https://www.sidefx.com/oauth2/application_token"
	// ExpiryMargin is the remaining lifetime below which a token is
	// treated as expired.
	ExpiryMargin = 60 * time.Second

	defaultTimeout = 30 * time.Second
)

// ErrSessionClosed is returned by every [Session] method after [Session.Close].
var ErrSessionClosed = errors.New("auth session closed")

// Session owns the current [AccessToken] for one set of [Credentials].
// It is safe for concurrent use; token acquisition is serialized.
type Session struct {
	hc       *client.Client
	creds    Credentials
	tokenURL *url.URL
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	mu     sync.Mutex
	token  *AccessToken
	closed bool
}

// NewSession constructs a Session. No request is made until a token is needed.
func NewSession(creds Credentials, hc *client.Client, optFns ...Option) (*Session, error) {
	if creds.UserID == "" || creds.UserSecret == "" {
		return nil, errors.New("credentials must not be empty")
	}
	if hc == nil {
		return nil, errors.New("http client must not be nil")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying session option: %w", err)
		}
	}

	s := &Session{
		hc:      hc,
		creds:   creds,
		logger:  hc.Logger(),
		timeout: defaultTimeout,
		now:     time.Now,
	}

	if opts.tokenURL != nil {
		s.tokenURL = opts.tokenURL
	} else {
		u, err := url.Parse(DefaultTokenURL)
		if err != nil {
			return nil, fmt.Errorf("parsing default token url: %w", err)
		}
		s.tokenURL = u
	}
	if opts.logger != nil {
		s.logger = opts.logger
	}
	if opts.timeout != nil {
		s.timeout = *opts.timeout
	}
	if opts.now != nil {
		s.now = opts.now
	}

	return s, nil
}

// Acquire performs exactly one token request and caches the result.
func (s *Session) Acquire(ctx context.Context) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AccessToken{}, ErrSessionClosed
	}

	return s.acquire(ctx)
}

// Token returns the cached token while it is valid, acquiring a new one otherwise.
func (s *Session) Token(ctx context.Context) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AccessToken{}, ErrSessionClosed
	}

	if s.token != nil && s.token.ValidAt(s.now()) {
		return *s.token, nil
	}

	return s.acquire(ctx)
}

// Refresh unconditionally acquires a new token, replacing the cached one.
func (s *Session) Refresh(ctx context.Context) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AccessToken{}, ErrSessionClosed
	}

	s.logger.Debug("refreshing access token", "credentials", s.creds)

	return s.acquire(ctx)
}

// IsValid reports whether tok has more than [ExpiryMargin] left according
// to the Session's clock.
func (s *Session) IsValid(tok AccessToken) bool {
	return tok.ValidAt(s.now())
}

// IsValidAt reports whether tok has more than [ExpiryMargin] left at now.
func IsValidAt(tok AccessToken, now time.Time) bool {
	return tok.ValidAt(now)
}

// Close drops the cached token. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
	s.closed = true

	return nil
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// acquire must be called with s.mu held.
func (s *Session) acquire(ctx context.Context) (AccessToken, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	endpoint := s.tokenURL.String()
	start := s.now()

	req, err := s.hc.Request(ctx, s.tokenURL, http.MethodPost,
		client.WithBasicAuth(s.creds.UserID, s.creds.UserSecret),
		client.WithContentType("application/x-www-form-urlencoded"),
	)
	if err != nil {
		return AccessToken{}, fmt.Errorf("building token request: %w", err)
	}

	var resp tokenResponse
	if err := s.hc.Do(req, http.StatusOK, client.WithDestination(&resp)); err != nil {
		return AccessToken{}, classify(endpoint, err)
	}

	tok, err := s.tokenFrom(resp, start)
	if err != nil {
		return AccessToken{}, &errs.APIError{Endpoint: endpoint, Status: http.StatusOK, Err: err}
	}

	s.token = &tok
	s.logger.Debug("access token acquired", "credentials", s.creds, "token", tok)

	return tok, nil
}

func (s *Session) tokenFrom(resp tokenResponse, start time.Time) (AccessToken, error) {
	if resp.AccessToken == "" {
		return AccessToken{}, errors.New("malformed token response: missing access_token")
	}

	if resp.ExpiresIn != "" {
		secs, err := resp.ExpiresIn.Float64()
		if err != nil {
			return AccessToken{}, fmt.Errorf("malformed token response: expires_in: %w", err)
		}
		if secs > 0 {
			return AccessToken{
				Value:     resp.AccessToken,
				ExpiresAt: start.Add(time.Duration(secs * float64(time.Second))),
			}, nil
		}
	}

	exp, err := expiryClaim(resp.AccessToken)
	if err != nil {
		return AccessToken{}, fmt.Errorf("malformed token response: no expiry: %w", err)
	}

	return AccessToken{Value: resp.AccessToken, ExpiresAt: exp}, nil
}

// expiryClaim reads the exp claim of a JWT without verifying its signature;
// the token is opaque to this client and only its lifetime matters.
func expiryClaim(raw string) (time.Time, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, &jwt.RegisteredClaims{})
	if err != nil {
		return time.Time{}, err
	}

	exp, err := tok.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token carries no exp claim")
	}

	return exp.Time, nil
}

// classify maps transport and status failures from the token endpoint to
// the error kinds callers match on. Any 4xx is a credential problem.
func classify(endpoint string, err error) error {
	var statusErr *client.UnexpectedStatusError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return &errs.AuthError{Endpoint: endpoint, Status: statusErr.StatusCode, Err: err}
		}
		return &errs.APIError{Endpoint: endpoint, Status: statusErr.StatusCode, Body: statusErr.Body, Err: client.ErrUnexpectedStatusCode}

	case errors.Is(err, client.ErrDecode):
		return &errs.APIError{Endpoint: endpoint, Status: http.StatusOK, Err: err}

	default:
		return &errs.NetworkError{Endpoint: endpoint, Err: err}
	}
}

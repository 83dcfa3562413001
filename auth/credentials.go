package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const redacted = "[REDACTED]"

// Credentials are the long-lived application id and secret issued by the vendor.
// The secret never appears in formatted or logged output.
type Credentials struct {
	UserID     string
	UserSecret string
}

// NewCredentials returns Credentials, rejecting empty values.
func NewCredentials(userID, userSecret string) (Credentials, error) {
	if userID == "" {
		return Credentials{}, errors.New("user id must not be empty")
	}
	if userSecret == "" {
		return Credentials{}, errors.New("user secret must not be empty")
	}

	return Credentials{UserID: userID, UserSecret: userSecret}, nil
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{UserID: %s, UserSecret: %s}", c.UserID, redacted)
}

func (c Credentials) GoString() string {
	return fmt.Sprintf("auth.Credentials{UserID:%q, UserSecret:%q}", c.UserID, redacted)
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", c.UserID),
		slog.String("user_secret", redacted),
	)
}

// AccessToken is a short-lived bearer token. It is replaced on refresh,
// never mutated, and handed out by value.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether more than [ExpiryMargin] of the token's
// lifetime remains at now.
func (t AccessToken) ValidAt(now time.Time) bool {
	return t.Value != "" && t.ExpiresAt.Sub(now) > ExpiryMargin
}

func (t AccessToken) String() string {
	return fmt.Sprintf("AccessToken{Value: %s, ExpiresAt: %s}", redacted, t.ExpiresAt.Format(time.RFC3339))
}

func (t AccessToken) GoString() string {
	return fmt.Sprintf("auth.AccessToken{Value:%q, ExpiresAt:%s}", redacted, t.ExpiresAt.Format(time.RFC3339))
}

func (t AccessToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("value", redacted),
		slog.Time("expires_at", t.ExpiresAt),
	)
}

package session

import (
	"context"
	"errors"
	"time"

	"cleancity/server/internal/model"
)

// ErrNotFound is returned by Resolve for missing or expired tokens.
var ErrNotFound = errors.New("session not found")

// Session is the server-side record behind an opaque token. Role and city are
// captured at issuance; callers that need the live user record must re-read it.
type Session struct {
	UserID    string     `json:"userId"`
	Role      model.Role `json:"role"`
	City      string     `json:"city"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Store is the injected session backing. Implementations must serialize
// writes per token hash and may serve reads for different tokens in parallel.
type Store interface {
	Put(ctx context.Context, tokenHash string, s Session, ttl time.Duration) error
	Get(ctx context.Context, tokenHash string) (Session, bool, error)
	Delete(ctx context.Context, tokenHash string) error
	// Prune removes expired entries only. Backends that expire keys on their
	// own may implement it as a no-op.
	Prune(ctx context.Context, now time.Time) error
}

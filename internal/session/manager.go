package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cleancity/server/internal/crypto"
	"cleancity/server/internal/model"
)

// Manager issues, resolves and destroys opaque session tokens. The raw token
// travels to the client; only its hash reaches the store.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Create(ctx context.Context, userID string, role model.Role, city string) (string, error) {
	token, err := crypto.NewSessionToken()
	if err != nil {
		return "", err
	}
	s := Session{
		UserID:    userID,
		Role:      role,
		City:      city,
		ExpiresAt: time.Now().UTC().Add(m.ttl),
	}
	if err := m.store.Put(ctx, crypto.HashToken(token), s, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve fails closed: missing, malformed and expired tokens all come back
// as ErrNotFound. Expired entries are deleted on sight.
func (m *Manager) Resolve(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNotFound
	}
	tokenHash := crypto.HashToken(token)
	s, ok, err := m.store.Get(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.Expired(time.Now().UTC()) {
		_ = m.store.Delete(ctx, tokenHash)
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Destroy is idempotent; destroying an absent token succeeds.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, crypto.HashToken(token))
}

// StartPruner drops expired sessions on a fixed interval until ctx is done.
// Safe to run concurrently with live resolves; prune touches expired entries only.
func (m *Manager) StartPruner(ctx context.Context, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.store.Prune(ctx, time.Now().UTC()); err != nil {
					log.Warn("session prune failed", zap.Error(err))
				}
			}
		}
	}()
}

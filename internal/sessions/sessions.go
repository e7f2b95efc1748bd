// Package sessions issues opaque login tokens backed by the database, a
// stolen database dump holds no cookie-forging material.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/Tarick/servare/internal/entity"
)

const tokenLength = 32

// Config defines session configuration, usable for Viper
type Config struct {
	TTLSeconds             int  `mapstructure:"ttl_seconds"`
	CleanupEnabled         bool `mapstructure:"cleanup_enabled"`
	CleanupIntervalSeconds int  `mapstructure:"cleanup_interval_seconds"`
}

// Store persists sessions, expired rows are invisible to GetSession.
type Store interface {
	CreateSession(ctx context.Context, session *entity.Session) error
	GetSession(ctx context.Context, token string) (*entity.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(cfg Config, store Store) *Manager {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, ttl: ttl}
}

// TTL is the configured session lifetime, cookies expire together with
// the server side row.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a fresh random token for the user and persists it.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID) (string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("couldn't generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	session := &entity.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(m.ttl),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("couldn't store session: %w", err)
	}
	return token, nil
}

// Get returns nil for missing, expired or empty tokens.
func (m *Manager) Get(ctx context.Context, token string) (*entity.Session, error) {
	if token == "" {
		return nil, nil
	}
	return m.store.GetSession(ctx, token)
}

func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.DeleteSession(ctx, token)
}

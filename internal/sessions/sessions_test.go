package sessions

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tarick/servare/internal/entity"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
	expired  int64
	cleanups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*entity.Session{}}
}

func (s *fakeStore) CreateSession(ctx context.Context, session *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *fakeStore) GetSession(ctx context.Context, token string) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok || session.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return session, nil
}

func (s *fakeStore) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *fakeStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
	return s.expired, nil
}

func TestCreateIssuesDistinctOpaqueTokens(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(Config{TTLSeconds: 60}, store)
	userID := uuid.Must(uuid.NewV4())

	first, err := manager.Create(context.Background(), userID)
	require.NoError(t, err)
	second, err := manager.Create(context.Background(), userID)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	raw, err := base64.RawURLEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, tokenLength)
}

func TestGetReturnsStoredSession(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(Config{TTLSeconds: 60}, store)
	userID := uuid.Must(uuid.NewV4())

	token, err := manager.Create(context.Background(), userID)
	require.NoError(t, err)

	session, err := manager.Get(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, userID, session.UserID)
	assert.True(t, session.ExpiresAt.After(time.Now()))
}

func TestGetEmptyTokenSkipsStore(t *testing.T) {
	manager := NewManager(Config{TTLSeconds: 60}, newFakeStore())

	session, err := manager.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetExpiredSessionIsNil(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(Config{TTLSeconds: 60}, store)
	store.sessions["stale"] = &entity.Session{
		Token:     "stale",
		UserID:    uuid.Must(uuid.NewV4()),
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	session, err := manager.Get(context.Background(), "stale")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestDestroyRemovesSession(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(Config{TTLSeconds: 60}, store)

	token, err := manager.Create(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.NoError(t, manager.Destroy(context.Background(), token))

	session, err := manager.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestCleanerRunsUntilContextDone(t *testing.T) {
	store := newFakeStore()
	store.expired = 3
	cleaner := NewCleaner(Config{CleanupIntervalSeconds: 1}, store, zaptest.NewLogger(t).Sugar())
	cleaner.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, cleaner.Run(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Greater(t, store.cleanups, 0)
}

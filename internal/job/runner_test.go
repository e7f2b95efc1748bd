package job

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tarick/servare/internal/entity"
	"github.com/Tarick/servare/internal/fetcher"
	"github.com/Tarick/servare/internal/parsepool"
)

type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.commits++; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rollbacks++; return nil }

type faviconCall struct {
	feedID int64
	icon   []byte
}

type fakeStore struct {
	mu sync.Mutex
	tx *fakeTx

	claimable    []Job
	unknownFeeds []entity.Feed
	unknownCalls int
	entryExists  map[string]bool

	enqueued   []Payload
	increments []uuid.UUID
	markedFail []uuid.UUID
	deleted    []uuid.UUID
	entries    []entity.FeedEntry
	favicons   []faviconCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{tx: &fakeTx{}, entryExists: map[string]bool{}}
}

func (s *fakeStore) Begin(ctx context.Context) (pgx.Tx, error) { return s.tx, nil }

func (s *fakeStore) EnqueueJobTx(ctx context.Context, tx pgx.Tx, payload Payload) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, payload)
	return uuid.Must(uuid.NewV4()), nil
}

func (s *fakeStore) ClaimJobs(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	if limit > len(s.claimable) {
		limit = len(s.claimable)
	}
	return s.claimable[:limit], nil
}

func (s *fakeStore) IncrementJobAttempts(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increments = append(s.increments, id)
	return nil
}

func (s *fakeStore) MarkJobFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markedFail = append(s.markedFail, id)
	return nil
}

func (s *fakeStore) DeleteJob(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) FeedsWithUnknownFavicon(ctx context.Context, limit int) ([]entity.Feed, error) {
	s.mu.Lock()
	s.unknownCalls++
	s.mu.Unlock()
	if limit > len(s.unknownFeeds) {
		limit = len(s.unknownFeeds)
	}
	return s.unknownFeeds[:limit], nil
}

func (s *fakeStore) FeedEntryWithExternalIDExists(ctx context.Context, tx pgx.Tx, userID uuid.UUID, externalID string) (bool, error) {
	return s.entryExists[externalID], nil
}

func (s *fakeStore) InsertFeedEntry(ctx context.Context, tx pgx.Tx, entry *entity.FeedEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return true, nil
}

func (s *fakeStore) SetFeedFavicon(ctx context.Context, feedID int64, favicon []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favicons = append(s.favicons, faviconCall{feedID: feedID, icon: favicon})
	return nil
}

func newTestRunner(t *testing.T, store Store) *Runner {
	t.Helper()
	client, err := fetcher.New(fetcher.Config{TimeoutSeconds: 5}, opentracing.NoopTracer{})
	require.NoError(t, err)
	return New(Config{RunIntervalSeconds: 1}, store, client, parsepool.NewSized(2), zaptest.NewLogger(t).Sugar(), opentracing.NoopTracer{})
}

func mustEncode(t *testing.T, payload Payload) []byte {
	t.Helper()
	data, err := Encode(payload)
	require.NoError(t, err)
	return data
}

const runnerFeedFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Ticker</title>
  <link href="https://example.com/"/>
  <id>https://example.com/</id>
  <updated>2024-03-01T00:00:00+00:00</updated>
  <entry>
    <title>One</title>
    <link href="https://example.com/one"/>
    <id>entry-one</id>
    <updated>2024-03-01T00:00:00+00:00</updated>
  </entry>
  <entry>
    <title>Two</title>
    <link href="https://example.com/two"/>
    <id>entry-two</id>
    <updated>2024-03-01T00:00:00+00:00</updated>
  </entry>
</feed>`

func TestRunJobsDeletesSucceededJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(runnerFeedFixture))
	}))
	defer srv.Close()

	store := newFakeStore()
	jobID := uuid.Must(uuid.NewV4())
	store.claimable = []Job{{
		ID:     jobID,
		Data:   mustEncode(t, RefreshFeed{UserID: uuid.Must(uuid.NewV4()), FeedID: 4, FeedURL: srv.URL}),
		Status: StatusPending,
	}}

	require.NoError(t, newTestRunner(t, store).runJobs(context.Background()))

	assert.Equal(t, []uuid.UUID{jobID}, store.deleted)
	assert.Empty(t, store.increments)
	assert.Empty(t, store.markedFail)
	require.Len(t, store.entries, 2)
	assert.Equal(t, "entry-one", store.entries[0].ExternalID)
	assert.Equal(t, int64(4), store.entries[0].FeedID)
	assert.GreaterOrEqual(t, store.tx.commits, 1)
}

func TestRunJobsSkipsEntriesThatExist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(runnerFeedFixture))
	}))
	defer srv.Close()

	store := newFakeStore()
	store.entryExists["entry-one"] = true
	store.claimable = []Job{{
		ID:   uuid.Must(uuid.NewV4()),
		Data: mustEncode(t, RefreshFeed{FeedID: 4, FeedURL: srv.URL}),
	}}

	require.NoError(t, newTestRunner(t, store).runJobs(context.Background()))

	require.Len(t, store.entries, 1)
	assert.Equal(t, "entry-two", store.entries[0].ExternalID)
}

func TestRunJobsIncrementsAttemptsOnHandlerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newFakeStore()
	jobID := uuid.Must(uuid.NewV4())
	store.claimable = []Job{{
		ID:   jobID,
		Data: mustEncode(t, RefreshFeed{FeedID: 4, FeedURL: srv.URL}),
	}}

	require.NoError(t, newTestRunner(t, store).runJobs(context.Background()))

	assert.Equal(t, []uuid.UUID{jobID}, store.increments)
	assert.Empty(t, store.deleted)
	assert.Empty(t, store.markedFail)
}

func TestRunJobsMarksExhaustedJobFailed(t *testing.T) {
	store := newFakeStore()
	jobID := uuid.Must(uuid.NewV4())
	store.claimable = []Job{{
		ID:       jobID,
		Data:     mustEncode(t, RefreshFeed{FeedID: 4, FeedURL: "https://unreachable.invalid/"}),
		Attempts: maxJobAttempts,
	}}

	require.NoError(t, newTestRunner(t, store).runJobs(context.Background()))

	assert.Equal(t, []uuid.UUID{jobID}, store.markedFail)
	assert.Empty(t, store.increments)
	assert.Empty(t, store.deleted)
}

func TestRunJobsIncrementsAttemptsOnUndecodablePayload(t *testing.T) {
	store := newFakeStore()
	jobID := uuid.Must(uuid.NewV4())
	store.claimable = []Job{{ID: jobID, Data: []byte(`{"type":"mystery_job"}`)}}

	require.NoError(t, newTestRunner(t, store).runJobs(context.Background()))

	assert.Equal(t, []uuid.UUID{jobID}, store.increments)
	assert.Empty(t, store.deleted)
}

func TestManageJobsEnqueuesFaviconLookups(t *testing.T) {
	store := newFakeStore()
	userID := uuid.Must(uuid.NewV4())
	store.unknownFeeds = []entity.Feed{{ID: 11, UserID: userID, SiteLink: "https://example.com/"}}

	require.NoError(t, newTestRunner(t, store).manageJobs(context.Background()))

	require.Len(t, store.enqueued, 1)
	payload, ok := store.enqueued[0].(FetchFavicon)
	require.True(t, ok)
	assert.Equal(t, int64(11), payload.FeedID)
	assert.Equal(t, userID, payload.UserID)
	assert.Equal(t, "https://example.com/", payload.SiteLink)
	assert.GreaterOrEqual(t, store.tx.commits, 1)
}

func TestManageJobsSkipsFeedsWithoutSiteLink(t *testing.T) {
	store := newFakeStore()
	store.unknownFeeds = []entity.Feed{{ID: 11, UserID: uuid.Must(uuid.NewV4()), SiteLink: ""}}

	require.NoError(t, newTestRunner(t, store).manageJobs(context.Background()))

	assert.Empty(t, store.enqueued)
}

func TestManageJobsNoUnknownFeeds(t *testing.T) {
	store := newFakeStore()

	require.NoError(t, newTestRunner(t, store).manageJobs(context.Background()))

	assert.Empty(t, store.enqueued)
	assert.Zero(t, store.tx.commits)
}

func TestFetchFaviconStoresAdvertisedIcon(t *testing.T) {
	icon := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link type="image/x-icon" href="/icon.ico"></head></html>`))
	})
	mux.HandleFunc("/icon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.Write(icon)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newFakeStore()
	err := newTestRunner(t, store).runFetchFavicon(context.Background(), FetchFavicon{FeedID: 7, SiteLink: srv.URL + "/"})
	require.NoError(t, err)

	require.Len(t, store.favicons, 1)
	assert.Equal(t, int64(7), store.favicons[0].feedID)
	assert.Equal(t, icon, store.favicons[0].icon)
}

func TestFetchFaviconFallsBackToConventionalPath(t *testing.T) {
	icon := []byte{0x01, 0x02}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/favicon.ico" {
			w.Write(icon)
			return
		}
		w.Write([]byte(`<html><head><title>plain</title></head></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newFakeStore()
	err := newTestRunner(t, store).runFetchFavicon(context.Background(), FetchFavicon{FeedID: 7, SiteLink: srv.URL + "/"})
	require.NoError(t, err)

	require.Len(t, store.favicons, 1)
	assert.Equal(t, icon, store.favicons[0].icon)
}

func TestFetchFaviconSettlesAbsenceAsNone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>iconless</title></head></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newFakeStore()
	err := newTestRunner(t, store).runFetchFavicon(context.Background(), FetchFavicon{FeedID: 7, SiteLink: srv.URL + "/"})
	require.NoError(t, err)

	require.Len(t, store.favicons, 1)
	assert.Nil(t, store.favicons[0].icon)
}

func TestFetchFaviconRetriesOnFallbackTransportFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		// Drop the connection without writing a response
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		conn.Close()
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>iconless</title></head></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newFakeStore()
	err := newTestRunner(t, store).runFetchFavicon(context.Background(), FetchFavicon{FeedID: 7, SiteLink: srv.URL + "/"})
	require.Error(t, err)
	assert.Empty(t, store.favicons)
}

func TestFetchFaviconPropagatesAdvertisedIconFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link type="image/x-icon" href="/icon.ico"></head></html>`))
	})
	mux.HandleFunc("/icon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newFakeStore()
	err := newTestRunner(t, store).runFetchFavicon(context.Background(), FetchFavicon{FeedID: 7, SiteLink: srv.URL + "/"})
	require.Error(t, err)
	assert.Empty(t, store.favicons)
}

func TestRunStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- newTestRunner(t, newFakeStore()).Run(ctx)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop on canceled context")
	}
}

func TestRunSkipsTickWhenContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newFakeStore()

	done := make(chan error, 1)
	go func() {
		done <- newTestRunner(t, store).Run(ctx)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop on canceled context")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.unknownCalls, "a tick ran after cancellation")
}

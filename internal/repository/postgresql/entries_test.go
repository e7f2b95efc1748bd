package postgresql

import (
	"context"
	"regexp"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarick/servare/internal/entity"
)

func TestInsertFeedEntryReportsDuplicate(t *testing.T) {
	repository, mock := newMockRepository(t)
	ctx := context.Background()
	entry := &entity.FeedEntry{
		FeedID:     3,
		ExternalID: "entry-one",
		Title:      "First",
		Summary:    "First post",
		URL:        "https://example.org/posts/1",
		Authors:    []string{"jane@example.org"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into feed_entries (feed_id, external_id, title, summary, url, authors) values ($1, $2, $3, $4, nullif($5, ''), $6) on conflict (feed_id, external_id) do nothing")).
		WithArgs(entry.FeedID, entry.ExternalID, entry.Title, entry.Summary, entry.URL, entry.Authors).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("insert into feed_entries")).
		WithArgs(entry.FeedID, entry.ExternalID, entry.Title, entry.Summary, entry.URL, entry.Authors).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	tx, err := repository.Begin(ctx)
	require.NoError(t, err)

	inserted, err := repository.InsertFeedEntry(ctx, tx, entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repository.InsertFeedEntry(ctx, tx, entry)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedEntryWithExternalIDExists(t *testing.T) {
	repository, mock := newMockRepository(t)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery("select exists").
		WithArgs(userID, "entry-one").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCommit()

	tx, err := repository.Begin(ctx)
	require.NoError(t, err)
	exists, err := repository.FeedEntryWithExternalIDExists(ctx, tx, userID, "entry-one")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFeedEntryReadTwiceIsNotAnError(t *testing.T) {
	repository, mock := newMockRepository(t)
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectExec("update feed_entries set read_at = now()").
		WithArgs(userID, int64(3), int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repository.MarkFeedEntryRead(context.Background(), userID, 3, 11))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package postgresql

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/opentracing/opentracing-go"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/entity"
)

const entryColumns = "feed_entries.id, feed_entries.feed_id, feed_entries.external_id, feed_entries.title, feed_entries.summary, coalesce(feed_entries.url, ''), feed_entries.authors, feed_entries.read_at, feed_entries.created_at"

// InsertFeedEntry runs inside the refresh transaction. The unique
// (feed_id, external_id) constraint absorbs replays, the bool reports
// whether a row was actually written.
func (repository *Repository) InsertFeedEntry(ctx context.Context, tx pgx.Tx, entry *entity.FeedEntry) (bool, error) {
	query := "insert into feed_entries (feed_id, external_id, title, summary, url, authors) values ($1, $2, $3, $4, nullif($5, ''), $6) on conflict (feed_id, external_id) do nothing"
	span, ctx := repository.setupTracingSpan(ctx, "insert-feed-entry", query)
	defer span.Finish()
	result, err := tx.Exec(ctx, query, entry.FeedID, entry.ExternalID, entry.Title, entry.Summary, entry.URL, entry.Authors)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return false, err
	}
	if result.RowsAffected() != 1 {
		span.LogKV("event", "feed entry already present")
		return false, nil
	}
	span.LogKV("event", "inserted feed entry")
	return true, nil
}

// FeedEntryWithExternalIDExists checks across every feed of the user, an
// entry republished by a second subscription still counts as seen.
func (repository *Repository) FeedEntryWithExternalIDExists(ctx context.Context, tx pgx.Tx, userID uuid.UUID, externalID string) (bool, error) {
	var exists bool
	query := "select exists (select 1 from feed_entries join feeds on feed_entries.feed_id = feeds.id where (feeds.user_id=$1 AND feed_entries.external_id=$2))"
	span, ctx := repository.setupTracingSpan(ctx, "check-feed-entry-exists", query)
	defer span.Finish()
	row := tx.QueryRow(ctx, query, userID, externalID)
	if err := row.Scan(&exists); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return false, err
	}
	if exists {
		span.LogKV("event", "feed entry already exists")
		return true, nil
	}
	span.LogKV("event", "feed entry doesn't exist")
	return false, nil
}

func (repository *Repository) GetFeedEntries(ctx context.Context, userID uuid.UUID, feedID int64) ([]entity.FeedEntry, error) {
	query := "select " + entryColumns + " from feed_entries join feeds on feed_entries.feed_id = feeds.id where feeds.user_id=$1 and feed_entries.feed_id=$2 order by feed_entries.created_at desc"
	span, ctx := repository.setupTracingSpan(ctx, "get-feed-entries", query)
	defer span.Finish()
	return repository.queryEntries(ctx, span, query, userID, feedID)
}

func (repository *Repository) GetFeedEntry(ctx context.Context, userID uuid.UUID, feedID int64, entryID int64) (*entity.FeedEntry, error) {
	query := "select " + entryColumns + " from feed_entries join feeds on feed_entries.feed_id = feeds.id where feeds.user_id=$1 and feed_entries.feed_id=$2 and feed_entries.id=$3"
	span, ctx := repository.setupTracingSpan(ctx, "get-feed-entry", query)
	defer span.Finish()

	entry := &entity.FeedEntry{}
	err := repository.db.QueryRow(ctx, query, userID, feedID, entryID).Scan(&entry.ID, &entry.FeedID, &entry.ExternalID, &entry.Title, &entry.Summary, &entry.URL, &entry.Authors, &entry.ReadAt, &entry.CreatedAt)
	if err != nil && err == pgx.ErrNoRows {
		span.LogKV("event", "feed entry not found")
		return nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("event", "got feed entry")
	return entry, nil
}

// GetUnreadFeedEntries returns unread entries across all feeds of the user.
func (repository *Repository) GetUnreadFeedEntries(ctx context.Context, userID uuid.UUID) ([]entity.FeedEntry, error) {
	query := "select " + entryColumns + " from feed_entries join feeds on feed_entries.feed_id = feeds.id where feeds.user_id=$1 and feed_entries.read_at is null order by feed_entries.created_at desc"
	span, ctx := repository.setupTracingSpan(ctx, "get-unread-feed-entries", query)
	defer span.Finish()
	return repository.queryEntries(ctx, span, query, userID)
}

// MarkFeedEntryRead is idempotent: entries already read keep their
// original read_at and the zero row count is not an error.
func (repository *Repository) MarkFeedEntryRead(ctx context.Context, userID uuid.UUID, feedID int64, entryID int64) error {
	query := "update feed_entries set read_at = now() from feeds where feed_entries.feed_id = feeds.id and feeds.user_id=$1 and feed_entries.feed_id=$2 and feed_entries.id=$3 and feed_entries.read_at is null"
	span, ctx := repository.setupTracingSpan(ctx, "mark-feed-entry-read", query)
	defer span.Finish()
	result, err := repository.db.Exec(ctx, query, userID, feedID, entryID)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	if result.RowsAffected() != 1 {
		span.LogKV("event", "feed entry already read or missing")
		return nil
	}
	span.LogKV("event", "marked feed entry read")
	return nil
}

func (repository *Repository) queryEntries(ctx context.Context, span opentracing.Span, query string, args ...interface{}) ([]entity.FeedEntry, error) {
	rows, err := repository.db.Query(ctx, query, args...)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	entries := []entity.FeedEntry{}
	for rows.Next() {
		entry := entity.FeedEntry{}
		if err := rows.Scan(&entry.ID, &entry.FeedID, &entry.ExternalID, &entry.Title, &entry.Summary, &entry.URL, &entry.Authors, &entry.ReadAt, &entry.CreatedAt); err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("entries number", len(entries))
	return entries, nil
}

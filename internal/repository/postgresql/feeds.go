package postgresql

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/entity"
	"github.com/Tarick/servare/internal/feed"
)

const feedColumns = "id, user_id, url, title, site_link, description, has_favicon, added_at"

// InsertFeed stores a new subscription and returns its id. A duplicate
// (user_id, url) pair violates the unique constraint and surfaces as an
// error, callers check FeedWithURLExists first.
func (repository *Repository) InsertFeed(ctx context.Context, userID uuid.UUID, parsed *feed.Parsed) (int64, error) {
	query := "insert into feeds (user_id, url, title, site_link, description) values ($1, $2, $3, $4, $5) returning id"
	span, ctx := repository.setupTracingSpan(ctx, "insert-feed", query)
	defer span.Finish()

	var id int64
	err := repository.db.QueryRow(ctx, query, userID, parsed.URL, parsed.Title, parsed.SiteLink, parsed.Description).Scan(&id)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return 0, err
	}
	span.LogKV("event", "inserted feed")
	return id, nil
}

func (repository *Repository) FeedWithURLExists(ctx context.Context, userID uuid.UUID, url string) (bool, error) {
	var exists bool
	query := "select exists (select 1 from feeds where (user_id=$1 AND url=$2))"
	span, ctx := repository.setupTracingSpan(ctx, "check-feed-exists", query)
	defer span.Finish()
	row := repository.db.QueryRow(ctx, query, userID, url)
	if err := row.Scan(&exists); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return false, err
	}
	if exists {
		span.LogKV("event", "feed already exists")
		return true, nil
	}
	span.LogKV("event", "feed doesn't exist")
	return false, nil
}

func (repository *Repository) GetFeed(ctx context.Context, userID uuid.UUID, feedID int64) (*entity.Feed, error) {
	query := "select " + feedColumns + " from feeds where user_id=$1 and id=$2"
	span, ctx := repository.setupTracingSpan(ctx, "get-feed", query)
	defer span.Finish()

	f := &entity.Feed{}
	err := repository.db.QueryRow(ctx, query, userID, feedID).Scan(&f.ID, &f.UserID, &f.URL, &f.Title, &f.SiteLink, &f.Description, &f.HasFavicon, &f.AddedAt)
	if err != nil && err == pgx.ErrNoRows {
		span.LogKV("event", "feed not found")
		return nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("event", "got feed")
	return f, nil
}

func (repository *Repository) GetAllFeeds(ctx context.Context, userID uuid.UUID) ([]entity.Feed, error) {
	query := "select " + feedColumns + " from feeds where user_id=$1 order by added_at desc"
	span, ctx := repository.setupTracingSpan(ctx, "get-all-feeds", query)
	defer span.Finish()
	rows, err := repository.db.Query(ctx, query, userID)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	feeds := []entity.Feed{}
	for rows.Next() {
		f := entity.Feed{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.URL, &f.Title, &f.SiteLink, &f.Description, &f.HasFavicon, &f.AddedAt); err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return nil, err
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("feeds number", len(feeds))
	return feeds, nil
}

// SetFeedFavicon stores the favicon bytes. A nil favicon records that the
// site has none: site_favicon clears and has_favicon flips to false so
// the lookup is settled either way.
func (repository *Repository) SetFeedFavicon(ctx context.Context, feedID int64, favicon []byte) error {
	query := "update feeds set site_favicon=$1, has_favicon=$2 where id=$3"
	span, ctx := repository.setupTracingSpan(ctx, "set-feed-favicon", query)
	defer span.Finish()
	result, err := repository.db.Exec(ctx, query, favicon, favicon != nil, feedID)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	if result.RowsAffected() != 1 {
		span.LogKV("event", "didn't find the feed to update")
		return fmt.Errorf("favicon update didn't change a record for feed %d", feedID)
	}
	span.LogKV("event", "set feed favicon")
	return nil
}

func (repository *Repository) GetFeedFavicon(ctx context.Context, userID uuid.UUID, feedID int64) ([]byte, error) {
	query := "select site_favicon from feeds where user_id=$1 and id=$2"
	span, ctx := repository.setupTracingSpan(ctx, "get-feed-favicon", query)
	defer span.Finish()

	var favicon []byte
	err := repository.db.QueryRow(ctx, query, userID, feedID).Scan(&favicon)
	if err != nil && err == pgx.ErrNoRows {
		span.LogKV("event", "feed not found")
		return nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("event", "got feed favicon")
	return favicon, nil
}

// FeedsWithUnknownFavicon returns feeds whose favicon was never looked
// up, the manage phase schedules lookups from it
func (repository *Repository) FeedsWithUnknownFavicon(ctx context.Context, limit int) ([]entity.Feed, error) {
	query := "select " + feedColumns + " from feeds where has_favicon is null limit $1"
	span, ctx := repository.setupTracingSpan(ctx, "get-feeds-with-unknown-favicon", query)
	defer span.Finish()
	rows, err := repository.db.Query(ctx, query, limit)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	feeds := []entity.Feed{}
	for rows.Next() {
		f := entity.Feed{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.URL, &f.Title, &f.SiteLink, &f.Description, &f.HasFavicon, &f.AddedAt); err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return nil, err
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("feeds number", len(feeds))
	return feeds, nil
}

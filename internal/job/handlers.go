package job

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Tarick/servare/internal/entity"
	"github.com/Tarick/servare/internal/feed"
	"github.com/Tarick/servare/internal/fetcher"
)

// runRefreshFeed downloads the feed and ingests entries not seen before.
// Re-running it against an unchanged feed changes nothing.
func (r *Runner) runRefreshFeed(ctx context.Context, payload RefreshFeed) error {
	span, ctx := r.setupTracingSpan(ctx, "job-refresh-feed")
	defer span.Finish()
	span.SetTag("feed.ID", payload.FeedID)

	body, err := r.fetcher.Fetch(ctx, payload.FeedURL)
	if err != nil {
		return fmt.Errorf("couldn't fetch feed %s: %w", payload.FeedURL, err)
	}
	var entries []feed.ParsedEntry
	var parseErr error
	if err := r.pool.Do(ctx, func() {
		_, entries, parseErr = feed.Parse(payload.FeedURL, body)
	}); err != nil {
		return err
	}
	if parseErr != nil {
		return parseErr
	}

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("couldn't begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	inserted := 0
	for _, parsedEntry := range entries {
		exists, err := r.store.FeedEntryWithExternalIDExists(ctx, tx, payload.UserID, parsedEntry.ExternalID)
		if err != nil {
			return fmt.Errorf("couldn't check feed entry %q: %w", parsedEntry.ExternalID, err)
		}
		if exists {
			continue
		}
		added, err := r.store.InsertFeedEntry(ctx, tx, &entity.FeedEntry{
			FeedID:     payload.FeedID,
			ExternalID: parsedEntry.ExternalID,
			Title:      parsedEntry.Title,
			Summary:    parsedEntry.Summary,
			URL:        parsedEntry.URL,
			Authors:    parsedEntry.Authors,
		})
		if err != nil {
			return fmt.Errorf("couldn't insert feed entry %q: %w", parsedEntry.ExternalID, err)
		}
		if added {
			inserted++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("couldn't commit transaction: %w", err)
	}
	r.logger.Info("Refreshed feed ", payload.FeedID, ": ", inserted, " new of ", len(entries), " entries")
	return nil
}

// runFetchFavicon resolves the favicon for the site of one feed. When the
// page advertises an icon its download failure is a handler error and the
// job retries. When nothing is advertised the conventional /favicon.ico is
// tried once, an error response there settles the lookup as "site has none"
// so the manage phase stops rescheduling it. Transport failures never
// settle, the job retries.
func (r *Runner) runFetchFavicon(ctx context.Context, payload FetchFavicon) error {
	span, ctx := r.setupTracingSpan(ctx, "job-fetch-favicon")
	defer span.Finish()
	span.SetTag("feed.ID", payload.FeedID)

	siteURL, err := url.Parse(payload.SiteLink)
	if err != nil {
		return fmt.Errorf("couldn't parse site link %q: %w", payload.SiteLink, err)
	}
	body, err := r.fetcher.Fetch(ctx, siteURL.String())
	if err != nil {
		return fmt.Errorf("couldn't fetch site %s: %w", payload.SiteLink, err)
	}
	var faviconURL *url.URL
	if err := r.pool.Do(ctx, func() {
		faviconURL = feed.FindFavicon(siteURL, body)
	}); err != nil {
		return err
	}
	if faviconURL != nil {
		icon, err := r.fetcher.Fetch(ctx, faviconURL.String())
		if err != nil {
			return fmt.Errorf("couldn't fetch favicon %s: %w", faviconURL, err)
		}
		return r.storeFavicon(ctx, payload.FeedID, icon)
	}
	fallback := siteURL.ResolveReference(&url.URL{Path: "/favicon.ico"})
	icon, err := r.fetcher.Fetch(ctx, fallback.String())
	if err != nil {
		var statusError *fetcher.StatusError
		if !errors.As(err, &statusError) {
			return fmt.Errorf("couldn't fetch favicon fallback %s: %w", fallback, err)
		}
		r.logger.Info("No favicon for feed ", payload.FeedID)
		if err := r.store.SetFeedFavicon(ctx, payload.FeedID, nil); err != nil {
			return fmt.Errorf("couldn't record missing favicon for feed %d: %w", payload.FeedID, err)
		}
		return nil
	}
	return r.storeFavicon(ctx, payload.FeedID, icon)
}

func (r *Runner) storeFavicon(ctx context.Context, feedID int64, icon []byte) error {
	if err := r.store.SetFeedFavicon(ctx, feedID, icon); err != nil {
		return fmt.Errorf("couldn't store favicon for feed %d: %w", feedID, err)
	}
	r.logger.Info("Stored favicon for feed ", feedID, ", ", len(icon), " bytes")
	return nil
}

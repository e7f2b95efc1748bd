package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/stampede"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofrs/uuid"
	"github.com/opentracing/opentracing-go/ext"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/feed"
	"github.com/Tarick/servare/internal/fetcher"
	"github.com/Tarick/servare/internal/job"
)

// feedCtx loads the feed addressed by the URL into the request context.
// Feeds of other users don't resolve, so they are indistinguishable from
// missing ones.
func (h *Handler) feedCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span, ctx := h.setupTracingSpan(r, "retrieve-feed-middleware")
		defer span.Finish()

		feedID, err := strconv.ParseInt(chi.URLParam(r, "feedID"), 10, 64)
		if err != nil {
			ext.HTTPStatusCode.Set(span, http.StatusBadRequest)
			span.LogFields(
				otLog.Error(err),
			)
			ErrInvalidRequest(fmt.Errorf("wrong feed id format: %w", err)).Render(w, r)
			return
		}
		span.SetTag("feed.ID", feedID)
		session := sessionFromContext(ctx)
		dbFeed, err := h.repository.GetFeed(ctx, session.UserID, feedID)
		if err != nil {
			ext.HTTPStatusCode.Set(span, http.StatusInternalServerError)
			ErrInternal(err).Render(w, r)
			return
		}
		if dbFeed == nil {
			ext.HTTPStatusCode.Set(span, http.StatusNotFound)
			ErrNotFound.Render(w, r)
			return
		}
		span.LogKV("event", "got feed from repository")
		ctx = context.WithValue(ctx, feedContextKey, dbFeed)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) getFeeds(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-get-all-feeds")
	defer span.Finish()
	session := sessionFromContext(ctx)

	dbFeeds, err := h.repository.GetAllFeeds(ctx, session.UserID)
	if err != nil {
		h.logger.Error("Failure reading feeds from database: ", err)
		ext.HTTPStatusCode.Set(span, http.StatusInternalServerError)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure reading feeds")).Render(w, r)
		return
	}
	span.LogFields(
		otLog.Int("feedsNumber", len(dbFeeds)),
	)
	p := feedsPage{page: h.newPage(w, r, "Feeds"), Feeds: make([]feedView, 0, len(dbFeeds))}
	for i := range dbFeeds {
		p.Feeds = append(p.Feeds, newFeedView(&dbFeeds[i]))
	}
	h.render(w, r, http.StatusOK, "feeds.html", p)
}

type feedAddForm struct {
	URL string
}

// Validate feed add form fields
func (f feedAddForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.URL, validation.Required, is.URL),
	)
}

func (h *Handler) addFeedForm(w http.ResponseWriter, r *http.Request) {
	span, _ := h.setupTracingSpan(r, "serve-add-feed-form")
	defer span.Finish()
	h.render(w, r, http.StatusOK, "feed_add.html", feedAddPage{page: h.newPage(w, r, "Add feed")})
}

func (h *Handler) addFeed(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-add-feed")
	defer span.Finish()
	session := sessionFromContext(ctx)

	form := feedAddForm{URL: r.PostFormValue("url")}
	if err := form.Validate(); err != nil {
		h.setFlash(w, flashError, "The URL is not a valid feed.")
		http.Redirect(w, r, "/feeds", http.StatusSeeOther)
		return
	}
	parsed, err := h.resolveFeed(ctx, form.URL)
	if err != nil {
		h.logger.Info("Couldn't add feed from ", form.URL, ": ", err)
		span.LogFields(
			otLog.Error(err),
		)
		h.setFlash(w, flashError, feedAddFailureMessage(err))
		http.Redirect(w, r, "/feeds", http.StatusSeeOther)
		return
	}
	exists, err := h.repository.FeedWithURLExists(ctx, session.UserID, parsed.URL)
	if err != nil {
		h.logger.Error("Failure checking feed existence: ", err)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure checking feed")).Render(w, r)
		return
	}
	if exists {
		h.setFlash(w, flashError, "You are already subscribed to this feed.")
		http.Redirect(w, r, "/feeds", http.StatusSeeOther)
		return
	}
	feedID, err := h.repository.InsertFeed(ctx, session.UserID, parsed)
	if err != nil {
		h.logger.Error("Failure storing feed: ", err)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure storing feed")).Render(w, r)
		return
	}
	h.enqueueFeedJobs(ctx, session.UserID, feedID, parsed)
	span.LogKV("event", "added feed", "feedID", feedID)
	h.setFlash(w, flashSuccess, "Feed added.")
	http.Redirect(w, r, "/feeds", http.StatusSeeOther)
}

// resolveFeed turns a submitted URL into a parsed feed. The URL may point
// at the feed directly or at an HTML page advertising one, in which case
// the advertised document is fetched and parsed in a second round trip.
func (h *Handler) resolveFeed(ctx context.Context, rawURL string) (*feed.Parsed, error) {
	sourceURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", feed.ErrNoFeed, rawURL)
	}
	body, err := h.fetcher.Fetch(ctx, sourceURL.String())
	if err != nil {
		return nil, err
	}
	var found *feed.FoundFeed
	var findErr error
	if err := h.pool.Do(ctx, func() {
		found, findErr = feed.Find(sourceURL, body)
	}); err != nil {
		return nil, err
	}
	if findErr != nil {
		return nil, findErr
	}
	if found.Feed != nil {
		return found.Feed, nil
	}
	feedBody, err := h.fetcher.Fetch(ctx, found.URL.String())
	if err != nil {
		return nil, err
	}
	var parsed *feed.Parsed
	var parseErr error
	if err := h.pool.Do(ctx, func() {
		parsed, _, parseErr = feed.Parse(found.URL.String(), feedBody)
	}); err != nil {
		return nil, err
	}
	if parseErr != nil {
		// the page advertised a feed that didn't parse
		return nil, fmt.Errorf("%w: %s", feed.ErrNoFeed, found.URL)
	}
	return parsed, nil
}

// feedAddFailureMessage maps a resolution failure onto the flash shown to
// the user. Anything that isn't clearly "not a feed" reads as unreachable.
func feedAddFailureMessage(err error) string {
	var statusError *fetcher.StatusError
	switch {
	case errors.Is(err, feed.ErrNoFeed):
		return "The URL is not a valid feed."
	case errors.As(err, &statusError):
		return "The URL is inaccessible."
	default:
		return "The URL is inaccessible."
	}
}

// enqueueFeedJobs schedules the first refresh and the favicon lookup for a
// new subscription. The subscription stands even when enqueueing fails,
// the next manual refresh catches up.
func (h *Handler) enqueueFeedJobs(ctx context.Context, userID uuid.UUID, feedID int64, parsed *feed.Parsed) {
	if _, err := h.repository.EnqueueJob(ctx, job.RefreshFeed{UserID: userID, FeedID: feedID, FeedURL: parsed.URL}); err != nil {
		h.logger.Error("Failure enqueueing refresh for feed ", feedID, ": ", err)
	}
	if parsed.SiteLink == "" {
		return
	}
	if _, err := h.repository.EnqueueJob(ctx, job.FetchFavicon{UserID: userID, FeedID: feedID, SiteLink: parsed.SiteLink}); err != nil {
		h.logger.Error("Failure enqueueing favicon lookup for feed ", feedID, ": ", err)
	}
}

func (h *Handler) refreshFeeds(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-refresh-feeds")
	defer span.Finish()
	session := sessionFromContext(ctx)

	dbFeeds, err := h.repository.GetAllFeeds(ctx, session.UserID)
	if err != nil {
		h.logger.Error("Failure reading feeds from database: ", err)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure reading feeds")).Render(w, r)
		return
	}
	for i := range dbFeeds {
		f := &dbFeeds[i]
		if _, err := h.repository.EnqueueJob(ctx, job.RefreshFeed{UserID: f.UserID, FeedID: f.ID, FeedURL: f.URL}); err != nil {
			h.logger.Error("Failure enqueueing refresh for feed ", f.ID, ": ", err)
		}
	}
	span.LogKV("event", "scheduled refresh", "feeds", len(dbFeeds))
	h.setFlash(w, flashSuccess, "Refresh scheduled.")
	http.Redirect(w, r, "/feeds", http.StatusSeeOther)
}

// faviconCacheKey keys the response cache per user and feed, icons belong
// to one subscription
func faviconCacheKey(r *http.Request) uint64 {
	if session := sessionFromContext(r.Context()); session != nil {
		return stampede.StringToHash(session.UserID.String(), r.URL.Path)
	}
	return stampede.StringToHash(r.URL.Path)
}

func (h *Handler) getFeedFavicon(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-feed-favicon")
	defer span.Finish()
	session := sessionFromContext(ctx)
	dbFeed := feedFromContext(ctx)

	favicon, err := h.repository.GetFeedFavicon(ctx, session.UserID, dbFeed.ID)
	if err != nil {
		h.logger.Error("Failure reading favicon from database: ", err)
		ext.HTTPStatusCode.Set(span, http.StatusInternalServerError)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure reading favicon")).Render(w, r)
		return
	}
	if len(favicon) == 0 {
		ext.HTTPStatusCode.Set(span, http.StatusNotFound)
		ErrNotFound.Render(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/x-icon")
	w.Write(favicon)
}

func (h *Handler) getFeedEntries(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-get-feed-entries")
	defer span.Finish()
	session := sessionFromContext(ctx)
	dbFeed := feedFromContext(ctx)

	dbEntries, err := h.repository.GetFeedEntries(ctx, session.UserID, dbFeed.ID)
	if err != nil {
		h.logger.Error("Failure reading entries from database: ", err)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure reading entries")).Render(w, r)
		return
	}
	span.LogFields(
		otLog.Int("entriesNumber", len(dbEntries)),
	)
	p := entriesPage{
		page:    h.newPage(w, r, dbFeed.Title),
		Feed:    newFeedView(dbFeed),
		Entries: make([]entryView, 0, len(dbEntries)),
	}
	for i := range dbEntries {
		p.Entries = append(p.Entries, newEntryView(&dbEntries[i]))
	}
	h.render(w, r, http.StatusOK, "entries.html", p)
}

func (h *Handler) getFeedEntry(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-get-feed-entry")
	defer span.Finish()
	session := sessionFromContext(ctx)
	dbFeed := feedFromContext(ctx)

	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		ext.HTTPStatusCode.Set(span, http.StatusBadRequest)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInvalidRequest(fmt.Errorf("wrong entry id format: %w", err)).Render(w, r)
		return
	}
	dbEntry, err := h.repository.GetFeedEntry(ctx, session.UserID, dbFeed.ID, entryID)
	if err != nil {
		h.logger.Error("Failure reading entry from database: ", err)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure reading entry")).Render(w, r)
		return
	}
	if dbEntry == nil {
		ext.HTTPStatusCode.Set(span, http.StatusNotFound)
		ErrNotFound.Render(w, r)
		return
	}
	if !dbEntry.Read() {
		// opening the entry is what marks it read, a failed mark still
		// shows the page
		if err := h.repository.MarkFeedEntryRead(ctx, session.UserID, dbFeed.ID, entryID); err != nil {
			h.logger.Error("Failure marking entry read: ", err)
			span.LogFields(
				otLog.Error(err),
			)
		}
	}
	h.render(w, r, http.StatusOK, "entry.html", entryPage{
		page:  h.newPage(w, r, dbEntry.Title),
		Feed:  newFeedView(dbFeed),
		Entry: newEntryView(dbEntry),
	})
}

func (h *Handler) getUnreadEntries(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-get-unread-entries")
	defer span.Finish()
	session := sessionFromContext(ctx)

	dbEntries, err := h.repository.GetUnreadFeedEntries(ctx, session.UserID)
	if err != nil {
		h.logger.Error("Failure reading unread entries from database: ", err)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInternal(errors.New("failure reading entries")).Render(w, r)
		return
	}
	span.LogFields(
		otLog.Int("entriesNumber", len(dbEntries)),
	)
	p := unreadPage{page: h.newPage(w, r, "Unread"), Entries: make([]entryView, 0, len(dbEntries))}
	for i := range dbEntries {
		p.Entries = append(p.Entries, newEntryView(&dbEntries[i]))
	}
	h.render(w, r, http.StatusOK, "unread.html", p)
}

package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/Tarick/servare/internal/entity"
	"github.com/Tarick/servare/internal/feed"
	"github.com/Tarick/servare/internal/fetcher"
	"github.com/Tarick/servare/internal/job"
	"github.com/Tarick/servare/internal/parsepool"
	"github.com/Tarick/servare/internal/sessions"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Handler provides http handlers
type Handler struct {
	logger        Logger
	repository    Repository
	sessions      *sessions.Manager
	fetcher       *fetcher.Client
	pool          *parsepool.Pool
	email         EmailSender
	templates     map[string]*template.Template
	signingKey    []byte
	secureCookies bool
	tracer        opentracing.Tracer
}

// Repository defines repository methods used by the web application.
// Everything is scoped to the user owning the session.
type Repository interface {
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	GetAllFeeds(ctx context.Context, userID uuid.UUID) ([]entity.Feed, error)
	GetFeed(ctx context.Context, userID uuid.UUID, feedID int64) (*entity.Feed, error)
	FeedWithURLExists(ctx context.Context, userID uuid.UUID, url string) (bool, error)
	InsertFeed(ctx context.Context, userID uuid.UUID, parsed *feed.Parsed) (int64, error)
	GetFeedFavicon(ctx context.Context, userID uuid.UUID, feedID int64) ([]byte, error)
	GetFeedEntries(ctx context.Context, userID uuid.UUID, feedID int64) ([]entity.FeedEntry, error)
	GetFeedEntry(ctx context.Context, userID uuid.UUID, feedID int64, entryID int64) (*entity.FeedEntry, error)
	MarkFeedEntryRead(ctx context.Context, userID uuid.UUID, feedID int64, entryID int64) error
	GetUnreadFeedEntries(ctx context.Context, userID uuid.UUID) ([]entity.FeedEntry, error)
	EnqueueJob(ctx context.Context, payload job.Payload) (uuid.UUID, error)
	Healthcheck(ctx context.Context) error
}

// EmailSender delivers transactional mail. Deliveries are best effort,
// callers log failures and move on.
type EmailSender interface {
	SendEmail(ctx context.Context, recipientEmail, subject, htmlContent, textContent string) error
}

// NewHandler creates http handler
func NewHandler(cfg Config, logger Logger, tracer opentracing.Tracer, repository Repository, sessionManager *sessions.Manager, fetcherClient *fetcher.Client, pool *parsepool.Pool, emailSender EmailSender) (*Handler, error) {
	if cfg.CookieSigningKey == "" {
		return nil, errors.New("cookie signing key must not be empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse base URL %q: %w", cfg.BaseURL, err)
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Handler{
		logger:        logger,
		repository:    repository,
		sessions:      sessionManager,
		fetcher:       fetcherClient,
		pool:          pool,
		email:         emailSender,
		templates:     templates,
		signingKey:    []byte(cfg.CookieSigningKey),
		secureCookies: base.Scheme == "https",
		tracer:        tracer,
	}, nil
}

// parseTemplates builds one template set per page, each page paired with
// the shared layout
func parseTemplates() (map[string]*template.Template, error) {
	pages, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("couldn't list templates: %w", err)
	}
	templates := make(map[string]*template.Template, len(pages))
	for _, pagePath := range pages {
		name := path.Base(pagePath)
		if name == "layout.html" {
			continue
		}
		tmpl, err := template.ParseFS(templatesFS, "templates/layout.html", pagePath)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// page carries the fields every template expects from the layout
type page struct {
	Title    string
	LoggedIn bool
	Flashes  []Flash
}

// newPage pops pending flash messages, so constructing a page consumes them
func (h *Handler) newPage(w http.ResponseWriter, r *http.Request, title string) page {
	return page{
		Title:    title,
		LoggedIn: sessionFromContext(r.Context()) != nil,
		Flashes:  h.popFlashes(w, r),
	}
}

type loginPage struct {
	page
}

type feedsPage struct {
	page
	Feeds []feedView
}

type feedAddPage struct {
	page
}

type entriesPage struct {
	page
	Feed    feedView
	Entries []entryView
}

type entryPage struct {
	page
	Feed  feedView
	Entry entryView
}

type unreadPage struct {
	page
	Entries []entryView
}

type settingsPage struct {
	page
	Email string
}

type feedView struct {
	ID          int64
	Title       string
	URL         string
	SiteLink    string
	Description string
	HasFavicon  bool
}

func newFeedView(f *entity.Feed) feedView {
	return feedView{
		ID:          f.ID,
		Title:       f.Title,
		URL:         f.URL,
		SiteLink:    f.SiteLink,
		Description: f.Description,
		HasFavicon:  f.HasFavicon != nil && *f.HasFavicon,
	}
}

type entryView struct {
	ID        int64
	FeedID    int64
	Title     string
	URL       string
	Author    string
	Summary   string
	CreatedAt string
	Read      bool
}

func newEntryView(e *entity.FeedEntry) entryView {
	author := ""
	if len(e.Authors) > 0 {
		author = e.Authors[0]
	}
	return entryView{
		ID:     e.ID,
		FeedID: e.FeedID,
		Title:  e.Title,
		URL:    e.URL,
		Author: author,
		// summaries stay plain text, html/template escapes whatever the
		// feed source put in them
		Summary:   e.Summary,
		CreatedAt: e.CreatedAt.UTC().Truncate(time.Second).Format(time.RFC3339),
		Read:      e.Read(),
	}
}

// render executes the named page template into a buffer first, a template
// failure must not leak half a page with a 200 status
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	tmpl, ok := h.templates[name]
	if !ok {
		h.logger.Error("Missing template: ", name)
		ErrInternal(fmt.Errorf("missing template %s", name)).Render(w, r)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("Failure rendering ", name, ": ", err)
		ErrInternal(errors.New("failure rendering page")).Render(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Authenticated users land on their feeds, everyone else at the login form
func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	span, _ := h.setupTracingSpan(r, "serve-home")
	defer span.Finish()
	if sessionFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/feeds", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if err := h.repository.Healthcheck(r.Context()); err != nil {
		h.logger.Error("Healthcheck: repository check failed with: ", err)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, statusResponse{Status: "repository unavailable"})
		return
	}
	render.JSON(w, r, statusResponse{Status: "ok"})
}

func (h *Handler) setupTracingSpan(r *http.Request, name string) (opentracing.Span, context.Context) {
	// we ignore error since if there are missing headers it will start new trace
	spanContext, _ := h.tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(r.Header))
	span := h.tracer.StartSpan(name, ext.RPCServerOption(spanContext))
	ctx := opentracing.ContextWithSpan(r.Context(), span)
	ext.Component.Set(span, "httpServer-chi")
	ext.HTTPMethod.Set(span, r.Method)
	ext.HTTPUrl.Set(span, r.URL.String())
	return span, ctx
}

package job

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/entity"
	"github.com/Tarick/servare/internal/fetcher"
	"github.com/Tarick/servare/internal/parsepool"
)

// Per tick limits and the retry bound
const (
	manageJobsLimit = 1
	runJobsLimit    = 1
	maxJobAttempts  = 5
)

// Config mapstructure is for Viper to unmarshal
type Config struct {
	RunIntervalSeconds int `mapstructure:"run_interval_seconds"`
}

// Logger defines interface for logging
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

// Store defines repository methods used by the runner. Queue row mutations
// run on the claim transaction, entry ingestion on its own transaction.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	EnqueueJobTx(ctx context.Context, tx pgx.Tx, payload Payload) (uuid.UUID, error)
	ClaimJobs(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error)
	IncrementJobAttempts(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	MarkJobFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	DeleteJob(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	FeedsWithUnknownFavicon(ctx context.Context, limit int) ([]entity.Feed, error)
	FeedEntryWithExternalIDExists(ctx context.Context, tx pgx.Tx, userID uuid.UUID, externalID string) (bool, error)
	InsertFeedEntry(ctx context.Context, tx pgx.Tx, entry *entity.FeedEntry) (bool, error)
	SetFeedFavicon(ctx context.Context, feedID int64, favicon []byte) error
}

// Runner drains the job queue. Each tick first tops the queue up from
// database state (manage phase), then claims and executes pending jobs
// (run phase).
type Runner struct {
	store   Store
	fetcher *fetcher.Client
	pool    *parsepool.Pool
	logger  Logger
	tracer  opentracing.Tracer
	tick    time.Duration
}

// New creates the job runner
func New(cfg Config, store Store, fetcherClient *fetcher.Client, parsePool *parsepool.Pool, logger Logger, tracer opentracing.Tracer) *Runner {
	interval := time.Duration(cfg.RunIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		store:   store,
		fetcher: fetcherClient,
		pool:    parsePool,
		logger:  logger,
		tracer:  tracer,
		tick:    interval,
	}
}

func (r *Runner) setupTracingSpan(ctx context.Context, name string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, r.tracer, name)
	ext.Component.Set(span, "jobRunner")
	return span, ctx
}

// Run executes both phases once at start and then on every tick until ctx
// is done. Phase failures are logged, never fatal to the loop. A tick in
// progress is not interrupted: phase work runs on a context detached from
// cancellation, values and tracing baggage preserved.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting job runner with tick interval ", r.tick)
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		// The ticker and cancellation can be ready at once, never start a
		// tick once cancellation fired
		if ctx.Err() != nil {
			r.logger.Info("Job runner stopped")
			return nil
		}
		r.runTick(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			r.logger.Info("Job runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) runTick(ctx context.Context) {
	if err := r.manageJobs(ctx); err != nil {
		r.logger.Error("Failure managing jobs: ", err)
	}
	if err := r.runJobs(ctx); err != nil {
		r.logger.Error("Failure running jobs: ", err)
	}
}

// manageJobs synthesizes new jobs from database state. The single rule:
// feeds whose favicon was never looked up get a fetch_favicon job.
// Fingerprint idempotence makes repeated or concurrent manage runs safe.
func (r *Runner) manageJobs(ctx context.Context) error {
	span, ctx := r.setupTracingSpan(ctx, "manage-jobs")
	defer span.Finish()

	feeds, err := r.store.FeedsWithUnknownFavicon(ctx, manageJobsLimit)
	if err != nil {
		span.LogFields(otLog.Error(err))
		return fmt.Errorf("couldn't get feeds with unknown favicon: %w", err)
	}
	if len(feeds) == 0 {
		return nil
	}
	tx, err := r.store.Begin(ctx)
	if err != nil {
		span.LogFields(otLog.Error(err))
		return fmt.Errorf("couldn't begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	for _, f := range feeds {
		// A lookup without a site link can never succeed
		if f.SiteLink == "" {
			continue
		}
		id, err := r.store.EnqueueJobTx(ctx, tx, FetchFavicon{UserID: f.UserID, FeedID: f.ID, SiteLink: f.SiteLink})
		if err != nil {
			span.LogFields(otLog.Error(err))
			return fmt.Errorf("couldn't enqueue favicon job for feed %d: %w", f.ID, err)
		}
		if id != uuid.Nil {
			jobsManaged.Inc()
			r.logger.Debug("Enqueued favicon job ", id, " for feed ", f.ID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		span.LogFields(otLog.Error(err))
		return fmt.Errorf("couldn't commit transaction: %w", err)
	}
	return nil
}

// runJobs claims pending rows and executes them. All queue row mutations
// stay on the claim transaction so the row locks hold until the outcome
// is durable, a crash before commit releases the claim.
func (r *Runner) runJobs(ctx context.Context) error {
	span, ctx := r.setupTracingSpan(ctx, "run-jobs")
	defer span.Finish()

	tx, err := r.store.Begin(ctx)
	if err != nil {
		span.LogFields(otLog.Error(err))
		return fmt.Errorf("couldn't begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	jobs, err := r.store.ClaimJobs(ctx, tx, runJobsLimit)
	if err != nil {
		span.LogFields(otLog.Error(err))
		return fmt.Errorf("couldn't claim jobs: %w", err)
	}
	for _, claimed := range jobs {
		jobsClaimed.Inc()
		if claimed.Attempts >= maxJobAttempts {
			r.logger.Warn("Job ", claimed.ID, " exhausted ", maxJobAttempts, " attempts, marking failed")
			if err := r.store.MarkJobFailed(ctx, tx, claimed.ID); err != nil {
				return fmt.Errorf("couldn't mark job %s failed: %w", claimed.ID, err)
			}
			jobsFailed.Inc()
			continue
		}
		payload, err := Decode(claimed.Data)
		if err != nil {
			r.logger.Error("Failure decoding job ", claimed.ID, ": ", err)
			if err := r.store.IncrementJobAttempts(ctx, tx, claimed.ID); err != nil {
				return fmt.Errorf("couldn't increment attempts of job %s: %w", claimed.ID, err)
			}
			jobsRetried.Inc()
			continue
		}
		if err := r.dispatch(ctx, payload); err != nil {
			r.logger.Error("Failure running job ", claimed.ID, ": ", err)
			if err := r.store.IncrementJobAttempts(ctx, tx, claimed.ID); err != nil {
				return fmt.Errorf("couldn't increment attempts of job %s: %w", claimed.ID, err)
			}
			jobsRetried.Inc()
			continue
		}
		if err := r.store.DeleteJob(ctx, tx, claimed.ID); err != nil {
			return fmt.Errorf("couldn't delete job %s: %w", claimed.ID, err)
		}
		jobsSucceeded.Inc()
		r.logger.Info("Job ", claimed.ID, " done")
	}
	if err := tx.Commit(ctx); err != nil {
		span.LogFields(otLog.Error(err))
		return fmt.Errorf("couldn't commit transaction: %w", err)
	}
	return nil
}

// dispatch routes a decoded payload to its handler. New job types plug in
// here with a new case.
func (r *Runner) dispatch(ctx context.Context, payload Payload) error {
	switch p := payload.(type) {
	case RefreshFeed:
		return r.runRefreshFeed(ctx, p)
	case FetchFavicon:
		return r.runFetchFavicon(ctx, p)
	default:
		return fmt.Errorf("no handler for job type %q", payload.Tag())
	}
}

package postgresql

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/job"
)

// enqueueJob inserts a job row keyed by the payload fingerprint. The
// conflict clause keeps the queue deduplicated: when an identical job is
// already queued (or failed and kept for the record) no row is written
// and uuid.Nil comes back.
func (repository *Repository) enqueueJob(ctx context.Context, q rowQuerier, payload job.Payload) (uuid.UUID, error) {
	query := "insert into jobs (id, fingerprint, data) values ($1, $2, $3) on conflict (fingerprint) do nothing returning id"
	span, ctx := repository.setupTracingSpan(ctx, "enqueue-job", query)
	defer span.Finish()

	id, err := uuid.NewV4()
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return uuid.Nil, fmt.Errorf("couldn't generate job id: %w", err)
	}
	data, err := job.Encode(payload)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return uuid.Nil, err
	}
	var insertedID uuid.UUID
	err = q.QueryRow(ctx, query, id, payload.Fingerprint(), data).Scan(&insertedID)
	if err != nil && err == pgx.ErrNoRows {
		span.LogKV("event", "job already enqueued")
		return uuid.Nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return uuid.Nil, err
	}
	span.LogKV("event", "enqueued job")
	return insertedID, nil
}

func (repository *Repository) EnqueueJob(ctx context.Context, payload job.Payload) (uuid.UUID, error) {
	return repository.enqueueJob(ctx, repository.db, payload)
}

func (repository *Repository) EnqueueJobTx(ctx context.Context, tx pgx.Tx, payload job.Payload) (uuid.UUID, error) {
	return repository.enqueueJob(ctx, tx, payload)
}

// ClaimJobs locks up to limit pending jobs for the lifetime of the
// transaction. Skipped locks keep concurrent runners from claiming the
// same rows.
func (repository *Repository) ClaimJobs(ctx context.Context, tx pgx.Tx, limit int) ([]job.Job, error) {
	query := "select id, data, status, attempts from jobs where status = 'pending' for update skip locked limit $1"
	span, ctx := repository.setupTracingSpan(ctx, "claim-jobs", query)
	defer span.Finish()
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	jobs := []job.Job{}
	for rows.Next() {
		j := job.Job{}
		if err := rows.Scan(&j.ID, &j.Data, &j.Status, &j.Attempts); err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("jobs number", len(jobs))
	return jobs, nil
}

func (repository *Repository) IncrementJobAttempts(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := "update jobs set attempts = attempts + 1 where id=$1"
	span, ctx := repository.setupTracingSpan(ctx, "increment-job-attempts", query)
	defer span.Finish()
	result, err := tx.Exec(ctx, query, id)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	if result.RowsAffected() != 1 {
		span.LogKV("event", "didn't find the job to update")
		return fmt.Errorf("attempts update didn't change a record for job %s", id)
	}
	span.LogKV("event", "incremented job attempts")
	return nil
}

func (repository *Repository) MarkJobFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := "update jobs set status='failed' where id=$1"
	span, ctx := repository.setupTracingSpan(ctx, "mark-job-failed", query)
	defer span.Finish()
	result, err := tx.Exec(ctx, query, id)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	if result.RowsAffected() != 1 {
		span.LogKV("event", "didn't find the job to update")
		return fmt.Errorf("status update didn't change a record for job %s", id)
	}
	span.LogKV("event", "marked job failed")
	return nil
}

func (repository *Repository) DeleteJob(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := "delete from jobs where id=$1"
	span, ctx := repository.setupTracingSpan(ctx, "delete-job", query)
	defer span.Finish()
	result, err := tx.Exec(ctx, query, id)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	if result.RowsAffected() != 1 {
		span.LogKV("event", "didn't find the job to delete")
		return fmt.Errorf("delete didn't remove a record for job %s", id)
	}
	span.LogKV("event", "deleted job")
	return nil
}

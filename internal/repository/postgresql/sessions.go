package postgresql

import (
	"context"

	"github.com/jackc/pgx/v4"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/entity"
)

func (repository *Repository) CreateSession(ctx context.Context, session *entity.Session) error {
	query := "insert into sessions (token, user_id, expires_at) values ($1, $2, $3)"
	span, ctx := repository.setupTracingSpan(ctx, "create-session", query)
	defer span.Finish()
	_, err := repository.db.Exec(ctx, query, session.Token, session.UserID, session.ExpiresAt)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	span.LogKV("event", "created session")
	return nil
}

// GetSession returns the session for token, nil when it is unknown or
// already expired
func (repository *Repository) GetSession(ctx context.Context, token string) (*entity.Session, error) {
	query := "select token, user_id, created_at, expires_at from sessions where token=$1 and expires_at > now()"
	span, ctx := repository.setupTracingSpan(ctx, "get-session", query)
	defer span.Finish()

	s := &entity.Session{}
	err := repository.db.QueryRow(ctx, query, token).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil && err == pgx.ErrNoRows {
		span.LogKV("event", "session not found")
		return nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("event", "got session")
	return s, nil
}

func (repository *Repository) DeleteSession(ctx context.Context, token string) error {
	query := "delete from sessions where token=$1"
	span, ctx := repository.setupTracingSpan(ctx, "delete-session", query)
	defer span.Finish()
	_, err := repository.db.Exec(ctx, query, token)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	span.LogKV("event", "deleted session")
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry and reports
// how many went away
func (repository *Repository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	query := "delete from sessions where expires_at <= now()"
	span, ctx := repository.setupTracingSpan(ctx, "delete-expired-sessions", query)
	defer span.Finish()
	result, err := repository.db.Exec(ctx, query)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return 0, err
	}
	span.LogKV("event", "deleted expired sessions", "count", result.RowsAffected())
	return result.RowsAffected(), nil
}

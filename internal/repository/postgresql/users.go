package postgresql

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/entity"
)

func (repository *Repository) CreateUser(ctx context.Context, user *entity.User) error {
	query := "insert into users (id, email, password_hash) values ($1, $2, $3)"
	span, ctx := repository.setupTracingSpan(ctx, "create-user", query)
	defer span.Finish()
	_, err := repository.db.Exec(ctx, query, user.ID, user.Email, user.PasswordHash)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	span.LogKV("event", "created user")
	return nil
}

func (repository *Repository) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := "select id, email, password_hash, created_at from users where email=$1"
	span, ctx := repository.setupTracingSpan(ctx, "get-user-by-email", query)
	defer span.Finish()

	u := &entity.User{}
	err := repository.db.QueryRow(ctx, query, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil && err == pgx.ErrNoRows {
		span.LogKV("event", "user not found")
		return nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("event", "got user")
	return u, nil
}

func (repository *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	query := "select id, email, password_hash, created_at from users where id=$1"
	span, ctx := repository.setupTracingSpan(ctx, "get-user-by-id", query)
	defer span.Finish()

	u := &entity.User{}
	err := repository.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil && err == pgx.ErrNoRows {
		span.LogKV("event", "user not found")
		return nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("event", "got user")
	return u, nil
}

func (repository *Repository) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := "update users set password_hash=$1 where id=$2"
	span, ctx := repository.setupTracingSpan(ctx, "update-user-password", query)
	defer span.Finish()
	result, err := repository.db.Exec(ctx, query, passwordHash, id)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	if result.RowsAffected() != 1 {
		span.LogKV("event", "didn't find the user to update")
		return fmt.Errorf("password update didn't change a record for user %s", id)
	}
	span.LogKV("event", "updated user password")
	return nil
}

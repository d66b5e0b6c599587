package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"venuebook/internal/model"
)

func (r *repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var token sql.NullString
	var expires sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, magic_token, token_expires, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &token, &expires, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.MagicToken = token.String
	if expires.Valid {
		u.TokenExpires = &expires.Time
	}
	return &u, nil
}

func (r *repository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, name, role, created_at FROM users ORDER BY email ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *repository) UpsertUserRole(ctx context.Context, email string, role model.Role, name string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, role, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role,
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END
		RETURNING id, email, name, role, created_at
	`, uuid.NewString(), email, role, name).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user role: %w", err)
	}
	return &u, nil
}

// SetMagicToken stores a fresh login token for the address, creating the
// user as a student on first sight.
func (r *repository) SetMagicToken(ctx context.Context, email, token string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, role, magic_token, token_expires)
		VALUES ($1, $2, 'student', $3, $4)
		ON CONFLICT (email) DO UPDATE SET magic_token = EXCLUDED.magic_token,
			token_expires = EXCLUDED.token_expires
	`, uuid.NewString(), email, token, expires)
	if err != nil {
		return fmt.Errorf("failed to set magic token: %w", err)
	}
	return nil
}

// ConsumeMagicTokenTx resolves a still-valid token to its user and clears
// it in the same transaction, so a token can be redeemed at most once.
func (r *repository) ConsumeMagicTokenTx(ctx context.Context, token string) (*model.User, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var u model.User
	err = tx.QueryRowContext(ctx, `
		SELECT id, email, name, role, created_at FROM users
		WHERE magic_token = $1 AND token_expires > NOW()
		FOR UPDATE
	`, token).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up magic token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET magic_token = NULL, token_expires = NULL WHERE id = $1
	`, u.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to clear magic token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit token consumption: %w", err)
	}
	return &u, nil
}

func (r *repository) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, s.Token, s.UserID, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *repository) GetSessionUser(ctx context.Context, token string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.role, u.created_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > NOW()
	`, token).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return &u, nil
}

func (r *repository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredAuth drops expired sessions and stale magic tokens. Runs on a
// cron schedule from main.
func (r *repository) PurgeExpiredAuth(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	purged, _ := res.RowsAffected()

	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET magic_token = NULL, token_expires = NULL
		WHERE token_expires IS NOT NULL AND token_expires <= $1
	`, now); err != nil {
		return purged, fmt.Errorf("failed to purge magic tokens: %w", err)
	}
	return purged, nil
}

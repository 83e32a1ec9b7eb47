// internal/database/user.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
)

const userCols = `id, COALESCE(email, ''), password, username, is_ephemeral, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.IsEphemeral, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts u. The password must already be hashed. An email that is taken
// yields apperr.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	q := `INSERT INTO users (id, email, password, username, is_ephemeral, created_at)
	      VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`

	err := s.tx(ctx, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, u.ID, u.Email, u.Password, u.Username, u.IsEphemeral, u.CreatedAt)
		return execErr
	})
	if isUniqueViolation(err, "users_email_key") {
		return fmt.Errorf("email %q: %w", u.Email, apperr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

// UpdateUserCredentials sets email, hashed password, username and the ephemeral flag.
func (s *Store) UpdateUserCredentials(ctx context.Context, u *models.User) error {
	q := `UPDATE users SET email = NULLIF($1, ''), password = $2, username = $3, is_ephemeral = $4, updated_at = NOW() WHERE id = $5`
	var affected int64
	err := s.tx(ctx, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx, q, u.Email, u.Password, u.Username, u.IsEphemeral, u.ID)
		affected = tag.RowsAffected()
		return e
	})
	if isUniqueViolation(err, "users_email_key") {
		return fmt.Errorf("email %q: %w", u.Email, apperr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update user credentials: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", u.ID, apperr.ErrNotFound)
	}
	return nil
}

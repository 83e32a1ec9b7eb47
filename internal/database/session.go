// internal/database/session.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/models"
)

const sessionCols = `id, code, creator_id, is_public, password_hash, max_players, max_objects,
	mode, filters, object_list, status, start_timestamp, end_timestamp, created_at`

func scanSession(row pgx.Row) (*models.GameSession, error) {
	var (
		s       models.GameSession
		filters []byte
	)
	err := row.Scan(
		&s.ID, &s.Code, &s.CreatorID, &s.IsPublic, &s.PasswordHash, &s.MaxPlayers, &s.MaxObjects,
		&s.Mode, &filters, &s.ObjectList, &s.Status, &s.StartTimestamp, &s.EndTimestamp, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &s.Filters); err != nil {
			return nil, fmt.Errorf("decode filters of session %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

func encodeFilters(f map[string]any) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

// CreateSession inserts the session and its creator in one transaction. A live session
// holding the same code yields hunt.ErrCodeTaken.
func (s *Store) CreateSession(ctx context.Context, sess *models.GameSession, creator *models.Participant) error {
	filters, err := encodeFilters(sess.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	q := `
	INSERT INTO game_sessions (` + sessionCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	err = s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			sess.ID, sess.Code, sess.CreatorID, sess.IsPublic, sess.PasswordHash, sess.MaxPlayers, sess.MaxObjects,
			sess.Mode, filters, sess.ObjectList, sess.Status, sess.StartTimestamp, sess.EndTimestamp, sess.CreatedAt,
		)
		if err != nil {
			return err
		}
		if creator == nil {
			return nil
		}
		return insertParticipant(ctx, tx, creator)
	})
	if isUniqueViolation(err, "game_sessions_live_code") {
		return hunt.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.GameSession, error) {
	q := `SELECT ` + sessionCols + ` FROM game_sessions WHERE id = $1`
	sess, err := scanSession(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	return sess, nil
}

// GetSessionByCode prefers the live session owning code, then the most recent finished one.
func (s *Store) GetSessionByCode(ctx context.Context, code string) (*models.GameSession, error) {
	q := `
	SELECT ` + sessionCols + `
	FROM game_sessions
	WHERE code = $1
	ORDER BY (status <> 'finished') DESC, created_at DESC
	LIMIT 1
	`
	sess, err := scanSession(s.pool.QueryRow(ctx, q, code))
	if err != nil {
		return nil, notFound(err, "session code", code)
	}
	return sess, nil
}

func (s *Store) ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]*models.GameSession, error) {
	q := `SELECT ` + sessionCols + ` FROM game_sessions WHERE status = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, status)
	if err != nil {
		return nil, fmt.Errorf("list %s sessions: %w", status, err)
	}
	defer rows.Close()

	var out []*models.GameSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateMatch locks the session row and all of its participant rows, hands them to fn,
// and writes back whatever fn changed in the same transaction.
func (s *Store) UpdateMatch(ctx context.Context, sessionID uuid.UUID, fn func(m *hunt.Match) error) (*hunt.Match, error) {
	var result *hunt.Match
	err := s.tx(ctx, func(tx pgx.Tx) error {
		q := `SELECT ` + sessionCols + ` FROM game_sessions WHERE id = $1 FOR UPDATE`
		sess, err := scanSession(tx.QueryRow(ctx, q, sessionID))
		if err != nil {
			return notFound(err, "session", sessionID)
		}
		participants, err := queryParticipants(ctx, tx, `WHERE session_id = $1 ORDER BY created_at, id FOR UPDATE`, sessionID)
		if err != nil {
			return err
		}
		targets, err := listTargets(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		before := &hunt.Match{Session: sess.Clone(), Targets: append([]models.ObjectTarget(nil), targets...)}
		m := &hunt.Match{Session: sess, Targets: targets}
		for _, p := range participants {
			before.Participants = append(before.Participants, p.Clone())
			m.Participants = append(m.Participants, p)
		}

		if err := fn(m); err != nil {
			if errors.Is(err, hunt.ErrNoChange) {
				result = before
				return nil
			}
			return err
		}

		if err := updateSession(ctx, tx, m.Session); err != nil {
			return err
		}
		for _, p := range m.Participants {
			if err := updateParticipant(ctx, tx, p); err != nil {
				return err
			}
		}
		if len(before.Targets) == 0 && len(m.Targets) > 0 {
			if err := insertTargets(ctx, tx, m.Targets); err != nil {
				return err
			}
		} else {
			m.Targets = before.Targets
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func updateSession(ctx context.Context, tx pgx.Tx, sess *models.GameSession) error {
	filters, err := encodeFilters(sess.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	q := `
	UPDATE game_sessions
	SET is_public = $2, password_hash = $3, max_players = $4, max_objects = $5,
	    mode = $6, filters = $7, object_list = $8, status = $9,
	    start_timestamp = $10, end_timestamp = $11
	WHERE id = $1
	`
	_, err = tx.Exec(ctx, q,
		sess.ID, sess.IsPublic, sess.PasswordHash, sess.MaxPlayers, sess.MaxObjects,
		sess.Mode, filters, sess.ObjectList, sess.Status,
		sess.StartTimestamp, sess.EndTimestamp,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	return nil
}

func insertTargets(ctx context.Context, tx pgx.Tx, targets []models.ObjectTarget) error {
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"object_targets"},
		[]string{"id", "session_id", "name", "order_index"},
		pgx.CopyFromSlice(len(targets), func(i int) ([]any, error) {
			t := targets[i]
			return []any{t.ID, t.SessionID, t.Name, t.OrderIndex}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert targets: %w", err)
	}
	return nil
}

func listTargets(ctx context.Context, q querier, sessionID uuid.UUID) ([]models.ObjectTarget, error) {
	rows, err := q.Query(ctx, `
	SELECT id, session_id, name, order_index
	FROM object_targets
	WHERE session_id = $1
	ORDER BY order_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list targets of %s: %w", sessionID, err)
	}
	targets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ObjectTarget, error) {
		var t models.ObjectTarget
		err := row.Scan(&t.ID, &t.SessionID, &t.Name, &t.OrderIndex)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan targets of %s: %w", sessionID, err)
	}
	return targets, nil
}

func (s *Store) ListTargets(ctx context.Context, sessionID uuid.UUID) ([]models.ObjectTarget, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM game_sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session %s: %w", sessionID, err)
	}
	if !exists {
		return nil, notFound(pgx.ErrNoRows, "session", sessionID)
	}
	return listTargets(ctx, s.pool, sessionID)
}

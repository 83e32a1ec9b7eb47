// internal/database/participant.go
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

const participantCols = `id, session_id, user_id, join_code, is_creator, targets, lap_times,
	start_time, end_time, status, created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var (
		p                 models.Participant
		targets, laptimes []byte
	)
	err := row.Scan(
		&p.ID, &p.SessionID, &p.UserID, &p.JoinCode, &p.IsCreator, &targets, &laptimes,
		&p.StartTime, &p.EndTime, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targets, &p.Targets); err != nil {
		return nil, fmt.Errorf("decode targets of participant %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(laptimes, &p.LapTimes); err != nil {
		return nil, fmt.Errorf("decode lap times of participant %s: %w", p.ID, err)
	}
	return &p, nil
}

// encodeProgress marshals the JSONB columns. Nil slices are stored as empty arrays.
func encodeProgress(p *models.Participant) (targets, laptimes []byte, err error) {
	t := p.Targets
	if t == nil {
		t = []models.TargetEntry{}
	}
	l := p.LapTimes
	if l == nil {
		l = []models.LapTime{}
	}
	if targets, err = json.Marshal(t); err != nil {
		return nil, nil, fmt.Errorf("encode targets: %w", err)
	}
	if laptimes, err = json.Marshal(l); err != nil {
		return nil, nil, fmt.Errorf("encode lap times: %w", err)
	}
	return targets, laptimes, nil
}

func queryParticipants(ctx context.Context, q querier, where string, args ...any) ([]*models.Participant, error) {
	rows, err := q.Query(ctx, `SELECT `+participantCols+` FROM participants `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	return out, nil
}

func insertParticipant(ctx context.Context, tx pgx.Tx, p *models.Participant) error {
	targets, laptimes, err := encodeProgress(p)
	if err != nil {
		return err
	}
	q := `
	INSERT INTO participants (` + participantCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, q,
		p.ID, p.SessionID, p.UserID, p.JoinCode, p.IsCreator, targets, laptimes,
		p.StartTime, p.EndTime, p.Status, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert participant %s: %w", p.ID, err)
	}
	return nil
}

func updateParticipant(ctx context.Context, tx pgx.Tx, p *models.Participant) error {
	targets, laptimes, err := encodeProgress(p)
	if err != nil {
		return err
	}
	q := `
	UPDATE participants
	SET targets = $2, lap_times = $3, start_time = $4, end_time = $5, status = $6
	WHERE id = $1
	`
	if _, err := tx.Exec(ctx, q, p.ID, targets, laptimes, p.StartTime, p.EndTime, p.Status); err != nil {
		return fmt.Errorf("update participant %s: %w", p.ID, err)
	}
	return nil
}

// JoinParticipant locks the session row so that the member count seen by admit stays
// accurate until the insert commits.
func (s *Store) JoinParticipant(ctx context.Context, p *models.Participant, admit func(*models.GameSession, int) error) (*models.Participant, bool, error) {
	var (
		existing *models.Participant
		created  bool
	)
	err := s.tx(ctx, func(tx pgx.Tx) error {
		q := `SELECT ` + sessionCols + ` FROM game_sessions WHERE id = $1 FOR UPDATE`
		sess, err := scanSession(tx.QueryRow(ctx, q, p.SessionID))
		if err != nil {
			return notFound(err, "session", p.SessionID)
		}

		members, err := queryParticipants(ctx, tx, `WHERE session_id = $1`, p.SessionID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.UserID == p.UserID {
				existing = m
				return nil
			}
		}
		if err := admit(sess, len(members)); err != nil {
			return err
		}
		if err := insertParticipant(ctx, tx, p); err != nil {
			return err
		}
		existing, created = p.Clone(), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	q := `SELECT ` + participantCols + ` FROM participants WHERE id = $1`
	p, err := scanParticipant(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFound(err, "participant", id)
	}
	return p, nil
}

// ListParticipants returns members in join order. An unknown session is NotFound.
func (s *Store) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return queryParticipants(ctx, s.pool, `WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
}

func (s *Store) UpdateParticipant(ctx context.Context, id uuid.UUID, fn func(p *models.Participant) error) (*models.Participant, error) {
	var result *models.Participant
	err := s.tx(ctx, func(tx pgx.Tx) error {
		q := `SELECT ` + participantCols + ` FROM participants WHERE id = $1 FOR UPDATE`
		p, err := scanParticipant(tx.QueryRow(ctx, q, id))
		if err != nil {
			return notFound(err, "participant", id)
		}
		before := p.Clone()
		if err := fn(p); err != nil {
			if errors.Is(err, hunt.ErrNoChange) {
				result = before
				return nil
			}
			return err
		}
		if err := updateParticipant(ctx, tx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveEvidence writes a submission's detections in one batch.
func (s *Store) SaveEvidence(ctx context.Context, evidence []models.Evidence) error {
	if len(evidence) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range evidence {
		bbox, err := json.Marshal(e.BBox)
		if err != nil {
			return fmt.Errorf("encode bbox: %w", err)
		}
		batch.Queue(`
		INSERT INTO evidence (id, participant_id, label, confidence, bbox, target_name, is_target_match, photo_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, e.ID, e.ParticipantID, e.Label, e.Confidence, bbox, e.TargetName, e.IsTargetMatch, e.PhotoURL, e.CreatedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

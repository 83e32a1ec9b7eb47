// internal/database/event.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/pikit/internal/hunt"
)

// InsertMatchEvents persists a batch of match events in a single transaction.
func (s *Store) InsertMatchEvents(ctx context.Context, events []hunt.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.tx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ev := range events {
			var payload []byte
			if ev.Payload != nil {
				raw, err := json.Marshal(ev.Payload)
				if err != nil {
					return fmt.Errorf("encode payload of %s event: %w", ev.Type, err)
				}
				payload = raw
			}
			batch.Queue(`
			INSERT INTO match_events (type, session_id, participant_id, user_id, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			`, ev.Type, ev.SessionID, nullID(ev.ParticipantID), nullID(ev.UserID), payload, ev.Timestamp)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert match events: %w", err)
		}
		return nil
	})
}

func nullID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

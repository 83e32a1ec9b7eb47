// internal/database/object_list.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/pikit/internal/models"
)

// ObjectsForList serves named pools stored in object_lists.
func (s *Store) ObjectsForList(ctx context.Context, name string) ([]string, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, `SELECT objects FROM object_lists WHERE name = $1`, name).Scan(&raw); err != nil {
		return nil, notFound(err, "object list", name)
	}
	var objects []string
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("decode object list %q: %w", name, err)
	}
	return objects, nil
}

// UpsertObjectList creates or replaces a named pool.
func (s *Store) UpsertObjectList(ctx context.Context, l *models.ObjectList) error {
	objects := l.Objects
	if objects == nil {
		objects = []string{}
	}
	raw, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("encode object list %q: %w", l.Name, err)
	}
	_, err = s.pool.Exec(ctx, `
	INSERT INTO object_lists (name, objects, description)
	VALUES ($1, $2, $3)
	ON CONFLICT (name) DO UPDATE
	SET objects = EXCLUDED.objects, description = EXCLUDED.description, updated_at = NOW()
	`, l.Name, raw, l.Description)
	if err != nil {
		return fmt.Errorf("upsert object list %q: %w", l.Name, err)
	}
	return nil
}

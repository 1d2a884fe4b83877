package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Entity is one mapped local representation of a remote object. Properties
// hold the mapped bean payload as JSON.
type Entity struct {
	ID         int64
	EntityType string
	RemoteID   string
	Properties []byte
}

// FindEntityByRemoteID locates a local entity by its stable external id.
// Returns (nil, nil) when no local match exists.
func (s *Store) FindEntityByRemoteID(ctx context.Context, entityType, remoteID string) (*Entity, error) {
	var e Entity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, remote_id, properties
		FROM entities
		WHERE entity_type = ? AND remote_id = ?
	`, entityType, remoteID).Scan(&e.ID, &e.EntityType, &e.RemoteID, &e.Properties)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entity %s/%s: %w", entityType, remoteID, err)
	}
	return &e, nil
}

// EntityExists reports whether any entity carries the given remote id.
// Used by mappers to resolve cross-entity relations.
func (s *Store) EntityExists(ctx context.Context, remoteID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE remote_id = ?`, remoteID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check entity %q: %w", remoteID, err)
	}
	return n > 0, nil
}

// UpsertEntity creates or updates an entity keyed by (entity_type, remote_id).
// Replayed or redundant events therefore never produce duplicates.
func (s *Store) UpsertEntity(ctx context.Context, entityType, remoteID string, properties []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (entity_type, remote_id, properties)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, remote_id) DO UPDATE SET
			properties = excluded.properties
	`, entityType, remoteID, properties)
	if err != nil {
		return fmt.Errorf("upsert entity %s/%s: %w", entityType, remoteID, err)
	}
	return nil
}

// RemoveEntity deletes an entity by its external id. Removing an absent
// entity is a no-op: already absent is the goal state of a delete.
func (s *Store) RemoveEntity(ctx context.Context, entityType, remoteID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE entity_type = ? AND remote_id = ?`,
		entityType, remoteID); err != nil {
		return fmt.Errorf("remove entity %s/%s: %w", entityType, remoteID, err)
	}
	return nil
}

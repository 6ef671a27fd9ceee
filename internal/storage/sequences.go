// Package storage - sequence graph persistence
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"linkedin-outreach/internal/models"
)

// SequenceStore handles sequence database operations
type SequenceStore struct {
	db *Database
}

// NewSequenceStore creates a new SequenceStore
func NewSequenceStore(db *Database) *SequenceStore {
	return &SequenceStore{db: db}
}

// Save inserts or replaces a sequence graph
func (s *SequenceStore) Save(seq *models.Sequence) error {
	now := utc(time.Now())

	nodes, err := toJSON(seq.Nodes)
	if err != nil {
		return err
	}
	edges, err := toJSON(seq.Edges)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO sequences (id, owner_id, name, nodes, edges, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			nodes = excluded.nodes,
			edges = excluded.edges,
			updated_at = excluded.updated_at
	`, seq.ID, seq.OwnerID, seq.Name, nodes, edges, now, now)

	if err != nil {
		return fmt.Errorf("failed to save sequence: %w", err)
	}

	return nil
}

// Get retrieves a sequence by ID, returning nil when absent
func (s *SequenceStore) Get(id string) (*models.Sequence, error) {
	seq := &models.Sequence{}
	var nodes, edges string

	err := s.db.db.QueryRow(`
		SELECT id, owner_id, name, nodes, edges, created_at, updated_at
		FROM sequences WHERE id = ?
	`, id).Scan(&seq.ID, &seq.OwnerID, &seq.Name, &nodes, &edges, &seq.CreatedAt, &seq.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence: %w", err)
	}

	if err := fromJSON(nodes, &seq.Nodes); err != nil {
		return nil, err
	}
	if err := fromJSON(edges, &seq.Edges); err != nil {
		return nil, err
	}

	return seq, nil
}

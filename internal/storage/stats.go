// Package storage - campaign statistics snapshots
package storage

import (
	"database/sql"
	"fmt"

	"linkedin-outreach/internal/models"
)

// StatsStore handles campaign statistics snapshot operations
type StatsStore struct {
	db *Database
}

// NewStatsStore creates a new StatsStore
func NewStatsStore(db *Database) *StatsStore {
	return &StatsStore{db: db}
}

// Save appends a snapshot for a campaign
func (s *StatsStore) Save(snap *models.StatsSnapshot) error {
	data, err := toJSON(snap)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO campaign_stats (campaign_id, snapshot, taken_at) VALUES (?, ?, ?)
	`, snap.CampaignID, data, utc(snap.TakenAt))

	if err != nil {
		return fmt.Errorf("failed to save stats snapshot: %w", err)
	}

	return nil
}

// Latest retrieves the most recent snapshot of a campaign, returning nil when none exists
func (s *StatsStore) Latest(campaignID string) (*models.StatsSnapshot, error) {
	var data string

	err := s.db.db.QueryRow(`
		SELECT snapshot FROM campaign_stats
		WHERE campaign_id = ?
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`, campaignID).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats snapshot: %w", err)
	}

	snap := &models.StatsSnapshot{}
	if err := fromJSON(data, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

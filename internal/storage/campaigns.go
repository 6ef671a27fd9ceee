// Package storage - campaign CRUD and lifecycle transitions
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"linkedin-outreach/internal/models"
)

// CampaignStore handles campaign database operations
type CampaignStore struct {
	db *Database
}

// NewCampaignStore creates a new CampaignStore
func NewCampaignStore(db *Database) *CampaignStore {
	return &CampaignStore{db: db}
}

const campaignColumns = `id, owner_id, name, status, sequence_id, account_id, lead_list_ids, analytics,
	pause_reason, started_at, paused_at, stopped_at, completed_at, last_run_at, created_at, updated_at`

// Save inserts or updates a campaign definition
func (s *CampaignStore) Save(c *models.Campaign) error {
	now := utc(time.Now())
	if c.Status == "" {
		c.Status = models.CampaignDraft
	}

	lists, err := toJSON(c.LeadListIDs)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO campaigns (id, owner_id, name, status, sequence_id, account_id, lead_list_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			sequence_id = excluded.sequence_id,
			account_id = excluded.account_id,
			lead_list_ids = excluded.lead_list_ids,
			updated_at = excluded.updated_at
	`, c.ID, c.OwnerID, c.Name, c.Status, c.SequenceID, c.AccountID, lists, now, now)

	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}

	return nil
}

// Get retrieves a campaign by ID, returning nil when absent
func (s *CampaignStore) Get(id string) (*models.Campaign, error) {
	rows, err := s.db.db.Query(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	defer rows.Close()

	campaigns, err := s.scanCampaigns(rows)
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return nil, nil
	}
	return campaigns[0], nil
}

// ListByStatus retrieves all campaigns in the given status
func (s *CampaignStore) ListByStatus(status models.CampaignStatus) ([]*models.Campaign, error) {
	rows, err := s.db.db.Query(`
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = ?
		ORDER BY created_at ASC
	`, status)

	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	return s.scanCampaigns(rows)
}

// List retrieves all campaigns
func (s *CampaignStore) List() ([]*models.Campaign, error) {
	rows, err := s.db.db.Query(`SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	return s.scanCampaigns(rows)
}

// Transition moves a campaign from one of the allowed statuses to the target status.
// It reports false when the campaign was not in an allowed status.
func (s *CampaignStore) Transition(id string, to models.CampaignStatus, reason string, at time.Time, from ...models.CampaignStatus) (bool, error) {
	column := ""
	switch to {
	case models.CampaignRunning:
		column = "started_at"
	case models.CampaignPaused:
		column = "paused_at"
	case models.CampaignStopped:
		column = "stopped_at"
	case models.CampaignCompleted:
		column = "completed_at"
	}

	query := `UPDATE campaigns SET status = ?, pause_reason = ?, updated_at = ?`
	args := []any{to, reason, utc(at)}
	if column != "" {
		if to == models.CampaignRunning {
			// started_at keeps the first start across resumes
			query += `, started_at = COALESCE(started_at, ?)`
		} else {
			query += `, ` + column + ` = ?`
		}
		args = append(args, utc(at))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	if len(from) > 0 {
		query += ` AND status IN (` + placeholders(len(from)) + `)`
		for _, f := range from {
			args = append(args, f)
		}
	}

	result, err := s.db.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition campaign: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return n > 0, nil
}

// UpdateAnalytics stores recomputed campaign analytics
func (s *CampaignStore) UpdateAnalytics(id string, a models.CampaignAnalytics) error {
	data, err := toJSON(a)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		UPDATE campaigns SET analytics = ?, updated_at = ? WHERE id = ?
	`, data, utc(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to update analytics: %w", err)
	}

	return nil
}

// TouchLastRun records the last time the campaign had an action processed
func (s *CampaignStore) TouchLastRun(id string, at time.Time) error {
	_, err := s.db.db.Exec(`
		UPDATE campaigns SET last_run_at = ?, updated_at = ? WHERE id = ?
	`, utc(at), utc(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to update last run: %w", err)
	}

	return nil
}

func (s *CampaignStore) scanCampaigns(rows *sql.Rows) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign

	for rows.Next() {
		c := &models.Campaign{}
		var lists, analytics string
		var started, paused, stopped, completed, lastRun sql.NullTime

		err := rows.Scan(
			&c.ID, &c.OwnerID, &c.Name, &c.Status, &c.SequenceID, &c.AccountID, &lists, &analytics,
			&c.PauseReason, &started, &paused, &stopped, &completed, &lastRun, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}

		if err := fromJSON(lists, &c.LeadListIDs); err != nil {
			return nil, err
		}
		if err := fromJSON(analytics, &c.Analytics); err != nil {
			return nil, err
		}
		c.StartedAt = timePtr(started)
		c.PausedAt = timePtr(paused)
		c.StoppedAt = timePtr(stopped)
		c.CompletedAt = timePtr(completed)
		c.LastRunAt = timePtr(lastRun)

		campaigns = append(campaigns, c)
	}

	return campaigns, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

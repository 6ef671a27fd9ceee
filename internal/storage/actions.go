// Package storage - campaign action persistence and aggregate queries
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"linkedin-outreach/internal/models"
)

// ActionStore handles campaign action database operations
type ActionStore struct {
	db *Database
}

// NewActionStore creates a new ActionStore
func NewActionStore(db *Database) *ActionStore {
	return &ActionStore{db: db}
}

const actionColumns = `id, campaign_id, lead_id, account_id, type, status, scheduled_for, executed_at,
	node_id, retry_count, last_error, response, payload, created_at, updated_at`

// Create inserts a new action. A second pending action for the same lead
// is rejected with ErrPendingExists.
func (s *ActionStore) Create(a *models.CampaignAction) error {
	now := utc(time.Now())
	if a.Status == "" {
		a.Status = models.ActionPending
	}

	payload, err := models.EncodePayload(a.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO campaign_actions (id, campaign_id, lead_id, account_id, type, status, scheduled_for,
			node_id, retry_count, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CampaignID, a.LeadID, a.AccountID, a.Type, a.Status, utc(a.ScheduledFor),
		a.NodeID, a.RetryCount, payload, now, now)

	if err != nil {
		if a.Status == models.ActionPending && isUniqueViolation(err) {
			return ErrPendingExists
		}
		return fmt.Errorf("failed to create action: %w", err)
	}

	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// Get retrieves an action by ID, returning nil when absent
func (s *ActionStore) Get(id string) (*models.CampaignAction, error) {
	rows, err := s.db.db.Query(`SELECT `+actionColumns+` FROM campaign_actions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	defer rows.Close()

	actions, err := s.scanActions(rows)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, nil
	}
	return actions[0], nil
}

// GetDue returns up to limit pending actions due at now, earliest first
func (s *ActionStore) GetDue(now time.Time, limit int) ([]*models.CampaignAction, error) {
	rows, err := s.db.db.Query(`
		SELECT `+actionColumns+` FROM campaign_actions
		WHERE status = ? AND scheduled_for <= ?
		ORDER BY scheduled_for ASC
		LIMIT ?
	`, models.ActionPending, utc(now), limit)

	if err != nil {
		return nil, fmt.Errorf("failed to get due actions: %w", err)
	}
	defer rows.Close()

	return s.scanActions(rows)
}

// ListByCampaign returns every action of a campaign in creation order
func (s *ActionStore) ListByCampaign(campaignID string) ([]*models.CampaignAction, error) {
	rows, err := s.db.db.Query(`
		SELECT `+actionColumns+` FROM campaign_actions
		WHERE campaign_id = ?
		ORDER BY rowid ASC
	`, campaignID)

	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	return s.scanActions(rows)
}

// Complete marks a pending action completed
func (s *ActionStore) Complete(id string, executedAt time.Time, response string) (bool, error) {
	result, err := s.db.db.Exec(`
		UPDATE campaign_actions
		SET status = ?, executed_at = ?, response = ?, last_error = '', error_class = '', updated_at = ?
		WHERE id = ? AND status = ?
	`, models.ActionCompleted, utc(executedAt), response, utc(time.Now()), id, models.ActionPending)

	return affected(result, err, "complete action")
}

// Fail marks a pending action failed with its final error
func (s *ActionStore) Fail(id string, retryCount int, lastError, class string) (bool, error) {
	result, err := s.db.db.Exec(`
		UPDATE campaign_actions
		SET status = ?, retry_count = ?, last_error = ?, error_class = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.ActionFailed, retryCount, lastError, class, utc(time.Now()), id, models.ActionPending)

	return affected(result, err, "fail action")
}

// Reschedule keeps an action pending and moves its due time
func (s *ActionStore) Reschedule(id string, scheduledFor time.Time, retryCount int, lastError, class string) (bool, error) {
	result, err := s.db.db.Exec(`
		UPDATE campaign_actions
		SET scheduled_for = ?, retry_count = ?, last_error = ?, error_class = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, utc(scheduledFor), retryCount, lastError, class, utc(time.Now()), id, models.ActionPending)

	return affected(result, err, "reschedule action")
}

// ResetFailed moves the latest failed action of each campaign lead back to pending,
// due at now with a fresh retry budget. Leads that already hold a pending action
// are skipped. A non-empty class restricts the reset to failures of that class.
// It returns the lead IDs whose action was reset.
func (s *ActionStore) ResetFailed(campaignID string, now time.Time, class string) ([]string, error) {
	var leadIDs []string

	err := s.db.Transaction(func(tx *sql.Tx) error {
		query := `
			SELECT a.id, a.lead_id FROM campaign_actions a
			WHERE a.campaign_id = ? AND a.status = ?
			AND a.rowid = (
				SELECT MAX(b.rowid) FROM campaign_actions b
				WHERE b.lead_id = a.lead_id AND b.campaign_id = a.campaign_id
			)
			AND NOT EXISTS (SELECT 1 FROM campaign_actions p WHERE p.lead_id = a.lead_id AND p.status = ?)`
		args := []any{campaignID, models.ActionFailed, models.ActionPending}
		if class != "" {
			query += ` AND a.error_class = ?`
			args = append(args, class)
		}

		rows, err := tx.Query(query, args...)
		if err != nil {
			return fmt.Errorf("failed to select failed actions: %w", err)
		}

		var ids []string
		for rows.Next() {
			var id, leadID string
			if err := rows.Scan(&id, &leadID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan failed action: %w", err)
			}
			ids = append(ids, id)
			leadIDs = append(leadIDs, leadID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			_, err := tx.Exec(`
				UPDATE campaign_actions
				SET status = ?, scheduled_for = ?, retry_count = 0, error_class = '', updated_at = ?
				WHERE id = ?
			`, models.ActionPending, utc(now), utc(time.Now()), id)
			if err != nil {
				return fmt.Errorf("failed to reset action: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return leadIDs, nil
}

// HasPending reports whether the lead has an outstanding pending action
func (s *ActionStore) HasPending(leadID string) (bool, error) {
	var exists int

	err := s.db.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM campaign_actions WHERE lead_id = ? AND status = ?)
	`, leadID, models.ActionPending).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check pending action: %w", err)
	}

	return exists == 1, nil
}

// CountPending returns the number of pending actions, optionally for one campaign
func (s *ActionStore) CountPending(campaignID string) (int, error) {
	query := `SELECT COUNT(*) FROM campaign_actions WHERE status = ?`
	args := []any{models.ActionPending}
	if campaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, campaignID)
	}

	var count int
	if err := s.db.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}

	return count, nil
}

// CountByTypeAndStatus groups a campaign's actions by type and status
func (s *ActionStore) CountByTypeAndStatus(campaignID string) (map[models.ActionType]map[models.ActionStatus]int, error) {
	rows, err := s.db.db.Query(`
		SELECT type, status, COUNT(*) FROM campaign_actions
		WHERE campaign_id = ?
		GROUP BY type, status
	`, campaignID)

	if err != nil {
		return nil, fmt.Errorf("failed to group actions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ActionType]map[models.ActionStatus]int)
	for rows.Next() {
		var t models.ActionType
		var st models.ActionStatus
		var n int
		if err := rows.Scan(&t, &st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan action group: %w", err)
		}
		if counts[t] == nil {
			counts[t] = make(map[models.ActionStatus]int)
		}
		counts[t][st] = n
	}

	return counts, rows.Err()
}

// CountCompletedSince returns the number of actions a campaign completed since the given time
func (s *ActionStore) CountCompletedSince(campaignID string, since time.Time) (int, error) {
	var count int

	err := s.db.db.QueryRow(`
		SELECT COUNT(*) FROM campaign_actions
		WHERE campaign_id = ? AND status = ? AND executed_at >= ?
	`, campaignID, models.ActionCompleted, utc(since)).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count completed actions: %w", err)
	}

	return count, nil
}

// Outcomes returns the completed and failed action counts of a campaign
// whose last update falls inside the window
func (s *ActionStore) Outcomes(campaignID string, since time.Time) (completed, failed int, err error) {
	err = s.db.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM campaign_actions
		WHERE campaign_id = ? AND updated_at >= ?
	`, models.ActionCompleted, models.ActionFailed, campaignID, utc(since)).Scan(&completed, &failed)

	if err != nil {
		return 0, 0, fmt.Errorf("failed to count outcomes: %w", err)
	}

	return completed, failed, nil
}

func (s *ActionStore) scanActions(rows *sql.Rows) ([]*models.CampaignAction, error) {
	var actions []*models.CampaignAction

	for rows.Next() {
		a := &models.CampaignAction{}
		var executed sql.NullTime
		var payload string

		err := rows.Scan(
			&a.ID, &a.CampaignID, &a.LeadID, &a.AccountID, &a.Type, &a.Status, &a.ScheduledFor, &executed,
			&a.NodeID, &a.RetryCount, &a.LastError, &a.Response, &payload, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		a.ExecutedAt = timePtr(executed)
		if a.Payload, err = models.DecodePayload(a.Type, payload); err != nil {
			return nil, err
		}

		actions = append(actions, a)
	}

	return actions, rows.Err()
}

func affected(result sql.Result, err error, op string) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	return n > 0, nil
}

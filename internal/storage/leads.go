// Package storage - lead CRUD and enrollment queries
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"linkedin-outreach/internal/models"
)

// LeadStore handles lead database operations
type LeadStore struct {
	db *Database
}

// NewLeadStore creates a new LeadStore
func NewLeadStore(db *Database) *LeadStore {
	return &LeadStore{db: db}
}

const leadColumns = `id, owner_id, list_id, campaign_id, profile_url, email, first_name, last_name,
	company, position, industry, location, status, connection_status, flags,
	last_action_at, last_action_node_id, created_at, updated_at`

// Save inserts a lead or refreshes its imported profile fields
func (s *LeadStore) Save(l *models.Lead) error {
	now := utc(time.Now())
	if l.Status == "" {
		l.Status = models.LeadNew
	}
	if l.ConnectionStatus == "" {
		l.ConnectionStatus = models.ConnectionNone
	}

	flags, err := toJSON(l.Flags)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO leads (id, owner_id, list_id, campaign_id, profile_url, email, first_name, last_name,
			company, position, industry, location, status, connection_status, flags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			list_id = excluded.list_id,
			profile_url = excluded.profile_url,
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			company = excluded.company,
			position = excluded.position,
			industry = excluded.industry,
			location = excluded.location,
			updated_at = excluded.updated_at
	`, l.ID, l.OwnerID, l.ListID, l.CampaignID, l.ProfileURL, l.Email, l.FirstName, l.LastName,
		l.Company, l.Position, l.Industry, l.Location, l.Status, l.ConnectionStatus, flags, now, now)

	if err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}

	return nil
}

// Get retrieves a lead by ID, returning nil when absent
func (s *LeadStore) Get(id string) (*models.Lead, error) {
	rows, err := s.db.db.Query(`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	defer rows.Close()

	leads, err := s.scanLeads(rows)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return leads[0], nil
}

// UpdateProgress stores the sequence progress of a lead
func (s *LeadStore) UpdateProgress(l *models.Lead) error {
	flags, err := toJSON(l.Flags)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		UPDATE leads
		SET status = ?, connection_status = ?, flags = ?, last_action_at = ?, last_action_node_id = ?, updated_at = ?
		WHERE id = ?
	`, l.Status, l.ConnectionStatus, flags, nullTime(l.LastActionAt), l.LastActionNodeID, utc(time.Now()), l.ID)

	if err != nil {
		return fmt.Errorf("failed to update lead progress: %w", err)
	}

	return nil
}

// AttachLists assigns unassigned leads of the given lists to a campaign
func (s *LeadStore) AttachLists(campaignID string, listIDs []string) (int64, error) {
	if len(listIDs) == 0 {
		return 0, nil
	}

	args := []any{campaignID, utc(time.Now())}
	for _, id := range listIDs {
		args = append(args, id)
	}

	result, err := s.db.db.Exec(`
		UPDATE leads SET campaign_id = ?, updated_at = ?
		WHERE list_id IN (`+placeholders(len(listIDs))+`) AND (campaign_id = '' OR campaign_id IS NULL)
	`, args...)

	if err != nil {
		return 0, fmt.Errorf("failed to attach leads: %w", err)
	}

	return result.RowsAffected()
}

// ListUnstarted returns new campaign leads that never had an action, in import order
func (s *LeadStore) ListUnstarted(campaignID string) ([]*models.Lead, error) {
	rows, err := s.db.db.Query(`
		SELECT `+leadColumns+` FROM leads l
		WHERE l.campaign_id = ? AND l.status = ?
		AND NOT EXISTS (SELECT 1 FROM campaign_actions a WHERE a.lead_id = l.id AND a.campaign_id = l.campaign_id)
		ORDER BY l.created_at ASC, l.rowid ASC
	`, campaignID, models.LeadNew)

	if err != nil {
		return nil, fmt.Errorf("failed to list unstarted leads: %w", err)
	}
	defer rows.Close()

	return s.scanLeads(rows)
}

// ListStalled returns leads whose last action is older than the status threshold
// and who have no pending action
func (s *LeadStore) ListStalled(campaignID string, inviteBefore, messageBefore time.Time) ([]*models.Lead, error) {
	rows, err := s.db.db.Query(`
		SELECT `+leadColumns+` FROM leads l
		WHERE l.campaign_id = ?
		AND (
			(l.status = ? AND l.last_action_at <= ?) OR
			(l.status = ? AND l.last_action_at <= ?)
		)
		AND NOT EXISTS (SELECT 1 FROM campaign_actions a WHERE a.lead_id = l.id AND a.status = ?)
		ORDER BY l.last_action_at ASC
	`, campaignID, models.LeadInviteSent, utc(inviteBefore), models.LeadMessageSent, utc(messageBefore), models.ActionPending)

	if err != nil {
		return nil, fmt.Errorf("failed to list stalled leads: %w", err)
	}
	defer rows.Close()

	return s.scanLeads(rows)
}

// ListIdle returns non-terminal leads that have progressed through at least one
// step but hold no pending action
func (s *LeadStore) ListIdle(campaignID string) ([]*models.Lead, error) {
	rows, err := s.db.db.Query(`
		SELECT `+leadColumns+` FROM leads l
		WHERE l.campaign_id = ? AND l.last_action_node_id != ''
		AND l.status NOT IN (?, ?, ?)
		AND NOT EXISTS (SELECT 1 FROM campaign_actions a WHERE a.lead_id = l.id AND a.status = ?)
		ORDER BY l.last_action_at ASC
	`, campaignID, models.LeadSequenceCompleted, models.LeadFailed, models.LeadReplied, models.ActionPending)

	if err != nil {
		return nil, fmt.Errorf("failed to list idle leads: %w", err)
	}
	defer rows.Close()

	return s.scanLeads(rows)
}

// CountActive returns the number of campaign leads that have not reached a terminal status
func (s *LeadStore) CountActive(campaignID string) (int, error) {
	var count int

	err := s.db.db.QueryRow(`
		SELECT COUNT(*) FROM leads WHERE campaign_id = ? AND status NOT IN (?, ?, ?)
	`, campaignID, models.LeadSequenceCompleted, models.LeadFailed, models.LeadReplied).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count active leads: %w", err)
	}

	return count, nil
}

// CountByStatus returns the lead status distribution of a campaign
func (s *LeadStore) CountByStatus(campaignID string) (map[models.LeadStatus]int, error) {
	rows, err := s.db.db.Query(`
		SELECT status, COUNT(*) FROM leads WHERE campaign_id = ? GROUP BY status
	`, campaignID)

	if err != nil {
		return nil, fmt.Errorf("failed to count leads by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.LeadStatus]int)
	for rows.Next() {
		var status models.LeadStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan lead count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

func (s *LeadStore) scanLeads(rows *sql.Rows) ([]*models.Lead, error) {
	var leads []*models.Lead

	for rows.Next() {
		l := &models.Lead{}
		var flags string
		var lastAction sql.NullTime

		err := rows.Scan(
			&l.ID, &l.OwnerID, &l.ListID, &l.CampaignID, &l.ProfileURL, &l.Email, &l.FirstName, &l.LastName,
			&l.Company, &l.Position, &l.Industry, &l.Location, &l.Status, &l.ConnectionStatus, &flags,
			&lastAction, &l.LastActionNodeID, &l.CreatedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		if err := fromJSON(flags, &l.Flags); err != nil {
			return nil, err
		}
		l.LastActionAt = timePtr(lastAction)
		leads = append(leads, l)
	}

	return leads, rows.Err()
}

// Package storage - proxy resource persistence
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"linkedin-outreach/internal/models"
)

// ProxyStore handles proxy resource database operations
type ProxyStore struct {
	db *Database
}

// NewProxyStore creates a new ProxyStore
func NewProxyStore(db *Database) *ProxyStore {
	return &ProxyStore{db: db}
}

const proxyColumns = `id, host, port, protocol, username, password, region, status,
	issue_count, issues, usage_count, total_assignments, last_used_at, created_at, updated_at`

// Save inserts or updates a proxy's connection details and status
func (s *ProxyStore) Save(p *models.ProxyResource) error {
	now := utc(time.Now())
	if p.Status == "" {
		p.Status = models.ProxyActive
	}

	_, err := s.db.db.Exec(`
		INSERT INTO proxies (id, host, port, protocol, username, password, region, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			protocol = excluded.protocol,
			username = excluded.username,
			password = excluded.password,
			region = excluded.region,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, p.ID, p.Host, p.Port, p.Protocol, p.Username, p.Password, p.Region, p.Status, now, now)

	if err != nil {
		return fmt.Errorf("failed to save proxy: %w", err)
	}

	return nil
}

// Get retrieves a proxy by ID, returning nil when absent
func (s *ProxyStore) Get(id string) (*models.ProxyResource, error) {
	rows, err := s.db.db.Query(`SELECT `+proxyColumns+` FROM proxies WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proxy: %w", err)
	}
	defer rows.Close()

	proxies, err := s.scanProxies(rows)
	if err != nil {
		return nil, err
	}
	if len(proxies) == 0 {
		return nil, nil
	}
	return proxies[0], nil
}

// ListByRegion returns the proxies of a region in insertion order
func (s *ProxyStore) ListByRegion(region string) ([]*models.ProxyResource, error) {
	rows, err := s.db.db.Query(`
		SELECT `+proxyColumns+` FROM proxies
		WHERE region = ?
		ORDER BY rowid ASC
	`, region)

	if err != nil {
		return nil, fmt.Errorf("failed to list proxies: %w", err)
	}
	defer rows.Close()

	return s.scanProxies(rows)
}

// List returns every proxy in insertion order
func (s *ProxyStore) List() ([]*models.ProxyResource, error) {
	rows, err := s.db.db.Query(`SELECT ` + proxyColumns + ` FROM proxies ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxies: %w", err)
	}
	defer rows.Close()

	return s.scanProxies(rows)
}

// UpdateUsage persists the usage counters of a proxy
func (s *ProxyStore) UpdateUsage(p *models.ProxyResource) error {
	_, err := s.db.db.Exec(`
		UPDATE proxies
		SET usage_count = ?, total_assignments = ?, last_used_at = ?, updated_at = ?
		WHERE id = ?
	`, p.UsageCount, p.TotalAssignments, nullTime(p.LastUsedAt), utc(time.Now()), p.ID)

	if err != nil {
		return fmt.Errorf("failed to update proxy usage: %w", err)
	}

	return nil
}

// UpdateHealth persists the issue history and status of a proxy
func (s *ProxyStore) UpdateHealth(p *models.ProxyResource) error {
	issues, err := toJSON(p.Issues)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		UPDATE proxies SET status = ?, issue_count = ?, issues = ?, updated_at = ? WHERE id = ?
	`, p.Status, p.IssueCount, issues, utc(time.Now()), p.ID)

	if err != nil {
		return fmt.Errorf("failed to update proxy health: %w", err)
	}

	return nil
}

func (s *ProxyStore) scanProxies(rows *sql.Rows) ([]*models.ProxyResource, error) {
	var proxies []*models.ProxyResource

	for rows.Next() {
		p := &models.ProxyResource{}
		var issues string
		var lastUsed sql.NullTime

		err := rows.Scan(
			&p.ID, &p.Host, &p.Port, &p.Protocol, &p.Username, &p.Password, &p.Region, &p.Status,
			&p.IssueCount, &issues, &p.UsageCount, &p.TotalAssignments, &lastUsed, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proxy: %w", err)
		}
		if err := fromJSON(issues, &p.Issues); err != nil {
			return nil, err
		}
		p.LastUsedAt = timePtr(lastUsed)
		proxies = append(proxies, p)
	}

	return proxies, rows.Err()
}

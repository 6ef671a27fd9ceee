// Package proxy assigns egress proxies to accounts.
//
// Assignment is sticky per account, and new assignments go to the least used
// selectable proxy of the requested region. Proxies that collect too many
// reported issues are marked problematic and stop being handed out.
package proxy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
)

// ErrNoProxyAvailable is returned when a region has no selectable proxy
var ErrNoProxyAvailable = errors.New("no proxy available in region")

// Store is the persistence the allocator needs
type Store interface {
	ListByRegion(region string) ([]*models.ProxyResource, error)
	Get(id string) (*models.ProxyResource, error)
	UpdateUsage(p *models.ProxyResource) error
	UpdateHealth(p *models.ProxyResource) error
}

// Allocator hands out proxies to accounts
type Allocator struct {
	logger zerolog.Logger
	store  Store
	cfg    config.ProxyConfig

	mu          sync.Mutex
	regions     map[string][]*models.ProxyResource
	assignments map[string]*models.ProxyResource
	now         func() time.Time
}

// NewAllocator creates an allocator backed by the given store
func NewAllocator(store Store, cfg config.ProxyConfig, logger zerolog.Logger) *Allocator {
	return &Allocator{
		logger:      logger.With().Str("module", "proxy").Logger(),
		store:       store,
		cfg:         cfg,
		regions:     make(map[string][]*models.ProxyResource),
		assignments: make(map[string]*models.ProxyResource),
		now:         time.Now,
	}
}

// Bypass reports whether the allocator runs without proxies
func (a *Allocator) Bypass() bool {
	return a.cfg.Bypass
}

// GetProxyForAccount returns the account's proxy, assigning the least used one
// in the region when the account has none. In bypass mode it returns nil.
func (a *Allocator) GetProxyForAccount(accountID, region string) (*models.ProxyResource, error) {
	if a.cfg.Bypass {
		return nil, nil
	}
	if region == "" {
		region = a.cfg.DefaultRegion
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.assignments[accountID]; ok {
		return clone(p), nil
	}

	candidates, err := a.regionLocked(region)
	if err != nil {
		return nil, err
	}

	var best *models.ProxyResource
	for _, p := range candidates {
		if !p.Status.Selectable() {
			continue
		}
		if best == nil || p.UsageCount < best.UsageCount {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoProxyAvailable, region)
	}

	now := a.now()
	best.UsageCount++
	best.TotalAssignments++
	best.LastUsedAt = &now
	a.assignments[accountID] = best

	if err := a.store.UpdateUsage(best); err != nil {
		a.logger.Warn().Err(err).Str("proxyId", best.ID).Msg("Failed to persist proxy usage")
	}

	a.logger.Info().
		Str("accountId", accountID).
		Str("proxyId", best.ID).
		Str("region", region).
		Int("usage", best.UsageCount).
		Msg("Proxy assigned")

	return clone(best), nil
}

// ReleaseProxyForAccount drops the account's assignment and decrements usage
func (a *Allocator) ReleaseProxyForAccount(accountID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.assignments[accountID]
	if !ok {
		return
	}
	delete(a.assignments, accountID)

	if p.UsageCount > 0 {
		p.UsageCount--
	}
	if err := a.store.UpdateUsage(p); err != nil {
		a.logger.Warn().Err(err).Str("proxyId", p.ID).Msg("Failed to persist proxy usage")
	}

	a.logger.Debug().Str("accountId", accountID).Str("proxyId", p.ID).Msg("Proxy released")
}

// ReportProxyIssue records a problem with a proxy. Once the issue count reaches
// the configured threshold the proxy is marked problematic, removed from the
// region cache and unassigned from every account. The result reports whether
// the proxy is problematic, so callers stop egressing through it.
func (a *Allocator) ReportProxyIssue(proxyID, description string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.cachedLocked(proxyID)
	if p == nil {
		stored, err := a.store.Get(proxyID)
		if err != nil {
			return false, err
		}
		if stored == nil {
			return false, fmt.Errorf("proxy %s not found", proxyID)
		}
		p = stored
	}

	p.Issues = append(p.Issues, models.ProxyIssue{Description: description, ReportedAt: a.now()})
	p.IssueCount++

	log := a.logger.Warn().
		Str("proxyId", p.ID).
		Int("issueCount", p.IssueCount).
		Str("issue", description)

	if p.IssueCount >= a.cfg.IssueThreshold && p.Status != models.ProxyProblematic {
		p.Status = models.ProxyProblematic
		a.evictLocked(p)
		log.Msg("Proxy marked problematic")
	} else {
		log.Msg("Proxy issue reported")
	}

	return p.Status == models.ProxyProblematic, a.store.UpdateHealth(p)
}

// Assigned returns the proxy currently assigned to the account, if any
func (a *Allocator) Assigned(accountID string) *models.ProxyResource {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.assignments[accountID]; ok {
		return clone(p)
	}
	return nil
}

// Snapshot returns the cached proxies of every loaded region
func (a *Allocator) Snapshot() []models.ProxyResource {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []models.ProxyResource
	for _, list := range a.regions {
		for _, p := range list {
			out = append(out, *clone(p))
		}
	}
	return out
}

// regionLocked loads the region's selectable proxies on first use
func (a *Allocator) regionLocked(region string) ([]*models.ProxyResource, error) {
	if list, ok := a.regions[region]; ok {
		return list, nil
	}

	all, err := a.store.ListByRegion(region)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxies: %w", err)
	}

	list := make([]*models.ProxyResource, 0, len(all))
	for _, p := range all {
		if p.Status.Selectable() {
			list = append(list, p)
		}
	}
	a.regions[region] = list

	a.logger.Debug().Str("region", region).Int("proxies", len(list)).Msg("Region loaded")

	return list, nil
}

func (a *Allocator) cachedLocked(id string) *models.ProxyResource {
	for _, list := range a.regions {
		for _, p := range list {
			if p.ID == id {
				return p
			}
		}
	}
	return nil
}

func (a *Allocator) evictLocked(p *models.ProxyResource) {
	list := a.regions[p.Region]
	for i, cached := range list {
		if cached.ID == p.ID {
			a.regions[p.Region] = append(list[:i:i], list[i+1:]...)
			break
		}
	}

	for accountID, assigned := range a.assignments {
		if assigned.ID == p.ID {
			delete(a.assignments, accountID)
		}
	}
}

func clone(p *models.ProxyResource) *models.ProxyResource {
	c := *p
	c.Issues = append([]models.ProxyIssue(nil), p.Issues...)
	return &c
}

package proxy

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	proxies []*models.ProxyResource
	health  map[string]models.ProxyStatus
	usage   map[string]int
}

func newMemStore(proxies ...*models.ProxyResource) *memStore {
	return &memStore{proxies: proxies, health: map[string]models.ProxyStatus{}, usage: map[string]int{}}
}

func (s *memStore) ListByRegion(region string) ([]*models.ProxyResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ProxyResource
	for _, p := range s.proxies {
		if p.Region == region {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) Get(id string) (*models.ProxyResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proxies {
		if p.ID == id {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpdateUsage(p *models.ProxyResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[p.ID] = p.UsageCount
	return nil
}

func (s *memStore) UpdateHealth(p *models.ProxyResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[p.ID] = p.Status
	return nil
}

func proxyAt(id, region string, status models.ProxyStatus) *models.ProxyResource {
	return &models.ProxyResource{ID: id, Host: "10.0.0.1", Port: 3128, Protocol: "http", Region: region, Status: status}
}

func newTestAllocator(store Store) *Allocator {
	cfg := config.Default().Proxy
	return NewAllocator(store, cfg, zerolog.Nop())
}

func TestAssignsLeastUsedWithEncounterOrderTies(t *testing.T) {
	store := newMemStore(
		proxyAt("p1", "us", models.ProxyActive),
		proxyAt("p2", "us", models.ProxyTesting),
		proxyAt("p3", "us", models.ProxyInactive),
		proxyAt("p4", "eu", models.ProxyActive),
	)
	a := newTestAllocator(store)

	got := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		p, err := a.GetProxyForAccount(fmt.Sprintf("acc%d", i), "us")
		require.NoError(t, err)
		got = append(got, p.ID)
	}

	assert.Equal(t, []string{"p1", "p2", "p1", "p2"}, got)
	assert.Equal(t, 2, store.usage["p1"])
}

func TestSelectionNeverExceedsOtherUsage(t *testing.T) {
	store := newMemStore(
		proxyAt("p1", "us", models.ProxyActive),
		proxyAt("p2", "us", models.ProxyActive),
		proxyAt("p3", "us", models.ProxyActive),
	)
	a := newTestAllocator(store)

	for i := 0; i < 20; i++ {
		before := map[string]int{}
		for _, p := range a.Snapshot() {
			before[p.ID] = p.UsageCount
		}

		p, err := a.GetProxyForAccount(fmt.Sprintf("acc%d", i), "us")
		require.NoError(t, err)

		for id, n := range before {
			assert.LessOrEqual(t, before[p.ID], n, "picked %s over %s", p.ID, id)
		}
		if i%3 == 0 {
			a.ReleaseProxyForAccount(fmt.Sprintf("acc%d", i))
		}
	}
}

func TestAssignmentIsSticky(t *testing.T) {
	store := newMemStore(proxyAt("p1", "us", models.ProxyActive), proxyAt("p2", "us", models.ProxyActive))
	a := newTestAllocator(store)

	first, err := a.GetProxyForAccount("acc", "us")
	require.NoError(t, err)
	again, err := a.GetProxyForAccount("acc", "us")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, again.UsageCount)

	a.ReleaseProxyForAccount("acc")
	assert.Nil(t, a.Assigned("acc"))
	assert.Equal(t, 0, store.usage[first.ID])
}

func TestDefaultRegionAndEmptyRegion(t *testing.T) {
	store := newMemStore(proxyAt("p1", "us", models.ProxyActive))
	a := newTestAllocator(store)

	p, err := a.GetProxyForAccount("acc", "")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	_, err = a.GetProxyForAccount("other", "apac")
	assert.ErrorIs(t, err, ErrNoProxyAvailable)
}

func TestIssuesBlacklistAfterThreshold(t *testing.T) {
	store := newMemStore(proxyAt("p1", "us", models.ProxyActive), proxyAt("p2", "us", models.ProxyActive))
	a := newTestAllocator(store)

	p, err := a.GetProxyForAccount("acc", "us")
	require.NoError(t, err)
	require.Equal(t, "p1", p.ID)

	for i := 0; i < 4; i++ {
		blacklisted, err := a.ReportProxyIssue("p1", "tunnel failed")
		require.NoError(t, err)
		assert.False(t, blacklisted)
	}
	assert.Equal(t, models.ProxyActive, store.health["p1"])
	assert.NotNil(t, a.Assigned("acc"))

	blacklisted, err := a.ReportProxyIssue("p1", "tunnel failed")
	require.NoError(t, err)
	assert.True(t, blacklisted)
	assert.Equal(t, models.ProxyProblematic, store.health["p1"])
	assert.Nil(t, a.Assigned("acc"), "assignment to a problematic proxy is dropped")

	for i := 0; i < 3; i++ {
		p, err := a.GetProxyForAccount(fmt.Sprintf("acc%d", i), "us")
		require.NoError(t, err)
		assert.Equal(t, "p2", p.ID)
	}
}

func TestReportIssueForUncachedProxy(t *testing.T) {
	store := newMemStore(proxyAt("p9", "eu", models.ProxyActive))
	a := newTestAllocator(store)

	blacklisted, err := a.ReportProxyIssue("p9", "slow")
	require.NoError(t, err)
	assert.False(t, blacklisted)

	_, err = a.ReportProxyIssue("missing", "slow")
	assert.Error(t, err)
}

func TestBypassReturnsNil(t *testing.T) {
	cfg := config.Default().Proxy
	cfg.Bypass = true
	a := NewAllocator(newMemStore(proxyAt("p1", "us", models.ProxyActive)), cfg, zerolog.Nop())

	p, err := a.GetProxyForAccount("acc", "us")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.True(t, a.Bypass())
}

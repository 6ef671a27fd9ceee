package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/workerpool"
)

type fakeStatus struct {
	st  actions.Status
	err error
}

func (f fakeStatus) Status() (actions.Status, error) { return f.st, f.err }

type fakeProxies []models.ProxyResource

func (f fakeProxies) Snapshot() []models.ProxyResource { return f }

type fakeCampaigns map[string]*models.Campaign

func (f fakeCampaigns) Get(id string) (*models.Campaign, error) { return f[id], nil }

type fakeStats map[string]*models.StatsSnapshot

func (f fakeStats) Latest(id string) (*models.StatsSnapshot, error) { return f[id], nil }

func newServer(t *testing.T, status StatusSource) *Server {
	t.Helper()

	taken := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	return New(Deps{
		Status:  status,
		Proxies: fakeProxies{{ID: "p1", Host: "10.0.0.1", Port: 8080, Region: "us", Status: models.ProxyActive, UsageCount: 2}},
		Campaigns: fakeCampaigns{
			"c1": {ID: "c1", Name: "Founders", Status: models.CampaignRunning},
			"c2": {ID: "c2", Name: "Fresh", Status: models.CampaignDraft},
		},
		Stats: fakeStats{
			"c1": {
				CampaignID: "c1",
				Actions: map[models.ActionType]map[models.ActionStatus]int{
					models.ActionInviteSent: {models.ActionCompleted: 3, models.ActionFailed: 1},
				},
				LeadStatuses: map[models.LeadStatus]int{models.LeadInviteSent: 3},
				TakenAt:      taken,
			},
		},
	}, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	s := newServer(t, fakeStatus{})

	var body map[string]any
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	s := newServer(t, fakeStatus{st: actions.Status{
		Workers:        workerpool.Stats{Workers: 2, Busy: 1, MaxWorkers: 5, Accounts: []string{"a1", "a2"}},
		PendingActions: 7,
		InFlight:       1,
		QueueDepth:     map[string]int{actions.TopicActions: 3, actions.TopicResults: 0},
	}})

	var body StatusResponse
	require.Equal(t, http.StatusOK, get(t, s, "/status", &body))

	assert.Equal(t, 2, body.Workers.Workers)
	assert.Equal(t, 5, body.Workers.MaxWorkers)
	assert.Equal(t, 7, body.PendingActions)
	assert.Equal(t, 1, body.InFlight)
	assert.Equal(t, 3, body.QueueDepth[actions.TopicActions])
	require.Len(t, body.Proxies, 1)
	assert.Equal(t, "p1", body.Proxies[0].ID)
	assert.Equal(t, 2, body.Proxies[0].UsageCount)
}

func TestStatusErrorHidesDetails(t *testing.T) {
	s := newServer(t, fakeStatus{err: errors.New("database is locked")})

	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/status", &body))
	assert.Equal(t, "Internal server error", body["error"])
}

func TestCampaignStats(t *testing.T) {
	s := newServer(t, fakeStatus{})

	var body CampaignStatsResponse
	require.Equal(t, http.StatusOK, get(t, s, "/campaigns/c1/stats", &body))
	require.NotNil(t, body.Campaign)
	assert.Equal(t, "Founders", body.Campaign.Name)
	require.NotNil(t, body.Snapshot)
	assert.Equal(t, 3, body.Snapshot.Actions[models.ActionInviteSent][models.ActionCompleted])
	assert.Equal(t, 1, body.Snapshot.Actions[models.ActionInviteSent][models.ActionFailed])

	body = CampaignStatsResponse{}
	require.Equal(t, http.StatusOK, get(t, s, "/campaigns/c2/stats", &body))
	assert.Equal(t, models.CampaignDraft, body.Campaign.Status)
	assert.Nil(t, body.Snapshot)

	var notFound map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, s, "/campaigns/missing/stats", &notFound))
	assert.Equal(t, "Campaign not found", notFound["error"])
}

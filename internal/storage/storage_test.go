package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedCampaign(t *testing.T, db *Database, leads ...string) *models.Campaign {
	t.Helper()
	c := &models.Campaign{ID: "c1", SequenceID: "s1", AccountID: "acc1", LeadListIDs: []string{"list1"}}
	require.NoError(t, NewCampaignStore(db).Save(c))
	for _, id := range leads {
		require.NoError(t, NewLeadStore(db).Save(&models.Lead{
			ID: id, ListID: "list1", CampaignID: "c1", ProfileURL: "https://example.com/in/" + id,
		}))
	}
	return c
}

func newAction(id, lead string, at time.Time) *models.CampaignAction {
	return &models.CampaignAction{
		ID:           id,
		CampaignID:   "c1",
		LeadID:       lead,
		AccountID:    "acc1",
		Type:         models.ActionMessageSent,
		ScheduledFor: at,
		NodeID:       "n1",
		Payload:      models.MessagePayload{Message: "hello " + lead},
	}
}

func TestActionStoreGetDueOrdersByScheduledFor(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db, "l1", "l2", "l3", "l4")
	store := NewActionStore(db)
	now := time.Now()

	require.NoError(t, store.Create(newAction("a1", "l1", now.Add(-time.Minute))))
	require.NoError(t, store.Create(newAction("a2", "l2", now.Add(-time.Hour))))
	require.NoError(t, store.Create(newAction("a3", "l3", now.Add(time.Hour))))
	require.NoError(t, store.Create(newAction("a4", "l4", now.Add(-30*time.Minute))))

	due, err := store.GetDue(now, 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, a := range due {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a2", "a4", "a1"}, ids)

	limited, err := store.GetDue(now, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, models.MessagePayload{Message: "hello l2"}, limited[0].Payload)
}

func TestActionStoreRejectsSecondPendingForLead(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db, "l1")
	store := NewActionStore(db)
	now := time.Now()

	require.NoError(t, store.Create(newAction("a1", "l1", now)))
	err := store.Create(newAction("a2", "l1", now))
	assert.ErrorIs(t, err, ErrPendingExists)

	ok, err := store.Complete("a1", now, "sent")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Create(newAction("a2", "l1", now)))
}

func TestActionStoreTerminalStatesAreFinal(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db, "l1")
	store := NewActionStore(db)
	now := time.Now()

	require.NoError(t, store.Create(newAction("a1", "l1", now)))

	ok, err := store.Fail("a1", 4, "boom", "transient")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Reschedule("a1", now.Add(time.Hour), 5, "again", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Complete("a1", now, "late")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, got.Status)
	assert.Equal(t, 4, got.RetryCount)
	assert.Equal(t, "boom", got.LastError)
}

func TestActionStoreResetFailed(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db, "l1", "l2", "l3")
	store := NewActionStore(db)
	now := time.Now()

	// l1: two failures, only the latest is reset
	require.NoError(t, store.Create(newAction("a1", "l1", now)))
	_, err := store.Fail("a1", 4, "old", "transient")
	require.NoError(t, err)
	require.NoError(t, store.Create(newAction("a2", "l1", now)))
	_, err = store.Fail("a2", 4, "new", "transient")
	require.NoError(t, err)

	// l2: already has a pending action after its failure
	require.NoError(t, store.Create(newAction("a3", "l2", now)))
	_, err = store.Fail("a3", 1, "x", "session_invalid")
	require.NoError(t, err)
	require.NoError(t, store.Create(newAction("a4", "l2", now)))

	// l3: failed for a different class
	require.NoError(t, store.Create(newAction("a5", "l3", now)))
	_, err = store.Fail("a5", 0, "campaign not running", "campaign_not_running")
	require.NoError(t, err)

	later := now.Add(time.Minute)
	leads, err := store.ResetFailed("c1", later, "transient")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, leads)

	a2, err := store.Get("a2")
	require.NoError(t, err)
	assert.Equal(t, models.ActionPending, a2.Status)
	assert.Equal(t, 0, a2.RetryCount)
	assert.WithinDuration(t, later, a2.ScheduledFor, time.Second)

	a1, err := store.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, a1.Status)

	leads, err = store.ResetFailed("c1", later, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"l3"}, leads)
}

func TestActionStoreAggregates(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db, "l1", "l2", "l3")
	store := NewActionStore(db)
	now := time.Now()

	invite := newAction("a1", "l1", now)
	invite.Type = models.ActionInviteSent
	invite.Payload = models.InvitePayload{Note: "hi"}
	require.NoError(t, store.Create(invite))
	_, err := store.Complete("a1", now, "ok")
	require.NoError(t, err)

	require.NoError(t, store.Create(newAction("a2", "l2", now)))
	_, err = store.Fail("a2", 4, "boom", "transient")
	require.NoError(t, err)

	require.NoError(t, store.Create(newAction("a3", "l3", now)))

	counts, err := store.CountByTypeAndStatus("c1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.ActionInviteSent][models.ActionCompleted])
	assert.Equal(t, 1, counts[models.ActionMessageSent][models.ActionFailed])
	assert.Equal(t, 1, counts[models.ActionMessageSent][models.ActionPending])

	completed, failed, err := store.Outcomes("c1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)

	pending, err := store.CountPending("")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	sent, err := store.CountCompletedSince("c1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestCampaignTransitionRespectsSourceStatus(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db)
	store := NewCampaignStore(db)
	now := time.Now()

	ok, err := store.Transition("c1", models.CampaignPaused, "", now, models.CampaignRunning)
	require.NoError(t, err)
	assert.False(t, ok, "draft campaign cannot be paused")

	ok, err = store.Transition("c1", models.CampaignRunning, "", now, models.CampaignDraft, models.CampaignStopped)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Transition("c1", models.CampaignPaused, "failure rate 60%", now, models.CampaignRunning)
	require.NoError(t, err)
	require.True(t, ok)

	c, err := store.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, c.Status)
	assert.Equal(t, "failure rate 60%", c.PauseReason)
	assert.NotNil(t, c.StartedAt)
	assert.NotNil(t, c.PausedAt)
	assert.Equal(t, []string{"list1"}, c.LeadListIDs)

	running, err := store.ListByStatus(models.CampaignRunning)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestLeadStoreEnrollmentQueries(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db)
	leads := NewLeadStore(db)
	actions := NewActionStore(db)
	now := time.Now()

	for _, id := range []string{"l1", "l2", "l3", "l4"} {
		require.NoError(t, leads.Save(&models.Lead{ID: id, ListID: "list1", ProfileURL: "https://example.com/in/" + id}))
	}
	require.NoError(t, leads.Save(&models.Lead{ID: "other", ListID: "list2", ProfileURL: "https://example.com/in/other"}))

	n, err := leads.AttachLists("c1", []string{"list1"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	// l2 already started
	require.NoError(t, actions.Create(newAction("a1", "l2", now)))

	// l3 invited four days ago, l4 invited yesterday
	old := now.Add(-96 * time.Hour)
	recent := now.Add(-24 * time.Hour)
	l3, err := leads.Get("l3")
	require.NoError(t, err)
	l3.Status = models.LeadInviteSent
	l3.LastActionAt = &old
	require.NoError(t, leads.UpdateProgress(l3))
	l4, err := leads.Get("l4")
	require.NoError(t, err)
	l4.Status = models.LeadInviteSent
	l4.LastActionAt = &recent
	require.NoError(t, leads.UpdateProgress(l4))

	unstarted, err := leads.ListUnstarted("c1")
	require.NoError(t, err)
	require.Len(t, unstarted, 1)
	assert.Equal(t, "l1", unstarted[0].ID)

	stalled, err := leads.ListStalled("c1", now.Add(-72*time.Hour), now.Add(-120*time.Hour))
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "l3", stalled[0].ID)

	active, err := leads.CountActive("c1")
	require.NoError(t, err)
	assert.Equal(t, 4, active)

	byStatus, err := leads.CountByStatus("c1")
	require.NoError(t, err)
	assert.Equal(t, 2, byStatus[models.LeadNew])
	assert.Equal(t, 2, byStatus[models.LeadInviteSent])
}

func TestProxyStoreKeepsInsertionOrder(t *testing.T) {
	db := setupTestDB(t)
	store := NewProxyStore(db)

	for _, id := range []string{"p2", "p1", "p3"} {
		require.NoError(t, store.Save(&models.ProxyResource{ID: id, Host: "10.0.0.1", Port: 8080, Protocol: "http", Region: "us"}))
	}
	require.NoError(t, store.Save(&models.ProxyResource{ID: "p4", Host: "10.0.0.2", Port: 8080, Protocol: "http", Region: "eu"}))

	us, err := store.ListByRegion("us")
	require.NoError(t, err)
	require.Len(t, us, 3)
	assert.Equal(t, "p2", us[0].ID)
	assert.Equal(t, "p1", us[1].ID)
	assert.Equal(t, models.ProxyActive, us[0].Status)

	p := us[0]
	p.IssueCount = 5
	p.Status = models.ProxyProblematic
	p.Issues = []models.ProxyIssue{{Description: "tunnel failed", ReportedAt: time.Now()}}
	require.NoError(t, store.UpdateHealth(p))

	got, err := store.Get("p2")
	require.NoError(t, err)
	assert.Equal(t, models.ProxyProblematic, got.Status)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "tunnel failed", got.Issues[0].Description)
}

func TestStatsStoreLatest(t *testing.T) {
	db := setupTestDB(t)
	seedCampaign(t, db)
	store := NewStatsStore(db)
	now := time.Now()

	none, err := store.Latest("c1")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, store.Save(&models.StatsSnapshot{CampaignID: "c1", TakenAt: now.Add(-time.Hour),
		LeadStatuses: map[models.LeadStatus]int{models.LeadNew: 3}}))
	require.NoError(t, store.Save(&models.StatsSnapshot{CampaignID: "c1", TakenAt: now,
		LeadStatuses: map[models.LeadStatus]int{models.LeadNew: 1}}))

	snap, err := store.Latest("c1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.LeadStatuses[models.LeadNew])
}

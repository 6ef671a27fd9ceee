package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/config"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (r *recorder) Notify(_ context.Context, ev Event) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, b}.Notify(context.Background(), Event{Kind: CampaignPaused})

	assert.Equal(t, []Kind{CampaignPaused}, a.kinds())
	assert.Equal(t, []Kind{CampaignPaused}, b.kinds())
}

func TestAsyncDeliversInOrderAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	async := NewAsync(rec, 8, zerolog.Nop())

	async.Notify(context.Background(), Event{Kind: ActionCompleted})
	async.Notify(context.Background(), Event{Kind: LeadCompleted})
	async.Notify(context.Background(), Event{Kind: CampaignCompleted})
	async.Close()

	assert.Equal(t, []Kind{ActionCompleted, LeadCompleted, CampaignCompleted}, rec.kinds())
	for _, ev := range rec.events {
		assert.False(t, ev.At.IsZero())
	}

	async.Notify(context.Background(), Event{Kind: ActionFailed})
	assert.Len(t, rec.kinds(), 3, "events after close are ignored")
	async.Close()
}

func TestAsyncDropsWhenFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	async := NewAsync(rec, 1, zerolog.Nop())

	for i := 0; i < 5; i++ {
		async.Notify(context.Background(), Event{Kind: ActionCompleted})
	}
	assert.GreaterOrEqual(t, async.Dropped(), 3)

	close(rec.block)
	async.Close()
	assert.Equal(t, 5, len(rec.kinds())+async.Dropped())
}

func TestAlertingKinds(t *testing.T) {
	assert.True(t, CampaignPaused.Alerting())
	assert.True(t, SessionInvalid.Alerting())
	assert.True(t, ActionFailed.Alerting())
	assert.False(t, ActionCompleted.Alerting())
	assert.False(t, CampaignCompleted.Alerting())
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := newRedisSink(pub, "outreach-events", zerolog.Nop())

	sink.Notify(context.Background(), Event{Kind: CampaignPaused, CampaignID: "c1", Reason: "failure rate 60%"})

	assert.Equal(t, "outreach-events", pub.channel)
	var got Event
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, CampaignPaused, got.Kind)
	assert.Equal(t, "c1", got.CampaignID)
	assert.Equal(t, "failure rate 60%", got.Reason)
	assert.NoError(t, sink.Close())
}

func TestRedisSinkSwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	sink := newRedisSink(pub, "events", zerolog.Nop())

	assert.NotPanics(t, func() {
		sink.Notify(context.Background(), Event{Kind: ActionFailed})
	})
}

func TestSentrySinkWithoutDSN(t *testing.T) {
	client, err := sentry.NewClient(sentry.ClientOptions{})
	require.NoError(t, err)
	sink := newSentrySink(sentry.NewHub(client, sentry.NewScope()), zerolog.Nop())

	assert.NotPanics(t, func() {
		sink.Notify(context.Background(), Event{Kind: CampaignPaused, CampaignID: "c1", Reason: "too many failures"})
		sink.Notify(context.Background(), Event{Kind: ActionCompleted, ActionID: "a1", Data: map[string]any{"type": "invite_sent"}})
		sink.Close()
	})
}

func TestMessageIncludesReason(t *testing.T) {
	assert.Equal(t, "campaign.paused: too many failures", message(Event{Kind: CampaignPaused, Reason: "too many failures"}))
	assert.Equal(t, "account.session_invalid", message(Event{Kind: SessionInvalid}))
}

func TestBuildWithLogSinkOnly(t *testing.T) {
	sink, closeFn, err := Build(config.NotifyConfig{Buffer: 4}, zerolog.Nop())
	require.NoError(t, err)
	sink.Notify(context.Background(), Event{Kind: CampaignStarted, CampaignID: "c1"})
	closeFn()
}

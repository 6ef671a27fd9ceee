package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(t *testing.T) (*Limiter, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	l := New(FromConfig(config.Default().Limits), zerolog.Nop())
	l.SetClock(c.now)
	return l, c
}

func TestCheckLimitAtDailyInviteLimit(t *testing.T) {
	l, _ := newLimiter(t)

	for i := 0; i < 100; i++ {
		require.True(t, l.CheckLimit("acc", models.MethodSendConnectionRequest), "invite %d", i)
		l.RecordUsage("acc", models.MethodSendConnectionRequest)
	}

	assert.False(t, l.CheckLimit("acc", models.MethodSendConnectionRequest))
	assert.True(t, l.CheckLimit("acc", models.MethodViewProfile))
	assert.True(t, l.CheckLimit("other", models.MethodSendConnectionRequest))
}

func TestCheckLimitTotalAcrossMethods(t *testing.T) {
	l, _ := newLimiter(t)

	methods := []models.Method{
		models.MethodSendConnectionRequest,
		models.MethodSendMessage,
		models.MethodFollowProfile,
		models.MethodLikePost,
		models.MethodViewProfile,
	}
	for _, m := range methods {
		for i := 0; i < 100; i++ {
			l.RecordUsage("acc", m)
		}
	}

	u := l.Usage("acc")
	assert.Equal(t, 500, u.Total)
	assert.False(t, l.CheckLimit("acc", models.MethodViewProfile), "views under their own limit but total reached")
}

func TestRecordNeverExceedsObservedLimit(t *testing.T) {
	l, _ := newLimiter(t)

	allowed := 0
	for i := 0; i < 300; i++ {
		if !l.CheckLimit("acc", models.MethodViewProfile) {
			continue
		}
		l.RecordUsage("acc", models.MethodViewProfile)
		allowed++
	}

	assert.Equal(t, 250, allowed)
	method, total := l.Remaining("acc", models.MethodViewProfile)
	assert.Equal(t, 0, method)
	assert.Equal(t, 250, total)
}

func TestCountersResetAfterWindow(t *testing.T) {
	l, c := newLimiter(t)

	for i := 0; i < 100; i++ {
		l.RecordUsage("acc", models.MethodSendMessage)
	}
	require.False(t, l.CheckLimit("acc", models.MethodSendMessage))

	c.t = c.t.Add(Window)
	assert.False(t, l.CheckLimit("acc", models.MethodSendMessage), "exactly 24h is still inside the window")

	c.t = c.t.Add(time.Second)
	assert.True(t, l.CheckLimit("acc", models.MethodSendMessage))
	assert.Equal(t, 0, l.Usage("acc").Total)
}

func TestAccountOverrides(t *testing.T) {
	l, _ := newLimiter(t)
	l.SetAccountLimits("small", models.AccountLimits{Invites: 2, Total: 3})

	l.RecordUsage("small", models.MethodSendConnectionRequest)
	l.RecordUsage("small", models.MethodSendConnectionRequest)
	assert.False(t, l.CheckLimit("small", models.MethodSendConnectionRequest))
	assert.True(t, l.CheckLimit("small", models.MethodSendMessage))

	l.RecordUsage("small", models.MethodSendMessage)
	assert.False(t, l.CheckLimit("small", models.MethodSendMessage))

	// messages keep the configured default
	_, total := l.Remaining("small", models.MethodSendMessage)
	assert.Equal(t, 0, total)
}

package stealth

import (
	"context"
	"math/rand"
	"testing"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/config"
)

func testHumanizer() *Humanizer {
	return New(config.Default().Schedule, rand.New(rand.NewSource(7)), zerolog.Nop())
}

func TestWindowAllows(t *testing.T) {
	w := Window{Enabled: true, StartHour: 9, EndHour: 18}
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before start", monday.Add(8*time.Hour + 59*time.Minute), false},
		{"at start", monday.Add(9 * time.Hour), true},
		{"afternoon", monday.Add(15 * time.Hour), true},
		{"at end", monday.Add(18 * time.Hour), false},
		{"saturday", monday.AddDate(0, 0, 5).Add(10 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Allows(tt.at))
		})
	}

	w.Weekends = true
	assert.True(t, w.Allows(monday.AddDate(0, 0, 5).Add(10*time.Hour)))

	assert.True(t, Window{}.Allows(monday.Add(3*time.Hour)))
}

func TestWindowNext(t *testing.T) {
	w := Window{Enabled: true, StartHour: 9, EndHour: 18}
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	friday := monday.AddDate(0, 0, 4)

	inside := monday.Add(10 * time.Hour)
	assert.Equal(t, inside, w.Next(inside))

	assert.Equal(t, monday.Add(9*time.Hour), w.Next(monday.Add(6*time.Hour)))
	assert.Equal(t, monday.AddDate(0, 0, 1).Add(9*time.Hour), w.Next(monday.Add(20*time.Hour)))
	assert.Equal(t, monday.AddDate(0, 0, 7).Add(9*time.Hour), w.Next(friday.Add(19*time.Hour)))
}

func TestWindowFromConfig(t *testing.T) {
	cfg := config.Default().Schedule
	w := WindowFromConfig(cfg)
	assert.Equal(t, cfg.BusinessHoursOnly, w.Enabled)
	assert.Equal(t, cfg.WorkStartHour, w.StartHour)
	assert.Equal(t, cfg.WorkEndHour, w.EndHour)
}

func TestStepDurationWithinBounds(t *testing.T) {
	h := testHumanizer()
	cfg := config.Default().Schedule
	lo := time.Duration(cfg.MinStepDelayMs) * time.Millisecond
	hi := time.Duration(cfg.MaxStepDelayMs) * time.Millisecond

	for i := 0; i < 200; i++ {
		d := h.Timing().StepDuration()
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
}

func TestJitter(t *testing.T) {
	h := testHumanizer()
	for i := 0; i < 100; i++ {
		d := h.Timing().Jitter(time.Second, 0.25)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestNearbyKey(t *testing.T) {
	h := testHumanizer()
	for i := 0; i < 50; i++ {
		k := h.Typing().nearbyKey('s')
		assert.Contains(t, neighbors['s'], k)

		upper := h.Typing().nearbyKey('S')
		assert.True(t, unicode.IsUpper(upper) || !unicode.IsLetter(upper))
	}
	assert.Equal(t, '!', h.Typing().nearbyKey('!'))
}

func TestKeystrokeDelay(t *testing.T) {
	h := testHumanizer()
	cfg := config.Default().Schedule
	text := []rune("Hi there. Thanks")

	for i := range text {
		d := h.Typing().keystrokeDelay(text, i)
		assert.GreaterOrEqual(t, d, time.Duration(cfg.MinTypingDelayMs*6/10)*time.Millisecond)
		assert.LessOrEqual(t, d, time.Duration(cfg.MaxTypingDelayMs*3)*time.Millisecond)
	}
}

func TestMousePathEndpoints(t *testing.T) {
	h := testHumanizer()
	start, end := Point{X: 10, Y: 10}, Point{X: 610, Y: 410}

	path := h.Mouse().path(start, end)
	require.GreaterOrEqual(t, len(path), 20)
	assert.InDelta(t, start.X, path[0].X, 1e-9)
	assert.InDelta(t, start.Y, path[0].Y, 1e-9)
	assert.InDelta(t, end.X, path[len(path)-1].X, 1e-9)
	assert.InDelta(t, end.Y, path[len(path)-1].Y, 1e-9)

	assert.Len(t, h.Mouse().path(start, start), 20)
}

func TestSpeedFactorEasesAtEnds(t *testing.T) {
	assert.Less(t, speedFactor(0), speedFactor(0.5))
	assert.Less(t, speedFactor(0.95), speedFactor(0.5))
	assert.Greater(t, speedFactor(0), 0.0)
}

func TestScrollSteps(t *testing.T) {
	h := testHumanizer()

	steps := h.Scroll().steps(0, 1000)
	require.Len(t, steps, 20)
	assert.Equal(t, 1000, steps[len(steps)-1].y)
	for i := 1; i < len(steps); i++ {
		assert.GreaterOrEqual(t, steps[i].y, steps[i-1].y)
	}

	assert.Len(t, h.Scroll().steps(0, 40), 5)
	assert.Len(t, h.Scroll().steps(5000, 0), 30)
	assert.Equal(t, 0, h.Scroll().steps(5000, 0)[29].y)
}

func TestFingerprintJS(t *testing.T) {
	fp := NewFingerprint(rand.New(rand.NewSource(3)))
	js := fp.JS()

	assert.Contains(t, js, fp.Timezone)
	assert.Contains(t, js, "hardwareConcurrency")
	assert.GreaterOrEqual(t, fp.Cores, 4)
	assert.Contains(t, []int{4, 8, 16}, fp.Memory)
}

func TestUserAgent(t *testing.T) {
	assert.Contains(t, userAgents, testHumanizer().UserAgent())
}

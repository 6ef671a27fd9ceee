package stealth

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
)

// Timing produces randomized pauses between UI steps
type Timing struct {
	cfg    config.ScheduleConfig
	rnd    *rand.Rand
	logger zerolog.Logger
}

// NewTiming creates a delay controller
func NewTiming(cfg config.ScheduleConfig, rnd *rand.Rand, logger zerolog.Logger) *Timing {
	return &Timing{
		cfg:    cfg,
		rnd:    rnd,
		logger: logger.With().Str("component", "timing").Logger(),
	}
}

// Sleep waits for d or until ctx ends
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StepDelay pauses between two UI steps within the configured bounds
func (t *Timing) StepDelay(ctx context.Context) error {
	return Sleep(ctx, t.StepDuration())
}

// StepDuration draws a step delay, normally distributed around the middle of the bounds
func (t *Timing) StepDuration() time.Duration {
	lo, hi := float64(t.cfg.MinStepDelayMs), float64(t.cfg.MaxStepDelayMs)
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}

	ms := t.normal((lo+hi)/2, (hi-lo)/4)
	ms = math.Max(lo, math.Min(hi, ms))
	return time.Duration(ms * float64(time.Millisecond))
}

// ThinkDelay simulates reading or deciding, 2 to 5 seconds
func (t *Timing) ThinkDelay(ctx context.Context) error {
	d := 2*time.Second + time.Duration(t.rnd.Int63n(int64(3*time.Second)))
	t.logger.Debug().Dur("delay", d).Msg("Think delay")
	return Sleep(ctx, d)
}

// PageLoadDelay waits after a navigation, 1 to 3 seconds
func (t *Timing) PageLoadDelay(ctx context.Context) error {
	d := time.Second + time.Duration(t.rnd.Int63n(int64(2*time.Second)))
	return Sleep(ctx, d)
}

// ShortDelay is a brief pause of 100 to 500ms
func (t *Timing) ShortDelay(ctx context.Context) error {
	return Sleep(ctx, time.Duration(100+t.rnd.Intn(400))*time.Millisecond)
}

// Jitter returns base varied by up to pct in either direction
func (t *Timing) Jitter(base time.Duration, pct float64) time.Duration {
	d := float64(base) + (t.rnd.Float64()*2-1)*float64(base)*pct
	if d < 0 {
		return base
	}
	return time.Duration(d)
}

// normal draws from a normal distribution with the Box-Muller transform
func (t *Timing) normal(mean, stdDev float64) float64 {
	u1 := t.rnd.Float64()
	for u1 == 0 {
		u1 = t.rnd.Float64()
	}
	u2 := t.rnd.Float64()

	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + z*stdDev
}

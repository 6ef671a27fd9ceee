// Package stealth provides human-like input and timing for browser sessions.
// Delays are randomized, typing and mouse movement follow natural patterns and
// activity is confined to configured working hours.
package stealth

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
)

// Humanizer bundles the stealth techniques for one browser session.
// It is not safe for concurrent use; each session owns its own.
type Humanizer struct {
	cfg    config.ScheduleConfig
	logger zerolog.Logger
	rnd    *rand.Rand

	mouse  *Mouse
	typing *Typist
	scroll *Scroller
	timing *Timing
	hours  Window
}

// New creates a humanizer seeded from rnd
func New(cfg config.ScheduleConfig, rnd *rand.Rand, logger zerolog.Logger) *Humanizer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger = logger.With().Str("module", "stealth").Logger()

	timing := NewTiming(cfg, rnd, logger)
	return &Humanizer{
		cfg:    cfg,
		logger: logger,
		rnd:    rnd,
		mouse:  NewMouse(cfg, rnd, logger),
		typing: NewTypist(cfg, rnd, logger),
		scroll: NewScroller(rnd, timing, logger),
		timing: timing,
		hours:  WindowFromConfig(cfg),
	}
}

// Mouse returns the mouse controller
func (h *Humanizer) Mouse() *Mouse { return h.mouse }

// Typing returns the typing controller
func (h *Humanizer) Typing() *Typist { return h.typing }

// Scroll returns the scroll controller
func (h *Humanizer) Scroll() *Scroller { return h.scroll }

// Timing returns the delay controller
func (h *Humanizer) Timing() *Timing { return h.timing }

// Hours returns the working-hours window
func (h *Humanizer) Hours() Window { return h.hours }

// UserAgent picks a user agent for a new browser
func (h *Humanizer) UserAgent() string {
	return userAgents[h.rnd.Intn(len(userAgents))]
}

// ApplyToPage injects the fingerprint evasions into every document the page loads
func (h *Humanizer) ApplyToPage(page *rod.Page) error {
	return ApplyFingerprint(page, h.rnd, h.logger)
}

// ClickElement scrolls an element into view, moves to it and clicks it
func (h *Humanizer) ClickElement(ctx context.Context, page *rod.Page, el *rod.Element) error {
	if err := h.scroll.ScrollIntoView(ctx, page, el); err != nil {
		h.logger.Debug().Err(err).Msg("Smooth scroll failed, using native scroll")
		if err := el.ScrollIntoView(); err != nil {
			return err
		}
	}
	if err := h.timing.StepDelay(ctx); err != nil {
		return err
	}
	return h.mouse.ClickElement(ctx, page, el)
}

// SimulateReading scrolls a little and pauses as a reader would
func (h *Humanizer) SimulateReading(ctx context.Context, page *rod.Page) error {
	if err := h.scroll.Browse(ctx, page); err != nil {
		h.logger.Debug().Err(err).Msg("Scroll during reading failed")
	}
	return h.timing.ThinkDelay(ctx)
}

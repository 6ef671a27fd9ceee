// Package ratelimit tracks per-account daily usage for each action method.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
)

// Window is the rolling period after which an account's counters reset
const Window = 24 * time.Hour

// Limits defines the daily caps of one account
type Limits struct {
	PerMethod map[models.Method]int
	Total     int
}

// FromConfig builds the default limits from configuration
func FromConfig(cfg config.LimitsConfig) Limits {
	return Limits{
		PerMethod: map[models.Method]int{
			models.MethodSendConnectionRequest: cfg.DailyInvites,
			models.MethodSendMessage:           cfg.DailyMessages,
			models.MethodViewProfile:           cfg.DailyViews,
			models.MethodFollowProfile:         cfg.DailyFollows,
			models.MethodLikePost:              cfg.DailyLikes,
			models.MethodEndorseSkills:         cfg.DailyEndorsements,
			models.MethodSendEmail:             cfg.DailyEmails,
		},
		Total: cfg.DailyTotal,
	}
}

// WithOverrides returns a copy with the account's non-zero limits applied
func (l Limits) WithOverrides(o models.AccountLimits) Limits {
	out := Limits{PerMethod: make(map[models.Method]int, len(l.PerMethod)), Total: l.Total}
	for m, v := range l.PerMethod {
		out.PerMethod[m] = v
	}

	set := func(m models.Method, v int) {
		if v > 0 {
			out.PerMethod[m] = v
		}
	}
	set(models.MethodSendConnectionRequest, o.Invites)
	set(models.MethodSendMessage, o.Messages)
	set(models.MethodViewProfile, o.Views)
	set(models.MethodFollowProfile, o.Follows)
	set(models.MethodLikePost, o.Likes)
	set(models.MethodEndorseSkills, o.Endorsements)
	set(models.MethodSendEmail, o.Emails)
	if o.Total > 0 {
		out.Total = o.Total
	}
	return out
}

// Usage is a snapshot of one account's counters
type Usage struct {
	Counts    map[models.Method]int `json:"counts"`
	Total     int                   `json:"total"`
	LastReset time.Time             `json:"last_reset"`
}

type usage struct {
	counts    map[models.Method]int
	total     int
	lastReset time.Time
}

// Limiter holds in-memory daily counters. State is rebuilt empty on restart.
type Limiter struct {
	logger    zerolog.Logger
	mu        sync.Mutex
	defaults  Limits
	overrides map[string]Limits
	accounts  map[string]*usage
	now       func() time.Time
}

// New creates a limiter with the given default limits
func New(defaults Limits, logger zerolog.Logger) *Limiter {
	return &Limiter{
		logger:    logger.With().Str("module", "ratelimit").Logger(),
		defaults:  defaults,
		overrides: make(map[string]Limits),
		accounts:  make(map[string]*usage),
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// SetAccountLimits installs per-account overrides on top of the defaults
func (l *Limiter) SetAccountLimits(accountID string, o models.AccountLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[accountID] = l.defaults.WithOverrides(o)
}

// CheckLimit reports whether the account may perform one more action of the method
func (l *Limiter) CheckLimit(accountID string, m models.Method) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.usageLocked(accountID)
	limits := l.limitsLocked(accountID)

	if limit, ok := limits.PerMethod[m]; ok && u.counts[m] >= limit {
		l.logger.Debug().
			Str("accountId", accountID).
			Str("method", string(m)).
			Int("count", u.counts[m]).
			Int("limit", limit).
			Msg("Daily limit reached")
		return false
	}

	if u.total >= limits.Total {
		l.logger.Debug().
			Str("accountId", accountID).
			Int("total", u.total).
			Int("limit", limits.Total).
			Msg("Daily total limit reached")
		return false
	}

	return true
}

// RecordUsage counts one dispatched action against the method and the total
func (l *Limiter) RecordUsage(accountID string, m models.Method) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.usageLocked(accountID)
	u.counts[m]++
	u.total++

	l.logger.Debug().
		Str("accountId", accountID).
		Str("method", string(m)).
		Int("count", u.counts[m]).
		Int("total", u.total).
		Msg("Recorded usage")
}

// Usage returns a copy of the account's counters
func (l *Limiter) Usage(accountID string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.usageLocked(accountID)
	counts := make(map[models.Method]int, len(u.counts))
	for m, n := range u.counts {
		counts[m] = n
	}
	return Usage{Counts: counts, Total: u.total, LastReset: u.lastReset}
}

// Remaining returns how many actions of the method and in total the account has left today
func (l *Limiter) Remaining(accountID string, m models.Method) (method, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.usageLocked(accountID)
	limits := l.limitsLocked(accountID)
	return limits.PerMethod[m] - u.counts[m], limits.Total - u.total
}

func (l *Limiter) limitsLocked(accountID string) Limits {
	if o, ok := l.overrides[accountID]; ok {
		return o
	}
	return l.defaults
}

// usageLocked returns the account's counters, resetting them once the window has passed
func (l *Limiter) usageLocked(accountID string) *usage {
	now := l.now()
	u, ok := l.accounts[accountID]
	if !ok {
		u = &usage{counts: make(map[models.Method]int), lastReset: now}
		l.accounts[accountID] = u
		return u
	}

	if now.Sub(u.lastReset) > Window {
		l.logger.Info().
			Str("accountId", accountID).
			Int("total", u.total).
			Msg("Daily counters reset")
		u.counts = make(map[models.Method]int)
		u.total = 0
		u.lastReset = now
	}

	return u
}

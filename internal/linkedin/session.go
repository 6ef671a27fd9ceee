// Package linkedin executes campaign actions against LinkedIn in a real browser.
//
// Factory implements workerpool.SessionFactory: each session owns one browser
// for one account, restored from the account's stored cookies and saved back
// when the session closes. Errors leave this package classified.
package linkedin

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/browser"
	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/failure"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/stealth"
	"linkedin-outreach/internal/workerpool"
)

// Result values reported for actions that needed no change on the site
const (
	ResultAlreadyConnected = actions.ResultAlreadyConnected
	ResultAlreadyFollowing = "already_following"
)

// CookieStore persists session cookies for an account
type CookieStore interface {
	SaveCookies(id, cookies string) error
}

// Factory opens browser sessions for accounts
type Factory struct {
	browserCfg  config.BrowserConfig
	scheduleCfg config.ScheduleConfig
	cookies     CookieStore
	logger      zerolog.Logger
	now         func() time.Time
}

// NewFactory creates a session factory
func NewFactory(browserCfg config.BrowserConfig, scheduleCfg config.ScheduleConfig, cookies CookieStore, logger zerolog.Logger) *Factory {
	return &Factory{
		browserCfg:  browserCfg,
		scheduleCfg: scheduleCfg,
		cookies:     cookies,
		logger:      logger.With().Str("module", "linkedin").Logger(),
		now:         time.Now,
	}
}

// NewSession launches a browser for the account behind the given proxy and
// restores its cookies. The pool validates the result with Alive.
func (f *Factory) NewSession(ctx context.Context, account *models.Account, p *models.ProxyResource) (workerpool.Session, error) {
	logger := f.logger.With().Str("accountId", account.ID).Logger()
	human := stealth.New(f.scheduleCfg, rand.New(rand.NewSource(f.now().UnixNano())), logger)

	ua := account.UserAgent
	if ua == "" {
		ua = human.UserAgent()
	}

	b, err := browser.Launch(ctx, f.browserCfg, browser.Options{AccountID: account.ID, UserAgent: ua, Proxy: p}, logger)
	if err != nil {
		return nil, err
	}

	cookies, err := browser.DecodeCookies(account.Cookies, f.now())
	if err != nil {
		logger.Warn().Err(err).Msg("Stored cookies unreadable, starting without them")
	} else if err := b.SetCookies(cookies); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore cookies")
	} else if len(cookies) > 0 {
		logger.Debug().Int("count", len(cookies)).Msg("Cookies restored")
	}

	page, err := b.NewPage()
	if err != nil {
		_ = b.Close()
		return nil, failure.New(failure.WorkerInit, "open page", err)
	}
	if err := human.ApplyToPage(page); err != nil {
		logger.Warn().Err(err).Msg("Failed to apply fingerprint")
	}

	return &Session{
		accountID: account.ID,
		browser:   b,
		page:      page,
		human:     human,
		pages:     browser.NewPageHelper(logger),
		cookies:   f.cookies,
		logger:    logger,
		now:       f.now,
	}, nil
}

// Session is one logged-in browser acting for one account
type Session struct {
	accountID string
	browser   *browser.Browser
	page      *rod.Page
	human     *stealth.Humanizer
	pages     *browser.PageHelper
	cookies   CookieStore
	logger    zerolog.Logger
	now       func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Execute performs one action. Methods the site cannot serve and malformed
// targets fail as unsupported; outside working hours the action is rate limited.
func (s *Session) Execute(ctx context.Context, req workerpool.Request) (*workerpool.Result, error) {
	if !s.human.Hours().Allows(s.now()) {
		return nil, failure.Errorf(failure.RateLimited, "schedule", "outside working hours, next window %s",
			s.human.Hours().Next(s.now()).Format(time.RFC3339))
	}

	var run func(context.Context, string, workerpool.Request) (*workerpool.Result, error)
	switch req.Method {
	case models.MethodSendConnectionRequest:
		run = s.sendConnectionRequest
	case models.MethodSendMessage:
		run = s.sendMessage
	case models.MethodViewProfile:
		run = s.viewProfile
	case models.MethodFollowProfile:
		run = s.followProfile
	case models.MethodLikePost:
		run = s.likePost
	case models.MethodEndorseSkills:
		run = s.endorseSkills
	default:
		return nil, failure.Errorf(failure.UnsupportedAction, string(req.Method), "method not supported by the browser driver")
	}

	profile := NormalizeProfileURL(req.ProfileURL)
	if profile == "" {
		return nil, failure.Errorf(failure.UnsupportedAction, string(req.Method), "invalid profile url %q", req.ProfileURL)
	}

	s.logger.Info().
		Str("actionId", req.ActionID).
		Str("method", string(req.Method)).
		Str("profile", profile).
		Msg("Executing action")

	res, err := run(ctx, profile, req)
	if err != nil {
		return nil, s.classify(string(req.Method), err)
	}
	return res, nil
}

// Alive opens the feed and fails with SessionInvalid when LinkedIn asks to log in or verify
func (s *Session) Alive(ctx context.Context) error {
	if err := s.browser.Navigate(ctx, s.page, FeedURL); err != nil {
		return err
	}
	return s.checkSession("alive")
}

// Close saves the session cookies to the account and closes the browser
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.saveCookies()
		s.closeErr = s.browser.Close()
	})
	return s.closeErr
}

func (s *Session) saveCookies() {
	if s.cookies == nil {
		return
	}
	cookies, err := s.browser.Cookies()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read cookies")
		return
	}
	raw, err := browser.EncodeCookies(cookies)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode cookies")
		return
	}
	if err := s.cookies.SaveCookies(s.accountID, raw); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save cookies")
		return
	}
	s.logger.Debug().Int("count", len(cookies)).Msg("Cookies saved")
}

// open navigates to a profile, checks the session and reads a little like a person would
func (s *Session) open(ctx context.Context, url string) error {
	if err := s.browser.Navigate(ctx, s.page, url); err != nil {
		return err
	}
	if err := s.checkSession("open"); err != nil {
		return err
	}
	if err := s.human.Timing().PageLoadDelay(ctx); err != nil {
		return err
	}
	return s.human.SimulateReading(ctx, s.page)
}

// classify leaves classified errors alone and probes the browser for the rest
func (s *Session) classify(op string, err error) error {
	return browser.Classify(op, err, s.browser.Connected())
}

// Package browser launches one rod-controlled Chrome per account, with its own
// profile directory, egress proxy and stealth pages.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/failure"
	"linkedin-outreach/internal/models"
)

// Options select the per-account parts of a launch
type Options struct {
	AccountID string
	UserAgent string
	Proxy     *models.ProxyResource
}

// Browser is a launched Chrome and its control connection
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
	logger   zerolog.Logger
}

// Launch starts Chrome for one account and connects to it
func Launch(ctx context.Context, cfg config.BrowserConfig, opts Options, logger zerolog.Logger) (*Browser, error) {
	logger = logger.With().Str("module", "browser").Str("accountId", opts.AccountID).Logger()

	l := launcher.New().Context(ctx).Headless(cfg.Headless)

	if dir := UserDataDir(cfg.UserDataRoot, opts.AccountID); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, failure.New(failure.WorkerInit, "browser profile", err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, failure.New(failure.WorkerInit, "browser profile", err)
		}
		l = l.UserDataDir(abs)
	}

	l = l.Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check")

	if opts.UserAgent != "" {
		l = l.Set("user-agent", opts.UserAgent)
	}
	if opts.Proxy != nil {
		l = l.Proxy(ProxyServer(opts.Proxy))
		logger.Debug().Str("proxyId", opts.Proxy.ID).Msg("Routing through proxy")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, failure.New(failure.WorkerInit, "launch browser", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, failure.New(failure.WorkerInit, "connect browser", err)
	}

	if p := opts.Proxy; p != nil && p.Username != "" {
		// Answers every proxy auth challenge until the browser closes
		go handleProxyAuth(b, p.Username, p.Password, logger)
	}

	logger.Info().Bool("headless", cfg.Headless).Msg("Browser launched")

	return &Browser{
		browser:  b,
		launcher: l,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func handleProxyAuth(b *rod.Browser, username, password string, logger zerolog.Logger) {
	for {
		wait := b.HandleAuth(username, password)
		if err := wait(); err != nil {
			logger.Debug().Err(err).Msg("Proxy auth handler stopped")
			return
		}
	}
}

// UserDataDir is the Chrome profile directory of an account
func UserDataDir(root, accountID string) string {
	if root == "" || accountID == "" {
		return ""
	}
	return filepath.Join(root, accountID)
}

// ProxyServer renders a proxy as a Chrome --proxy-server value
func ProxyServer(p *models.ProxyResource) string {
	scheme := p.Protocol
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + p.Host + ":" + strconv.Itoa(p.Port)
}

// NewPage opens a page with the go-rod/stealth evasions and the configured viewport
func (b *Browser) NewPage() (*rod.Page, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.cfg.ViewportWidth,
		Height: b.cfg.ViewportHeight,
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to set viewport")
	}

	return page, nil
}

// Navigate loads url and waits for the DOM to settle. Errors are classified.
func (b *Browser) Navigate(ctx context.Context, page *rod.Page, url string) error {
	b.logger.Debug().Str("url", url).Msg("Navigating")

	p := page.Context(ctx).Timeout(b.cfg.NavigationTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return Classify("navigate", err, b.Connected())
	}
	if err := p.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return Classify("navigate", err, b.Connected())
		}
		b.logger.Warn().Err(err).Msg("WaitLoad failed, continuing anyway")
	}
	_ = p.WaitDOMStable(time.Second, 0.1)

	return nil
}

// Cookies returns every cookie in the browser
func (b *Browser) Cookies() ([]*proto.NetworkCookie, error) {
	return b.browser.GetCookies()
}

// SetCookies installs cookies into the browser
func (b *Browser) SetCookies(cookies []*proto.NetworkCookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	return b.browser.SetCookies(cookies)
}

// Connected reports whether the control connection still answers
func (b *Browser) Connected() bool {
	_, err := b.browser.Version()
	return err == nil
}

// Close shuts the browser down and removes the launcher's process
func (b *Browser) Close() error {
	b.logger.Info().Msg("Closing browser")
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}

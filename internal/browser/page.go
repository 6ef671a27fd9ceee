package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

// ErrElementNotFound is returned when a selector matches nothing in time
var ErrElementNotFound = errors.New("element not found")

// PageHelper wraps common page lookups with timeouts
type PageHelper struct {
	logger zerolog.Logger
}

// NewPageHelper creates a page helper
func NewPageHelper(logger zerolog.Logger) *PageHelper {
	return &PageHelper{
		logger: logger.With().Str("component", "pagehelper").Logger(),
	}
}

// WaitForElement waits up to timeout for a visible element matching selector
func (p *PageHelper) WaitForElement(ctx context.Context, page *rod.Page, selector string, timeout time.Duration) (*rod.Element, error) {
	p.logger.Debug().Str("selector", selector).Dur("timeout", timeout).Msg("Waiting for element")

	pg := page.Context(ctx).Timeout(timeout)
	defer pg.CancelTimeout()

	el, err := pg.Element(selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("element not visible: %s: %w", selector, err)
	}
	return el, nil
}

// ElementExists checks for a match without waiting
func (p *PageHelper) ElementExists(page *rod.Page, selector string) bool {
	has, _, err := page.Has(selector)
	return err == nil && has
}

// FindElementByText returns the first selector match whose text contains text, case-insensitively
func (p *PageHelper) FindElementByText(page *rod.Page, selector, text string) (*rod.Element, error) {
	els, err := page.Elements(selector)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(text)
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(t), want) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s with text %q", ErrElementNotFound, selector, text)
}

// CurrentURL returns the page's URL, or empty when it cannot be read
func (p *PageHelper) CurrentURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// ContainsText checks the page HTML for text, case-insensitively
func (p *PageHelper) ContainsText(page *rod.Page, text string) bool {
	html, err := page.HTML()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(html), strings.ToLower(text))
}

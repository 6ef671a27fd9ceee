package linkedin

import (
	"net/url"
	"strings"

	"linkedin-outreach/internal/failure"
)

// LinkedIn URLs
const (
	HomeURL = "https://www.linkedin.com"
	FeedURL = "https://www.linkedin.com/feed/"
)

// Selectors for security challenges shown instead of the requested page
const (
	Selector2FAInput     = "input[name='pin']"
	SelectorCaptchaFrame = "iframe[src*='captcha'], iframe[src*='recaptcha']"
	SelectorPhoneVerify  = "input[name='phoneNumber'], #phone-number-input"
	SelectorChallenge    = ".challenge, [data-test='challenge'], #captcha-internal"
)

// Path fragments LinkedIn redirects to when a session is not usable
var blockedPaths = []string{"/login", "/checkpoint", "/authwall", "/uas/login"}

// IsBlockedURL reports whether LinkedIn redirected to a login or verification page
func IsBlockedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, p := range blockedPaths {
		if strings.HasPrefix(u.Path, p) {
			return true
		}
	}
	return false
}

// checkSession fails with SessionInvalid when the page shows a login wall or a challenge
func (s *Session) checkSession(op string) error {
	current := s.pages.CurrentURL(s.page)
	if IsBlockedURL(current) {
		s.logger.Warn().Str("url", current).Msg("Redirected to login or checkpoint")
		return failure.Errorf(failure.SessionInvalid, op, "redirected to %s", current)
	}

	for _, sel := range []string{Selector2FAInput, SelectorCaptchaFrame, SelectorPhoneVerify, SelectorChallenge} {
		if s.pages.ElementExists(s.page, sel) {
			s.logger.Warn().Str("selector", sel).Msg("Security challenge detected")
			return failure.Errorf(failure.SessionInvalid, op, "security challenge on %s", current)
		}
	}
	return nil
}

// NormalizeProfileURL reduces a profile link to https://www.linkedin.com/in/<slug>,
// or returns empty when href is not a profile
func NormalizeProfileURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Host != "" && u.Host != "linkedin.com" && !strings.HasSuffix(u.Host, ".linkedin.com") {
		return ""
	}
	if !strings.HasPrefix(u.Path, "/in/") {
		return ""
	}

	slug := strings.SplitN(strings.TrimPrefix(u.Path, "/in/"), "/", 2)[0]
	if slug == "" {
		return ""
	}
	return HomeURL + "/in/" + slug
}

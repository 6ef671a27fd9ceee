package browser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// CookieData is the stored form of one browser cookie
type CookieData struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// EncodeCookies serializes browser cookies for the account record
func EncodeCookies(cookies []*proto.NetworkCookie) (string, error) {
	data := make([]CookieData, len(cookies))
	for i, c := range cookies {
		sameSite := "Lax"
		switch c.SameSite {
		case proto.NetworkCookieSameSiteStrict:
			sameSite = "Strict"
		case proto.NetworkCookieSameSiteNone:
			sameSite = "None"
		}

		data[i] = CookieData{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSite,
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cookies: %w", err)
	}
	return string(raw), nil
}

// DecodeCookies parses stored cookies, dropping those expired at now.
// Session cookies (no expiry) are kept.
func DecodeCookies(raw string, now time.Time) ([]*proto.NetworkCookieParam, error) {
	if raw == "" {
		return nil, nil
	}

	var data []CookieData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to parse cookies: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(data))
	for _, c := range data {
		if c.Expires > 0 && c.Expires < float64(now.Unix()) {
			continue
		}

		sameSite := proto.NetworkCookieSameSiteLax
		switch c.SameSite {
		case "Strict":
			sameSite = proto.NetworkCookieSameSiteStrict
		case "None":
			sameSite = proto.NetworkCookieSameSiteNone
		}

		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSite,
		})
	}

	return params, nil
}

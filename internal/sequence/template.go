package sequence

import (
	"regexp"
	"strings"

	"linkedin-outreach/internal/models"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_]+)\s*\}\}`)

// Personalize substitutes {{field}} placeholders with lead data.
// Missing values use neutral fallbacks; unknown placeholders are left as written.
func Personalize(template string, lead *models.Lead) string {
	if template == "" {
		return ""
	}

	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		value, fallback, ok := field(key, lead)
		if !ok {
			return m
		}
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	})
}

func field(key string, lead *models.Lead) (value, fallback string, ok bool) {
	var l models.Lead
	if lead != nil {
		l = *lead
	}

	switch strings.ToLower(strings.ReplaceAll(key, "_", "")) {
	case "firstname":
		return l.FirstName, "there", true
	case "lastname":
		return l.LastName, "", true
	case "company":
		return l.Company, "your company", true
	case "position", "title":
		return l.Position, "your role", true
	case "industry":
		return l.Industry, "your industry", true
	case "location":
		return l.Location, "your location", true
	}
	return "", "", false
}

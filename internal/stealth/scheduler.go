package stealth

import (
	"time"

	"linkedin-outreach/internal/config"
)

// Window is the part of the week in which an account may be active
type Window struct {
	Enabled   bool
	StartHour int
	EndHour   int
	Weekends  bool
}

// WindowFromConfig builds the working-hours window from schedule settings
func WindowFromConfig(cfg config.ScheduleConfig) Window {
	return Window{
		Enabled:   cfg.BusinessHoursOnly,
		StartHour: cfg.WorkStartHour,
		EndHour:   cfg.WorkEndHour,
		Weekends:  cfg.WorkWeekends,
	}
}

// Allows reports whether t falls inside the window
func (w Window) Allows(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	if !w.Weekends && isWeekend(t) {
		return false
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// Next returns the earliest time at or after t that the window allows
func (w Window) Next(t time.Time) time.Time {
	if w.Allows(t) {
		return t
	}

	day := t
	if t.Hour() >= w.StartHour {
		day = t.AddDate(0, 0, 1)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, 0, 0, 0, t.Location())
	for !w.Weekends && isWeekend(start) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

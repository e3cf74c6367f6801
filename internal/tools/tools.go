package tools

import (
	"net/http"
	"time"
)

const (
	layoutInput = "2006-01-02T15:04"
	LayoutDB    = "2006-01-02 15:04:05"
)

// ParseStartAndEndDate reads the start/end form values of a history request
// and formats them for comparison with the DB. Missing or malformed values
// fall back to the last `fallback` hours.
func ParseStartAndEndDate(r *http.Request, loc *time.Location, fallback time.Duration) (string, string) {
	r.ParseForm()
	if loc == nil {
		loc = time.Local
	}
	now := time.Now().UTC()
	startDate := now.Add(-fallback).Format(LayoutDB)
	endDate := now.Format(LayoutDB)

	if t, err := time.ParseInLocation(layoutInput, r.FormValue("start"), loc); err == nil {
		startDate = t.UTC().Format(LayoutDB)
	}
	if t, err := time.ParseInLocation(layoutInput, r.FormValue("end"), loc); err == nil {
		endDate = t.UTC().Format(LayoutDB)
	}
	return startDate, endDate
}

// Package stats turns focus records into the chart buckets and summary
// figures shown to users.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ownmi/focussync/internal/records"
)

const dayLayout = "2006-01-02"

// Point is the focused time on one calendar day.
type Point struct {
	Date     string `json:"date" yaml:"date"`
	Duration int64  `json:"duration" yaml:"duration"`
}

// ChartBuckets splits history into disjoint ranges. A record lands in the
// first range whose start it falls after.
type ChartBuckets struct {
	Today     []Point `json:"today" yaml:"today"`
	LastWeek  []Point `json:"last_week" yaml:"last_week"`
	LastMonth []Point `json:"last_month" yaml:"last_month"`
	LastYear  []Point `json:"last_year" yaml:"last_year"`
}

// Buckets groups records per day relative to now. Days are calendar days in
// now's location; older than 365 days is dropped.
func Buckets(recs []records.Record, now time.Time) ChartBuckets {
	loc := now.Location()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	weekStart := todayStart.AddDate(0, 0, -7)
	monthStart := todayStart.AddDate(0, 0, -30)
	yearStart := todayStart.AddDate(0, 0, -365)

	today := map[string]int64{}
	week := map[string]int64{}
	month := map[string]int64{}
	year := map[string]int64{}

	for _, rec := range recs {
		start := rec.StartTime.In(loc)
		key := start.Format(dayLayout)
		switch {
		case start.After(todayStart):
			today[key] += rec.DurationSeconds
		case start.After(weekStart):
			week[key] += rec.DurationSeconds
		case start.After(monthStart):
			month[key] += rec.DurationSeconds
		case start.After(yearStart):
			year[key] += rec.DurationSeconds
		}
	}

	return ChartBuckets{
		Today:     points(today),
		LastWeek:  points(week),
		LastMonth: points(month),
		LastYear:  points(year),
	}
}

func points(m map[string]int64) []Point {
	out := make([]Point, 0, len(m))
	for date, secs := range m {
		out = append(out, Point{Date: date, Duration: secs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

type Summary struct {
	TotalSessions  int   `json:"total_sessions" yaml:"total_sessions"`
	TotalSeconds   int64 `json:"total_seconds" yaml:"total_seconds"`
	ManualSessions int   `json:"manual_sessions" yaml:"manual_sessions"`
	AverageSeconds int64 `json:"average_seconds" yaml:"average_seconds"`
}

func Summarize(recs []records.Record) Summary {
	var s Summary
	for _, rec := range recs {
		s.TotalSessions++
		s.TotalSeconds += rec.DurationSeconds
		if rec.ManuallyAdded {
			s.ManualSessions++
		}
	}
	if s.TotalSessions > 0 {
		s.AverageSeconds = s.TotalSeconds / int64(s.TotalSessions)
	}
	return s
}

// FormatDuration renders seconds as "1h 5m" (short) or
// "1 hour 5 minutes" (long). Seconds are shown only under an hour.
func FormatDuration(seconds int64, long bool) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	var parts []string
	unit := func(n int64, short, singular, plural string) {
		switch {
		case !long:
			parts = append(parts, fmt.Sprintf("%d%s", n, short))
		case n == 1:
			parts = append(parts, "1 "+singular)
		default:
			parts = append(parts, fmt.Sprintf("%d %s", n, plural))
		}
	}
	if hours > 0 {
		unit(hours, "h", "hour", "hours")
	}
	if minutes > 0 {
		unit(minutes, "m", "minute", "minutes")
	}
	if secs > 0 && hours == 0 {
		unit(secs, "s", "second", "seconds")
	}
	if len(parts) == 0 {
		if long {
			return "0 minutes"
		}
		return "0m"
	}
	return strings.Join(parts, " ")
}

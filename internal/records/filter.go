package records

import (
	"fmt"
	"strings"
	"time"
)

type ManualFilter string

const (
	ManualAll       ManualFilter = "all"
	ManualOnly      ManualFilter = "manual"
	ManualAutomatic ManualFilter = "automatic"
)

// Filter narrows a listed history the way the stats page does: by duration
// bounds and by how the session was recorded.
type Filter struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	Manual      ManualFilter
}

func ParseManualFilter(v string) (ManualFilter, error) {
	switch ManualFilter(strings.ToLower(strings.TrimSpace(v))) {
	case "", ManualAll:
		return ManualAll, nil
	case ManualOnly:
		return ManualOnly, nil
	case ManualAutomatic:
		return ManualAutomatic, nil
	default:
		return "", fmt.Errorf("unsupported manual filter %q (expected all|manual|automatic)", v)
	}
}

func (f Filter) Match(rec Record) bool {
	d := time.Duration(rec.DurationSeconds) * time.Second
	if f.MinDuration > 0 && d < f.MinDuration {
		return false
	}
	if f.MaxDuration > 0 && d > f.MaxDuration {
		return false
	}
	switch f.Manual {
	case ManualOnly:
		return rec.ManuallyAdded
	case ManualAutomatic:
		return !rec.ManuallyAdded
	}
	return true
}

// Apply returns the records that match, preserving order.
func (f Filter) Apply(in []Record) []Record {
	out := make([]Record, 0, len(in))
	for _, rec := range in {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

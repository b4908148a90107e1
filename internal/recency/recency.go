// Package recency computes, per spine row, the elapsed whole days since
// the most recent causally valid event.
package recency

import (
	"time"

	"github.com/safefeat/safefeat/internal/pointintime"
)

// Column computes the recency feature from a causally filtered join: for
// each spine row, the whole-day difference between the cutoff and the most
// recent qualifying event, truncated toward zero. Rows with no qualifying
// events get a nil cell — "no event exists" is a different signal from
// "an event happened today", so recency does not share the aggregation
// engine's zero default.
func Column(j *pointintime.Join) []interface{} {
	type last struct {
		cutoff    time.Time
		eventTime time.Time
	}
	latest := make(map[int]last)
	for _, p := range j.Pairs {
		cur, ok := latest[p.SpineRow]
		if !ok || p.EventTime.After(cur.eventTime) {
			latest[p.SpineRow] = last{cutoff: p.Cutoff, eventTime: p.EventTime}
		}
	}

	out := make([]interface{}, j.NumSpineRows)
	for i := range out {
		l, ok := latest[i]
		if !ok {
			continue // stays nil
		}
		out[i] = int64(l.cutoff.Sub(l.eventTime) / (24 * time.Hour))
	}
	return out
}

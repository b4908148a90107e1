// Package pointintime implements the temporal join at the heart of the
// feature engine: spine rows are joined to event rows by entity, and every
// pair whose event falls after the cutoff (beyond the allowed lag) is
// discarded. This is the leakage boundary; everything downstream consumes
// only pairs that survive it.
package pointintime

import (
	"fmt"
	"time"

	sferrors "github.com/safefeat/safefeat/internal/errors"
	"github.com/safefeat/safefeat/pkg/frame"
)

// Params configures a point-in-time filter call.
type Params struct {
	// EntityCol is the entity identifier column, present in both tables.
	EntityCol string

	// CutoffCol is the spine's cutoff timestamp column.
	CutoffCol string

	// EventTimeCol is the event table's timestamp column.
	EventTimeCol string

	// AllowedLag is the grace period for events recorded after the cutoff
	// (pipeline delay tolerance). Zero means strict no-future enforcement.
	AllowedLag time.Duration

	// CollectAudit enables pair accounting for the audit report.
	CollectAudit bool
}

// Pair is one surviving (spine row, event row) combination. Invariant:
// EventTime <= Cutoff + AllowedLag.
type Pair struct {
	SpineRow  int
	EventRow  int
	Cutoff    time.Time
	EventTime time.Time
}

// Join holds the causally filtered pairs together with the event table
// they index into, so downstream aggregation can read attribute columns.
type Join struct {
	Events *frame.Table
	Pairs  []Pair

	// NumSpineRows is the row count of the spine the join was built from.
	NumSpineRows int
}

// Counts is the audit accounting for one filter call.
// Kept + Dropped == Total always holds.
type Counts struct {
	Total   int64
	Kept    int64
	Dropped int64

	// MaxFutureDelta is the largest amount by which a dropped event
	// exceeded cutoff + lag. Nil when nothing was dropped.
	MaxFutureDelta *time.Duration
}

// Filter joins spine rows to event rows by entity and removes every pair
// violating the causality rule. Neither input table is modified. The
// returned Counts is nil unless p.CollectAudit is set.
func Filter(spine, events *frame.Table, p Params) (*Join, *Counts, error) {
	spineEntity := spine.ColumnIndex(p.EntityCol)
	spineCutoff := spine.ColumnIndex(p.CutoffCol)
	if spineEntity < 0 || spineCutoff < 0 {
		return nil, nil, sferrors.NewSchemaError(sferrors.CodeMissingColumn,
			fmt.Sprintf("required columns %q and/or %q not found in spine", p.EntityCol, p.CutoffCol))
	}

	eventEntity := events.ColumnIndex(p.EntityCol)
	eventTime := events.ColumnIndex(p.EventTimeCol)
	if eventEntity < 0 || eventTime < 0 {
		return nil, nil, sferrors.NewSchemaError(sferrors.CodeMissingColumn,
			fmt.Sprintf("required columns %q and/or %q not found in events", p.EntityCol, p.EventTimeCol))
	}

	cutoffs, err := parseTimeColumn(spine, spineCutoff, p.CutoffCol)
	if err != nil {
		return nil, nil, err
	}
	eventTimes, err := parseTimeColumn(events, eventTime, p.EventTimeCol)
	if err != nil {
		return nil, nil, err
	}

	// Hash join: entity key -> event row indices.
	byEntity := make(map[string][]int)
	for i, row := range events.Rows {
		key := frame.CanonicalString(row[eventEntity])
		byEntity[key] = append(byEntity[key], i)
	}

	join := &Join{Events: events, NumSpineRows: spine.NumRows()}
	counts := &Counts{}

	for si, row := range spine.Rows {
		cutoff := cutoffs[si]
		boundary := cutoff.Add(p.AllowedLag)
		for _, ei := range byEntity[frame.CanonicalString(row[spineEntity])] {
			counts.Total++
			et := eventTimes[ei]
			if et.After(boundary) {
				counts.Dropped++
				if p.CollectAudit {
					delta := et.Sub(boundary)
					if counts.MaxFutureDelta == nil || delta > *counts.MaxFutureDelta {
						counts.MaxFutureDelta = &delta
					}
				}
				continue
			}
			counts.Kept++
			join.Pairs = append(join.Pairs, Pair{
				SpineRow:  si,
				EventRow:  ei,
				Cutoff:    cutoff,
				EventTime: et,
			})
		}
	}

	if !p.CollectAudit {
		return join, nil, nil
	}
	return join, counts, nil
}

// Restrict narrows an already causally filtered join to pairs whose event
// time falls within the lookback interval (cutoff-window, cutoff]. The
// lower bound is exclusive and the upper bound inclusive: an event exactly
// at the cutoff counts, an event exactly window before it does not.
func Restrict(j *Join, window time.Duration) *Join {
	out := &Join{Events: j.Events, NumSpineRows: j.NumSpineRows}
	for _, p := range j.Pairs {
		start := p.Cutoff.Add(-window)
		if p.EventTime.After(start) && !p.EventTime.After(p.Cutoff) {
			out.Pairs = append(out.Pairs, p)
		}
	}
	return out
}

// parseTimeColumn parses every cell of a timestamp column, reporting the
// offending row on failure.
func parseTimeColumn(t *frame.Table, col int, name string) ([]time.Time, error) {
	parsed := make([]time.Time, t.NumRows())
	for i, row := range t.Rows {
		ts, err := frame.ParseTimestamp(row[col])
		if err != nil {
			return nil, sferrors.NewParseError(sferrors.CodeBadTimestamp,
				fmt.Sprintf("column %q row %d", name, i), err)
		}
		parsed[i] = ts
	}
	return parsed, nil
}

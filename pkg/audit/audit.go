// Package audit provides the pair-accounting report that proves the
// point-in-time rule was applied: per event table, how many joined pairs
// were admitted or rejected and how far in the future the worst rejected
// event was.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// TableAudit holds the causal-filter accounting for a single event table
// within one build call.
type TableAudit struct {
	// Table is the event table name.
	Table string `json:"table"`

	// TotalJoinedPairs is the pair count before any point-in-time filtering.
	TotalJoinedPairs int64 `json:"total_joined_pairs"`

	// KeptPairs is the pair count after applying the no-future rule.
	KeptPairs int64 `json:"kept_pairs"`

	// DroppedFuturePairs is the pair count removed because the event
	// occurred after cutoff + allowed lag.
	DroppedFuturePairs int64 `json:"dropped_future_pairs"`

	// MaxFutureDelta is the largest amount by which a dropped event
	// exceeded the permitted boundary. Nil when nothing was dropped.
	MaxFutureDelta *time.Duration `json:"max_future_delta"`
}

// Report maps event table names to their audit records for one build call.
type Report struct {
	// RunID uniquely identifies the build call that produced the report.
	RunID string `json:"run_id"`

	// Tables holds one audit record per event table referenced by at
	// least one window-aggregation block.
	Tables map[string]TableAudit `json:"tables"`
}

// NewReport creates an empty report with a fresh run ID.
func NewReport() *Report {
	return &Report{
		RunID:  uuid.New().String(),
		Tables: make(map[string]TableAudit),
	}
}

// Add records or replaces the audit entry for a table. A table is audited
// once per build; a later call for the same table overwrites.
func (r *Report) Add(a TableAudit) {
	r.Tables[a.Table] = a
}

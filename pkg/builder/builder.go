// Package builder assembles leakage-safe feature matrices: it walks a
// feature spec block by block, runs the point-in-time join, window
// restriction, and aggregation for each one, and merges the resulting
// feature columns onto a copy of the spine.
package builder

import (
	"fmt"
	"sort"
	"time"

	"github.com/safefeat/safefeat/internal/aggregate"
	sferrors "github.com/safefeat/safefeat/internal/errors"
	"github.com/safefeat/safefeat/internal/pointintime"
	"github.com/safefeat/safefeat/internal/recency"
	"github.com/safefeat/safefeat/pkg/audit"
	"github.com/safefeat/safefeat/pkg/featurespec"
	"github.com/safefeat/safefeat/pkg/frame"
)

// Default column names for the spine.
const (
	DefaultEntityCol = "entity_id"
	DefaultCutoffCol = "cutoff_time"
)

// Options configures a build call.
type Options struct {
	// EntityCol is the entity identifier column name. Defaults to
	// "entity_id".
	EntityCol string

	// CutoffCol is the spine's cutoff timestamp column name. Defaults to
	// "cutoff_time".
	CutoffCol string

	// EventTimeCols maps each event table name to its timestamp column.
	// Mandatory; there is no default.
	EventTimeCols map[string]string

	// AllowedLag is the tolerance for events recorded after the cutoff,
	// as a time-offset string. Defaults to "0s".
	AllowedLag string

	// CollectAudit enables the audit report return value.
	CollectAudit bool
}

// Build produces a copy of the spine augmented with all feature columns
// the spec describes, preserving spine row order exactly. The audit report
// is nil unless opts.CollectAudit is set. Inputs are never mutated; a
// build either completes or fails with no partial results.
func Build(spine *frame.Table, tables map[string]*frame.Table, spec *featurespec.FeatureSpec, opts Options) (*frame.Table, *audit.Report, error) {
	if opts.EntityCol == "" {
		opts.EntityCol = DefaultEntityCol
	}
	if opts.CutoffCol == "" {
		opts.CutoffCol = DefaultCutoffCol
	}
	if opts.AllowedLag == "" {
		opts.AllowedLag = "0s"
	}
	if opts.EventTimeCols == nil {
		return nil, nil, sferrors.NewSpecError(sferrors.CodeUnknownTable,
			`event time columns must be provided, e.g. {"events": "event_time"}`)
	}

	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	if !spine.HasColumn(opts.EntityCol) || !spine.HasColumn(opts.CutoffCol) {
		return nil, nil, sferrors.NewSchemaError(sferrors.CodeMissingColumn,
			fmt.Sprintf("required columns %q and/or %q not found in spine", opts.EntityCol, opts.CutoffCol))
	}

	lag, err := frame.ParseNonNegativeDuration(opts.AllowedLag)
	if err != nil {
		return nil, nil, err
	}

	var report *audit.Report
	if opts.CollectAudit {
		report = audit.NewReport()
	}

	out := spine.Copy()

	for _, block := range spec.Blocks {
		events, timeCol, err := resolveTable(block.TableName(), tables, opts.EventTimeCols)
		if err != nil {
			return nil, nil, err
		}

		switch b := block.(type) {
		case featurespec.WindowAgg:
			if err := buildWindowAgg(out, spine, events, timeCol, b, opts, lag, report); err != nil {
				return nil, nil, err
			}
		case featurespec.RecencyBlock:
			if err := buildRecency(out, spine, events, timeCol, b, opts, lag); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, sferrors.NewSpecError(sferrors.CodeUnknownBlock,
				fmt.Sprintf("unknown block type %T", block))
		}
	}

	return out, report, nil
}

// resolveTable looks up a block's event table and its timestamp column.
func resolveTable(name string, tables map[string]*frame.Table, timeCols map[string]string) (*frame.Table, string, error) {
	events, ok := tables[name]
	if !ok {
		return nil, "", sferrors.NewSpecError(sferrors.CodeUnknownTable,
			fmt.Sprintf("table %q not found in tables mapping", name))
	}
	timeCol, ok := timeCols[name]
	if !ok {
		return nil, "", sferrors.NewSpecError(sferrors.CodeUnknownTable,
			fmt.Sprintf("no event time column configured for table %q", name))
	}
	return events, timeCol, nil
}

// buildWindowAgg computes all feature columns for one window-aggregation
// block. The causal filter runs once; every window of the block observes
// the same filtration, which is also why a single audit record per table
// is sufficient.
func buildWindowAgg(out, spine, events *frame.Table, timeCol string, b featurespec.WindowAgg, opts Options, lag time.Duration, report *audit.Report) error {
	join, counts, err := pointintime.Filter(spine, events, pointintime.Params{
		EntityCol:    opts.EntityCol,
		CutoffCol:    opts.CutoffCol,
		EventTimeCol: timeCol,
		AllowedLag:   lag,
		CollectAudit: report != nil,
	})
	if err != nil {
		return err
	}

	if report != nil {
		report.Add(audit.TableAudit{
			Table:              b.Table,
			TotalJoinedPairs:   counts.Total,
			KeptPairs:          counts.Kept,
			DroppedFuturePairs: counts.Dropped,
			MaxFutureDelta:     counts.MaxFutureDelta,
		})
	}

	// Named dimensions must exist even if their aggregation list is empty.
	for _, dim := range sortedDims(b.Metrics) {
		if dim != featurespec.Wildcard && !events.HasColumn(dim) {
			return sferrors.NewSchemaError(sferrors.CodeMissingColumn,
				fmt.Sprintf("column %q not found in table %q", dim, b.Table))
		}
	}

	for _, w := range b.Windows {
		window, err := frame.ParseNonNegativeDuration(w)
		if err != nil {
			return err
		}
		windowed := pointintime.Restrict(join, window)
		label := frame.WindowLabel(w)

		for _, dim := range sortedDims(b.Metrics) {
			for _, aggName := range b.Metrics[dim] {
				kind, err := aggregate.ParseKind(aggName)
				if err != nil {
					return err
				}
				col, err := aggregate.Column(windowed, dim, kind, b.Table)
				if err != nil {
					return err
				}
				name := featureName(b.Table, dim, kind, label)
				if err := out.AppendColumn(name, col); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// buildRecency computes the single recency feature for a recency block.
// Recency blocks do not contribute audit entries.
func buildRecency(out, spine, events *frame.Table, timeCol string, b featurespec.RecencyBlock, opts Options, lag time.Duration) error {
	source := events
	if b.FilterCol != nil {
		filtered, err := events.FilterEqual(*b.FilterCol, b.FilterValue)
		if err != nil {
			return sferrors.NewSchemaError(sferrors.CodeMissingColumn,
				fmt.Sprintf("column %q not found in table %q", *b.FilterCol, b.Table))
		}
		source = filtered
	}

	join, _, err := pointintime.Filter(spine, source, pointintime.Params{
		EntityCol:    opts.EntityCol,
		CutoffCol:    opts.CutoffCol,
		EventTimeCol: timeCol,
		AllowedLag:   lag,
	})
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s__recency", b.Table)
	if b.FilterCol != nil {
		name = fmt.Sprintf("%s__recency__%s_%s", b.Table, *b.FilterCol, frame.CanonicalString(b.FilterValue))
	}
	return out.AppendColumn(name, recency.Column(join))
}

// featureName builds the output column name for one aggregate.
func featureName(table, dim string, kind aggregate.Kind, label string) string {
	if dim == featurespec.Wildcard {
		return fmt.Sprintf("%s__n_events__%s", table, label)
	}
	return fmt.Sprintf("%s__%s__%s__%s", table, dim, kind, label)
}

// sortedDims returns metric dimensions in deterministic order: the
// wildcard first, then named columns alphabetically.
func sortedDims(metrics map[string][]string) []string {
	dims := make([]string, 0, len(metrics))
	for dim := range metrics {
		if dim != featurespec.Wildcard {
			dims = append(dims, dim)
		}
	}
	sort.Strings(dims)
	if _, ok := metrics[featurespec.Wildcard]; ok {
		dims = append([]string{featurespec.Wildcard}, dims...)
	}
	return dims
}

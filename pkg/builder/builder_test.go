package builder

import (
	"testing"
	"time"

	sferrors "github.com/safefeat/safefeat/internal/errors"
	"github.com/safefeat/safefeat/pkg/featurespec"
	"github.com/safefeat/safefeat/pkg/frame"
)

func strptr(s string) *string { return &s }

func mustSpec(t *testing.T, blocks ...featurespec.Block) *featurespec.FeatureSpec {
	t.Helper()
	spec, err := featurespec.New(blocks...)
	if err != nil {
		t.Fatalf("spec construction failed: %v", err)
	}
	return spec
}

func defaultOpts() Options {
	return Options{EventTimeCols: map[string]string{"events": "event_time"}}
}

func cell(t *testing.T, tbl *frame.Table, row int, column string) interface{} {
	t.Helper()
	idx := tbl.ColumnIndex(column)
	if idx < 0 {
		t.Fatalf("column %q not found in %v", column, tbl.Columns)
	}
	return tbl.Cell(row, idx)
}

func TestBuild_WindowCount(t *testing.T) {
	// Scenario: one cutoff, one out-of-window event, one future event.
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-10")

	events := frame.New("entity_id", "event_time")
	for _, ts := range []string{"2024-01-05", "2024-01-06", "2023-01-01", "2024-01-20"} {
		events.AppendRow("u1", ts)
	}

	spec := mustSpec(t, featurespec.WindowAgg{
		Table:   "events",
		Windows: []string{"30D"},
		Metrics: map[string][]string{featurespec.Wildcard: {"count"}},
	})

	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if out.NumRows() != 1 {
		t.Fatalf("expected 1 output row, got %d", out.NumRows())
	}
	if got := cell(t, out, 0, "events__n_events__30d"); got != int64(2) {
		t.Errorf("events__n_events__30d = %v, want 2", got)
	}
}

func TestBuild_MetricsAndNaming(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-31")

	events := frame.New("entity_id", "event_time", "amount", "event_type")
	events.AppendRow("u1", "2023-01-01", int64(5), "c")
	events.AppendRow("u1", "2024-01-30", int64(10), "a")
	events.AppendRow("u1", "2024-01-31", int64(20), "a")

	spec := mustSpec(t, featurespec.WindowAgg{
		Table:   "events",
		Windows: []string{"30D"},
		Metrics: map[string][]string{
			featurespec.Wildcard: {"count"},
			"amount":             {"sum", "mean"},
			"event_type":         {"nunique"},
		},
	})

	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := cell(t, out, 0, "events__amount__sum__30d"); got != float64(30) {
		t.Errorf("sum = %v, want 30", got)
	}
	if got := cell(t, out, 0, "events__amount__mean__30d"); got != float64(15) {
		t.Errorf("mean = %v, want 15", got)
	}
	if got := cell(t, out, 0, "events__event_type__nunique__30d"); got != int64(1) {
		t.Errorf("nunique = %v, want 1", got)
	}
	if got := cell(t, out, 0, "events__n_events__30d"); got != int64(2) {
		t.Errorf("count = %v, want 2", got)
	}
}

func TestBuild_MultipleWindows(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-31")

	events := frame.New("entity_id", "event_time", "amount")
	events.AppendRow("u1", "2024-01-01", int64(10))
	events.AppendRow("u1", "2024-01-20", int64(20))
	events.AppendRow("u1", "2024-01-31", int64(30))

	spec := mustSpec(t, featurespec.WindowAgg{
		Table:   "events",
		Windows: []string{"7D", "60D"},
		Metrics: map[string][]string{
			featurespec.Wildcard: {"count"},
			"amount":             {"sum"},
		},
	})

	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := cell(t, out, 0, "events__n_events__7d"); got != int64(1) {
		t.Errorf("7d count = %v, want 1", got)
	}
	if got := cell(t, out, 0, "events__amount__sum__7d"); got != float64(30) {
		t.Errorf("7d sum = %v, want 30", got)
	}
	if got := cell(t, out, 0, "events__n_events__60d"); got != int64(3) {
		t.Errorf("60d count = %v, want 3", got)
	}
	if got := cell(t, out, 0, "events__amount__sum__60d"); got != float64(60) {
		t.Errorf("60d sum = %v, want 60", got)
	}
}

func TestBuild_RecencyBasic(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-31")

	events := frame.New("entity_id", "event_time")
	for _, ts := range []string{"2024-01-15", "2024-01-25", "2024-01-28"} {
		events.AppendRow("u1", ts)
	}

	spec := mustSpec(t, featurespec.RecencyBlock{Table: "events"})
	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := cell(t, out, 0, "events__recency"); got != int64(3) {
		t.Errorf("recency = %v, want 3", got)
	}
}

func TestBuild_RecencyWithFilter(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-31")

	events := frame.New("entity_id", "event_time", "event_type")
	events.AppendRow("u1", "2024-01-10", "login")
	events.AppendRow("u1", "2024-01-20", "purchase")
	events.AppendRow("u1", "2024-01-25", "login")
	events.AppendRow("u1", "2024-01-28", "purchase")

	spec := mustSpec(t, featurespec.RecencyBlock{
		Table:       "events",
		FilterCol:   strptr("event_type"),
		FilterValue: "purchase",
	})
	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := cell(t, out, 0, "events__recency__event_type_purchase"); got != int64(3) {
		t.Errorf("filtered recency = %v, want 3", got)
	}
}

func TestBuild_DefaultValueAsymmetry(t *testing.T) {
	// An entity with zero qualifying events: 0 for count/sum features,
	// null for recency.
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u2", "2024-01-31")

	events := frame.New("entity_id", "event_time", "amount")
	events.AppendRow("u1", "2024-01-30", int64(10))

	spec := mustSpec(t,
		featurespec.WindowAgg{
			Table:   "events",
			Windows: []string{"30D"},
			Metrics: map[string][]string{
				featurespec.Wildcard: {"count"},
				"amount":             {"sum", "mean"},
			},
		},
		featurespec.RecencyBlock{Table: "events"},
	)

	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := cell(t, out, 0, "events__n_events__30d"); got != int64(0) {
		t.Errorf("count = %v, want 0", got)
	}
	if got := cell(t, out, 0, "events__amount__sum__30d"); got != float64(0) {
		t.Errorf("sum = %v, want 0", got)
	}
	if got := cell(t, out, 0, "events__amount__mean__30d"); got != float64(0) {
		t.Errorf("mean = %v, want 0", got)
	}
	if got := cell(t, out, 0, "events__recency"); got != nil {
		t.Errorf("recency = %v, want nil", got)
	}
}

func TestBuild_RowOrderAndOriginalColumnsPreserved(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time", "label")
	spine.AppendRow("u2", "2024-01-31", int64(1))
	spine.AppendRow("u1", "2024-01-15", int64(0))
	spine.AppendRow("u1", "2024-01-31", int64(1))

	events := frame.New("entity_id", "event_time")
	events.AppendRow("u1", "2024-01-10")

	spec := mustSpec(t, featurespec.WindowAgg{
		Table:   "events",
		Windows: []string{"30D"},
		Metrics: map[string][]string{featurespec.Wildcard: {"count"}},
	})

	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if out.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.NumRows())
	}
	// Original columns and order survive.
	for row, want := range []string{"u2", "u1", "u1"} {
		if got := cell(t, out, row, "entity_id"); got != want {
			t.Errorf("row %d entity = %v, want %v", row, got, want)
		}
	}
	if got := cell(t, out, 0, "label"); got != int64(1) {
		t.Errorf("extra spine column not preserved: %v", got)
	}
	if got := cell(t, out, 0, "events__n_events__30d"); got != int64(0) {
		t.Errorf("u2 count = %v, want 0", got)
	}
	if got := cell(t, out, 1, "events__n_events__30d"); got != int64(1) {
		t.Errorf("u1@01-15 count = %v, want 1", got)
	}
	// Inputs untouched.
	if len(spine.Columns) != 3 {
		t.Error("spine gained columns; inputs must not be mutated")
	}
}

func TestBuild_AuditReport(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-10")

	events := frame.New("entity_id", "event_time")
	events.AppendRow("u1", "2024-01-05")
	events.AppendRow("u1", "2024-01-20")

	spec := mustSpec(t,
		featurespec.WindowAgg{
			Table:   "events",
			Windows: []string{"30D", "7D"},
			Metrics: map[string][]string{featurespec.Wildcard: {"count"}},
		},
		featurespec.RecencyBlock{Table: "events"},
	)

	opts := defaultOpts()
	opts.CollectAudit = true
	_, report, err := Build(spine, map[string]*frame.Table{"events": events}, spec, opts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if report == nil {
		t.Fatal("expected a report")
	}
	if report.RunID == "" {
		t.Error("report should carry a run ID")
	}
	// Recency blocks do not contribute entries.
	if len(report.Tables) != 1 {
		t.Fatalf("expected 1 audited table, got %d", len(report.Tables))
	}
	ta := report.Tables["events"]
	if ta.TotalJoinedPairs != 2 || ta.KeptPairs != 1 || ta.DroppedFuturePairs != 1 {
		t.Errorf("unexpected audit counts: %+v", ta)
	}
	if ta.KeptPairs+ta.DroppedFuturePairs != ta.TotalJoinedPairs {
		t.Error("audit additivity violated")
	}
	if ta.MaxFutureDelta == nil || *ta.MaxFutureDelta != 10*24*time.Hour {
		t.Errorf("max future delta = %v, want 10 days", ta.MaxFutureDelta)
	}
}

func TestBuild_NoReportByDefault(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-10")
	events := frame.New("entity_id", "event_time")

	spec := mustSpec(t, featurespec.WindowAgg{
		Table:   "events",
		Windows: []string{"30D"},
		Metrics: map[string][]string{featurespec.Wildcard: {"count"}},
	})

	_, report, err := Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report != nil {
		t.Error("report should be nil when audit not requested")
	}
}

func TestBuild_AllowedLag(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-10")

	events := frame.New("entity_id", "event_time")
	events.AppendRow("u1", "2024-01-10 18:00:00")

	spec := mustSpec(t, featurespec.RecencyBlock{Table: "events"})

	opts := defaultOpts()
	opts.AllowedLag = "24h"
	out, _, err := Build(spine, map[string]*frame.Table{"events": events}, spec, opts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := cell(t, out, 0, "events__recency"); got != int64(0) {
		t.Errorf("recency = %v, want 0", got)
	}

	// Without the lag the event is in the future and recency is null.
	out, _, err = Build(spine, map[string]*frame.Table{"events": events}, spec, defaultOpts())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := cell(t, out, 0, "events__recency"); got != nil {
		t.Errorf("recency = %v, want nil", got)
	}
}

func TestBuild_Errors(t *testing.T) {
	spine := frame.New("entity_id", "cutoff_time")
	spine.AppendRow("u1", "2024-01-10")
	events := frame.New("entity_id", "event_time")
	tables := map[string]*frame.Table{"events": events}

	countSpec := mustSpec(t, featurespec.WindowAgg{
		Table:   "events",
		Windows: []string{"30D"},
		Metrics: map[string][]string{featurespec.Wildcard: {"count"}},
	})

	t.Run("missing event time cols", func(t *testing.T) {
		_, _, err := Build(spine, tables, countSpec, Options{})
		if sferrors.GetCategory(err) != sferrors.ErrCategorySpec {
			t.Errorf("expected SPEC error, got %v", err)
		}
	})

	t.Run("missing spine columns", func(t *testing.T) {
		bad := frame.New("user", "asof")
		bad.AppendRow("u1", "2024-01-10")
		_, _, err := Build(bad, tables, countSpec, defaultOpts())
		if sferrors.GetCode(err) != sferrors.CodeMissingColumn {
			t.Errorf("expected MISSING_COLUMN, got %v", err)
		}
	})

	t.Run("unknown table", func(t *testing.T) {
		spec := mustSpec(t, featurespec.RecencyBlock{Table: "payments"})
		_, _, err := Build(spine, tables, spec, defaultOpts())
		if sferrors.GetCode(err) != sferrors.CodeUnknownTable {
			t.Errorf("expected UNKNOWN_TABLE, got %v", err)
		}
	})

	t.Run("missing time col mapping for table", func(t *testing.T) {
		spec := mustSpec(t, featurespec.RecencyBlock{Table: "payments"})
		_, _, err := Build(spine, map[string]*frame.Table{"payments": events}, spec, defaultOpts())
		if sferrors.GetCode(err) != sferrors.CodeUnknownTable {
			t.Errorf("expected UNKNOWN_TABLE, got %v", err)
		}
	})

	t.Run("missing metrics dimension", func(t *testing.T) {
		spec := mustSpec(t, featurespec.WindowAgg{
			Table:   "events",
			Windows: []string{"30D"},
			Metrics: map[string][]string{"amount": {"sum"}},
		})
		_, _, err := Build(spine, tables, spec, defaultOpts())
		if sferrors.GetCode(err) != sferrors.CodeMissingColumn {
			t.Errorf("expected MISSING_COLUMN, got %v", err)
		}
	})

	t.Run("negative lag", func(t *testing.T) {
		opts := defaultOpts()
		opts.AllowedLag = "-24h"
		_, _, err := Build(spine, tables, countSpec, opts)
		if sferrors.GetCode(err) != sferrors.CodeNegativeDuration {
			t.Errorf("expected NEGATIVE_DURATION, got %v", err)
		}
	})

	t.Run("missing recency filter column", func(t *testing.T) {
		spec := mustSpec(t, featurespec.RecencyBlock{
			Table:       "events",
			FilterCol:   strptr("event_type"),
			FilterValue: "purchase",
		})
		_, _, err := Build(spine, tables, spec, defaultOpts())
		if sferrors.GetCode(err) != sferrors.CodeMissingColumn {
			t.Errorf("expected MISSING_COLUMN, got %v", err)
		}
	})
}

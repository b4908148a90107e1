package frame

import (
	"errors"
	"testing"
	"time"

	sferrors "github.com/safefeat/safefeat/internal/errors"
)

func TestTable_AppendRowAndColumnIndex(t *testing.T) {
	tbl := New("entity_id", "cutoff_time")
	if err := tbl.AppendRow("u1", "2024-01-10"); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	if err := tbl.AppendRow("u2", "2024-01-11"); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}

	if tbl.NumRows() != 2 {
		t.Errorf("expected 2 rows, got %d", tbl.NumRows())
	}
	if tbl.ColumnIndex("cutoff_time") != 1 {
		t.Errorf("expected cutoff_time at index 1, got %d", tbl.ColumnIndex("cutoff_time"))
	}
	if tbl.ColumnIndex("missing") != -1 {
		t.Error("expected -1 for missing column")
	}
}

func TestTable_AppendRowLengthMismatch(t *testing.T) {
	tbl := New("a", "b")
	err := tbl.AppendRow("only one")
	if err == nil {
		t.Fatal("expected error for short row")
	}
	if sferrors.GetCode(err) != sferrors.CodeLengthMismatch {
		t.Errorf("expected LENGTH_MISMATCH, got %v", err)
	}
}

func TestTable_CopyIsIndependent(t *testing.T) {
	tbl := New("a")
	tbl.AppendRow("x")

	cp := tbl.Copy()
	cp.Rows[0][0] = "changed"
	cp.Columns[0] = "renamed"

	if tbl.Rows[0][0] != "x" {
		t.Error("copy should not share row storage with original")
	}
	if tbl.Columns[0] != "a" {
		t.Error("copy should not share column storage with original")
	}
}

func TestTable_AppendColumn(t *testing.T) {
	tbl := New("entity_id")
	tbl.AppendRow("u1")
	tbl.AppendRow("u2")

	if err := tbl.AppendColumn("score", []interface{}{int64(1), int64(2)}); err != nil {
		t.Fatalf("AppendColumn failed: %v", err)
	}
	if tbl.Cell(1, 1) != int64(2) {
		t.Errorf("expected 2, got %v", tbl.Cell(1, 1))
	}

	err := tbl.AppendColumn("bad", []interface{}{int64(1)})
	if sferrors.GetCode(err) != sferrors.CodeLengthMismatch {
		t.Errorf("expected LENGTH_MISMATCH, got %v", err)
	}
}

func TestTable_FilterEqual(t *testing.T) {
	tbl := New("entity_id", "event_type")
	tbl.AppendRow("u1", "login")
	tbl.AppendRow("u1", "purchase")
	tbl.AppendRow("u2", "purchase")

	filtered, err := tbl.FilterEqual("event_type", "purchase")
	if err != nil {
		t.Fatalf("FilterEqual failed: %v", err)
	}
	if filtered.NumRows() != 2 {
		t.Errorf("expected 2 rows, got %d", filtered.NumRows())
	}
	// source unchanged
	if tbl.NumRows() != 3 {
		t.Error("FilterEqual must not modify the source table")
	}

	_, err = tbl.FilterEqual("missing", "x")
	if sferrors.GetCode(err) != sferrors.CodeMissingColumn {
		t.Errorf("expected MISSING_COLUMN, got %v", err)
	}
}

func TestValuesEqual_NumericCrossType(t *testing.T) {
	if !ValuesEqual(int64(3), float64(3)) {
		t.Error("int64(3) and float64(3) should compare equal")
	}
	if ValuesEqual(int64(3), float64(3.5)) {
		t.Error("3 and 3.5 should not compare equal")
	}
	if !ValuesEqual(nil, nil) {
		t.Error("nil cells should compare equal")
	}
	if ValuesEqual(nil, "x") {
		t.Error("nil should not equal a string")
	}
}

func TestCanonicalString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "<NULL>"},
		{"abc", "abc"},
		{int64(42), "42"},
		{float64(42), "42"},
		{float64(1.5), "1.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := CanonicalString(tt.in); got != tt.want {
			t.Errorf("CanonicalString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   interface{}
		want time.Time
	}{
		{"2024-01-10", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"2024-01-10 12:30:00", time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC)},
		{"2024-01-10T12:30:00", time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC)},
		{"2024-01-10T12:30:00Z", time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC)},
		{time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{int64(1704067200), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%v) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp_Errors(t *testing.T) {
	for _, in := range []interface{}{"not a date", nil, []byte("x")} {
		_, err := ParseTimestamp(in)
		if err == nil {
			t.Errorf("expected error for %v", in)
			continue
		}
		if sferrors.GetCategory(err) != sferrors.ErrCategoryParse {
			t.Errorf("expected PARSE category for %v, got %v", in, err)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30D", 30 * 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"2W", 14 * 24 * time.Hour},
		{"24h", 24 * time.Hour},
		{"15min", 15 * time.Minute},
		{"30m", 30 * time.Minute},
		{"0s", 0},
		{"500ms", 500 * time.Millisecond},
		{"1.5h", 90 * time.Minute},
		{"1h30m", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Errorf("ParseDuration(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDuration_Bad(t *testing.T) {
	_, err := ParseDuration("thirty days")
	if sferrors.GetCode(err) != sferrors.CodeBadDuration {
		t.Errorf("expected BAD_DURATION, got %v", err)
	}
}

func TestParseNonNegativeDuration(t *testing.T) {
	if _, err := ParseNonNegativeDuration("30D"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	_, err := ParseNonNegativeDuration("-24h")
	if err == nil {
		t.Fatal("expected error for negative duration")
	}
	var se *sferrors.SafefeatError
	if !errors.As(err, &se) || se.Code != sferrors.CodeNegativeDuration {
		t.Errorf("expected NEGATIVE_DURATION, got %v", err)
	}
}

func TestWindowLabel(t *testing.T) {
	if WindowLabel("30D") != "30d" {
		t.Errorf("expected 30d, got %s", WindowLabel("30D"))
	}
}

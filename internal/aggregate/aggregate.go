// Package aggregate computes per-(entity, cutoff) scalar aggregates over a
// windowed point-in-time join and aligns the results with spine row order.
package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	sferrors "github.com/safefeat/safefeat/internal/errors"
	"github.com/safefeat/safefeat/internal/pointintime"
	"github.com/safefeat/safefeat/pkg/frame"
)

// Kind represents the kind of aggregate to compute.
type Kind int

const (
	KindCount Kind = iota
	KindSum
	KindMean
	KindNunique
)

// ParseKind converts an aggregation name string to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "count":
		return KindCount, nil
	case "sum":
		return KindSum, nil
	case "mean":
		return KindMean, nil
	case "nunique":
		return KindNunique, nil
	default:
		return 0, sferrors.NewSpecError(sferrors.CodeBadAggregate,
			fmt.Sprintf("unsupported aggregation %q", name))
	}
}

// String returns the spec-level name of the kind, used in feature names.
func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindSum:
		return "sum"
	case KindMean:
		return "mean"
	case KindNunique:
		return "nunique"
	}
	return "unknown"
}

// Accumulator holds the running state of one aggregate for one group.
// For mean, both the sum and the count of accumulated values are tracked.
// Distinct counting hashes each value with murmur3-128 rather than storing
// it; nil values are excluded per standard distinct-count semantics.
type Accumulator struct {
	Kind     Kind
	Count    int64
	Sum      float64
	distinct map[[2]uint64]struct{}
}

// NewAccumulator creates an empty accumulator of the given kind.
func NewAccumulator(kind Kind) *Accumulator {
	a := &Accumulator{Kind: kind}
	if kind == KindNunique {
		a.distinct = make(map[[2]uint64]struct{})
	}
	return a
}

// Accumulate adds a single cell value. Nil cells are ignored by every kind
// except count, which counts rows rather than values.
func (a *Accumulator) Accumulate(value interface{}) error {
	switch a.Kind {
	case KindCount:
		a.Count++

	case KindSum, KindMean:
		if value == nil {
			return nil
		}
		f, ok := frame.ToFloat64(value)
		if !ok {
			return sferrors.NewParseError(sferrors.CodeBadNumeric,
				fmt.Sprintf("cannot aggregate non-numeric value %v (%T)", value, value), nil)
		}
		a.Sum += f
		a.Count++

	case KindNunique:
		if value == nil {
			return nil
		}
		a.distinct[hashValue(value)] = struct{}{}
	}
	return nil
}

// Result returns the final value. Empty groups report the documented
// defaults: 0 for count, sum, and nunique, and 0 for mean as well (a
// deliberate asymmetry with recency, which reports null).
func (a *Accumulator) Result() interface{} {
	switch a.Kind {
	case KindCount:
		return a.Count
	case KindSum:
		return a.Sum
	case KindMean:
		if a.Count == 0 {
			return float64(0)
		}
		return a.Sum / float64(a.Count)
	case KindNunique:
		return int64(len(a.distinct))
	}
	return nil
}

// Wildcard is the metrics-map key requesting row counts independent of any
// attribute column. It supports only the count aggregation.
const Wildcard = "*"

// Column computes one feature column from a windowed join: one value per
// spine row, in spine row order. dim is either Wildcard (count only) or an
// attribute column of the event table; table is used only for error
// messages.
func Column(j *pointintime.Join, dim string, kind Kind, table string) ([]interface{}, error) {
	colIdx := -1
	if dim != Wildcard {
		colIdx = j.Events.ColumnIndex(dim)
		if colIdx < 0 {
			return nil, sferrors.NewSchemaError(sferrors.CodeMissingColumn,
				fmt.Sprintf("column %q not found in table %q", dim, table))
		}
	} else if kind != KindCount {
		return nil, sferrors.NewSpecError(sferrors.CodeBadWildcard,
			fmt.Sprintf("wildcard dimension only supports count, got %s", kind))
	}

	groups := make(map[int]*Accumulator)
	for _, p := range j.Pairs {
		acc, ok := groups[p.SpineRow]
		if !ok {
			acc = NewAccumulator(kind)
			groups[p.SpineRow] = acc
		}
		var value interface{}
		if colIdx >= 0 {
			value = j.Events.Cell(p.EventRow, colIdx)
		}
		if err := acc.Accumulate(value); err != nil {
			return nil, err
		}
	}

	empty := NewAccumulator(kind)
	out := make([]interface{}, j.NumSpineRows)
	for i := range out {
		if acc, ok := groups[i]; ok {
			out[i] = acc.Result()
		} else {
			out[i] = empty.Result()
		}
	}
	return out, nil
}

// hashValue produces a 128-bit murmur3 hash of a cell value with a type
// tag, so int64(1) and "1" count as distinct values.
func hashValue(v interface{}) [2]uint64 {
	var tag byte
	var repr string
	switch val := v.(type) {
	case string:
		tag, repr = 's', val
	case bool:
		tag = 'b'
		repr = frame.CanonicalString(val)
	case time.Time:
		tag = 't'
		repr = frame.CanonicalString(val)
	default:
		tag = 'n'
		repr = frame.CanonicalString(val)
	}
	h := murmur3.New128()
	h.Write([]byte{tag})
	h.Write([]byte(repr))
	h1, h2 := h.Sum128()
	return [2]uint64{h1, h2}
}

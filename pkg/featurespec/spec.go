// Package featurespec defines the declarative feature specification
// consumed by the builder: an ordered list of blocks, each describing
// either windowed aggregations over an event table or a recency feature.
// Specs are validated eagerly so a malformed spec fails before any data
// is touched.
package featurespec

import (
	"fmt"

	sferrors "github.com/safefeat/safefeat/internal/errors"
	"github.com/safefeat/safefeat/pkg/frame"
)

// Wildcard is the metrics key requesting per-group event counts
// independent of any attribute column.
const Wildcard = "*"

// allowedAggs is the closed set of aggregation kinds.
var allowedAggs = map[string]bool{
	"count":   true,
	"sum":     true,
	"mean":    true,
	"nunique": true,
}

// Block is one step of a feature spec. It is a closed sum type: the only
// implementations are WindowAgg and RecencyBlock, which makes an unknown
// block kind unrepresentable for compiled-in specs.
type Block interface {
	// TableName returns the event table the block reads.
	TableName() string

	// Validate checks the block's shape.
	Validate() error

	block()
}

// WindowAgg specifies aggregations of an event table within one or more
// lookback windows. For each (window, dimension, aggregation) combination
// one feature column is produced.
type WindowAgg struct {
	// Table is the event table name (a key of the tables mapping passed
	// to the builder).
	Table string `yaml:"table" json:"table"`

	// Windows lists lookback lengths as time-offset strings ("30D", "24h").
	Windows []string `yaml:"windows" json:"windows"`

	// Metrics maps a column name, or the wildcard "*", to the
	// aggregations to compute. The wildcard supports only ["count"];
	// named columns support sum, mean, and nunique.
	Metrics map[string][]string `yaml:"metrics" json:"metrics"`
}

func (WindowAgg) block() {}

// TableName returns the event table the block reads.
func (b WindowAgg) TableName() string { return b.Table }

// Validate checks window strings, the wildcard rule, and aggregation names.
func (b WindowAgg) Validate() error {
	if b.Table == "" {
		return sferrors.NewSpecError(sferrors.CodeUnknownTable, "window_agg block has no table")
	}
	for _, w := range b.Windows {
		if _, err := frame.ParseNonNegativeDuration(w); err != nil {
			return err
		}
	}
	for dim, aggs := range b.Metrics {
		if dim == Wildcard {
			if len(aggs) != 1 || aggs[0] != "count" {
				return sferrors.NewSpecError(sferrors.CodeBadWildcard,
					`"*" dimension only supports ["count"]`)
			}
			continue
		}
		for _, a := range aggs {
			if !allowedAggs[a] {
				return sferrors.NewSpecError(sferrors.CodeBadAggregate,
					fmt.Sprintf("unsupported aggregation %q for dimension %q", a, dim))
			}
			if a == "count" {
				return sferrors.NewSpecError(sferrors.CodeBadAggregate,
					fmt.Sprintf("count is wildcard-only; use %q for dimension %q", Wildcard, dim))
			}
		}
	}
	return nil
}

// RecencyBlock specifies a time-since-last-event feature, optionally
// restricted to events where FilterCol equals FilterValue.
type RecencyBlock struct {
	// Table is the event table name.
	Table string `yaml:"table" json:"table"`

	// FilterCol optionally names a column to filter on. FilterCol and
	// FilterValue must be provided together or not at all.
	FilterCol *string `yaml:"filter_col" json:"filter_col"`

	// FilterValue is the value FilterCol must equal.
	FilterValue interface{} `yaml:"filter_value" json:"filter_value"`
}

func (RecencyBlock) block() {}

// TableName returns the event table the block reads.
func (b RecencyBlock) TableName() string { return b.Table }

// Validate checks the filter pairing rule.
func (b RecencyBlock) Validate() error {
	if b.Table == "" {
		return sferrors.NewSpecError(sferrors.CodeUnknownTable, "recency block has no table")
	}
	if (b.FilterCol == nil) != (b.FilterValue == nil) {
		return sferrors.NewSpecError(sferrors.CodeBadRecencyFilter,
			"filter_col and filter_value must be provided together")
	}
	return nil
}

// FeatureSpec is an ordered sequence of blocks.
type FeatureSpec struct {
	Blocks []Block
}

// New builds a validated FeatureSpec from blocks, in order.
func New(blocks ...Block) (*FeatureSpec, error) {
	s := &FeatureSpec{Blocks: blocks}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every block.
func (s *FeatureSpec) Validate() error {
	for i, b := range s.Blocks {
		if b == nil {
			return sferrors.NewSpecError(sferrors.CodeUnknownBlock,
				fmt.Sprintf("block %d is nil", i))
		}
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

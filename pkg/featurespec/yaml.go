package featurespec

import (
	"fmt"

	"gopkg.in/yaml.v3"

	sferrors "github.com/safefeat/safefeat/internal/errors"
)

// Block kinds recognized in spec files.
const (
	kindWindowAgg = "window_agg"
	kindRecency   = "recency"
)

// rawBlock is the YAML shape of a block before kind dispatch.
type rawBlock struct {
	Kind        string              `yaml:"kind"`
	Table       string              `yaml:"table"`
	Windows     []string            `yaml:"windows"`
	Metrics     map[string][]string `yaml:"metrics"`
	FilterCol   *string             `yaml:"filter_col"`
	FilterValue interface{}         `yaml:"filter_value"`
}

// rawSpec is the YAML shape of a spec file.
type rawSpec struct {
	Blocks []rawBlock `yaml:"blocks"`
}

// ParseYAML decodes a spec file of the form:
//
//	blocks:
//	  - kind: window_agg
//	    table: events
//	    windows: ["30D", "7D"]
//	    metrics:
//	      "*": [count]
//	      amount: [sum, mean]
//	  - kind: recency
//	    table: events
//	    filter_col: event_type
//	    filter_value: purchase
//
// The returned spec is already validated.
func ParseYAML(data []byte) (*FeatureSpec, error) {
	var raw rawSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, sferrors.Wrap(sferrors.ErrCategorySpec, sferrors.CodeUnknownBlock,
			"cannot decode spec file", err)
	}

	blocks := make([]Block, 0, len(raw.Blocks))
	for i, rb := range raw.Blocks {
		switch rb.Kind {
		case kindWindowAgg:
			blocks = append(blocks, WindowAgg{
				Table:   rb.Table,
				Windows: rb.Windows,
				Metrics: rb.Metrics,
			})
		case kindRecency:
			blocks = append(blocks, RecencyBlock{
				Table:       rb.Table,
				FilterCol:   rb.FilterCol,
				FilterValue: rb.FilterValue,
			})
		default:
			return nil, sferrors.NewSpecError(sferrors.CodeUnknownBlock,
				fmt.Sprintf("block %d has unknown kind %q", i, rb.Kind))
		}
	}

	return New(blocks...)
}

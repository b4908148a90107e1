// Package config provides configuration for the safefeat CLI: where the
// spine, event tables, and feature spec live, and where output goes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full build configuration for one CLI run.
type Config struct {
	// Spine is the dataset holding entity/cutoff rows.
	Spine Dataset `json:"spine" yaml:"spine"`

	// Tables maps event table names to their datasets.
	Tables map[string]Dataset `json:"tables" yaml:"tables"`

	// SpecPath is the path to the feature spec YAML file.
	SpecPath string `json:"spec" yaml:"spec"`

	// EntityCol is the entity identifier column name.
	EntityCol string `json:"entity_col" yaml:"entity_col"`

	// CutoffCol is the cutoff timestamp column name.
	CutoffCol string `json:"cutoff_col" yaml:"cutoff_col"`

	// AllowedLag is the tolerance for late-arriving events, as a
	// time-offset string ("0s", "24h").
	AllowedLag string `json:"allowed_lag" yaml:"allowed_lag"`

	// Output configures where results are written.
	Output OutputConfig `json:"output" yaml:"output"`

	// Storage configures remote dataset access.
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// Dataset describes one input table.
type Dataset struct {
	// URI is a local path or an s3://bucket/key object.
	URI string `json:"uri" yaml:"uri"`

	// Format is csv, csv.sz, or sqlite. Detected from the URI when empty.
	Format string `json:"format" yaml:"format"`

	// Table is the table name inside a SQLite dataset.
	Table string `json:"table" yaml:"table"`

	// EventTimeCol is the event timestamp column. Required for event
	// tables; ignored for the spine.
	EventTimeCol string `json:"event_time_col" yaml:"event_time_col"`
}

// OutputConfig holds output locations.
type OutputConfig struct {
	// Path is where the feature matrix CSV is written. A .sz suffix
	// enables snappy compression.
	Path string `json:"path" yaml:"path"`

	// ReportPath, when set, enables the audit report and names the JSON
	// file it is written to.
	ReportPath string `json:"report_path" yaml:"report_path"`
}

// StorageConfig holds remote storage configuration.
type StorageConfig struct {
	// WorkDir is the directory for downloaded datasets.
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// S3 configuration for s3:// dataset URIs.
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		EntityCol:  "entity_id",
		CutoffCol:  "cutoff_time",
		AllowedLag: "0s",
		Output: OutputConfig{
			Path: "features.csv",
		},
		Storage: StorageConfig{
			WorkDir: os.TempDir(),
			S3: S3Config{
				Region: "us-east-1",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, applying
// defaults for anything unset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the SAFEFEAT_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SAFEFEAT_ENTITY_COL"); v != "" {
		cfg.EntityCol = v
	}
	if v := os.Getenv("SAFEFEAT_CUTOFF_COL"); v != "" {
		cfg.CutoffCol = v
	}
	if v := os.Getenv("SAFEFEAT_ALLOWED_LAG"); v != "" {
		cfg.AllowedLag = v
	}
	if v := os.Getenv("SAFEFEAT_WORK_DIR"); v != "" {
		cfg.Storage.WorkDir = v
	}
	if v := os.Getenv("SAFEFEAT_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("SAFEFEAT_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("SAFEFEAT_S3_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Spine.URI == "" {
		return fmt.Errorf("spine.uri is required")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one event table is required")
	}
	for name, ds := range c.Tables {
		if ds.URI == "" {
			return fmt.Errorf("tables.%s.uri is required", name)
		}
		if ds.EventTimeCol == "" {
			return fmt.Errorf("tables.%s.event_time_col is required", name)
		}
	}
	if c.SpecPath == "" {
		return fmt.Errorf("spec is required")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	return nil
}

// EventTimeCols returns the table-name to timestamp-column mapping the
// builder expects.
func (c *Config) EventTimeCols() map[string]string {
	out := make(map[string]string, len(c.Tables))
	for name, ds := range c.Tables {
		out[name] = ds.EventTimeCol
	}
	return out
}

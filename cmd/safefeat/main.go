// Package main implements the safefeat binary. It loads a spine and a
// set of event tables, applies a feature spec point-in-time, and writes
// the resulting feature matrix (and optionally a leakage audit report).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/safefeat/safefeat/internal/config"
	"github.com/safefeat/safefeat/internal/storage"
	"github.com/safefeat/safefeat/pkg/builder"
	"github.com/safefeat/safefeat/pkg/featurespec"
	"github.com/safefeat/safefeat/pkg/frame"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		specFile    string
		outputPath  string
		reportPath  string
		allowedLag  string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to build configuration file (YAML or JSON)")
	flag.StringVar(&specFile, "spec", "", "Path to feature spec file (overrides config)")
	flag.StringVar(&outputPath, "output", "", "Feature matrix output path (overrides config)")
	flag.StringVar(&reportPath, "report", "", "Audit report output path (overrides config)")
	flag.StringVar(&allowedLag, "allowed-lag", "", "Tolerance for late-arriving events, e.g. 0s, 24h (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "safefeat - point-in-time feature matrix builder\n\n")
		fmt.Fprintf(os.Stderr, "Usage: safefeat --config <file> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  safefeat --config build.yaml\n")
		fmt.Fprintf(os.Stderr, "  safefeat --config build.yaml --report audit.json\n")
		fmt.Fprintf(os.Stderr, "  safefeat --config build.yaml --allowed-lag 24h\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SAFEFEAT_ENTITY_COL     Entity identifier column name\n")
		fmt.Fprintf(os.Stderr, "  SAFEFEAT_CUTOFF_COL     Cutoff timestamp column name\n")
		fmt.Fprintf(os.Stderr, "  SAFEFEAT_ALLOWED_LAG    Tolerance for late-arriving events\n")
		fmt.Fprintf(os.Stderr, "  SAFEFEAT_WORK_DIR       Directory for downloaded datasets\n")
		fmt.Fprintf(os.Stderr, "  SAFEFEAT_S3_REGION      AWS region for s3:// datasets\n")
		fmt.Fprintf(os.Stderr, "  SAFEFEAT_S3_ENDPOINT    Custom S3 endpoint (MinIO, LocalStack)\n")
		fmt.Fprintf(os.Stderr, "  SAFEFEAT_S3_PATH_STYLE  Enable path-style S3 addressing\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("safefeat version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, specFile, outputPath, reportPath, allowedLag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("Build failed: %v", err)
	}
}

// loadConfig loads configuration from file, environment, and command
// line flags, in increasing priority.
func loadConfig(configFile, specFile, outputPath, reportPath, allowedLag string) (*config.Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, err
	}
	config.LoadFromEnv(cfg)

	if specFile != "" {
		cfg.SpecPath = specFile
	}
	if outputPath != "" {
		cfg.Output.Path = outputPath
	}
	if reportPath != "" {
		cfg.Output.ReportPath = reportPath
	}
	if allowedLag != "" {
		cfg.AllowedLag = allowedLag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run executes one build: load datasets, apply the spec, write outputs.
func run(ctx context.Context, cfg *config.Config) error {
	spec, err := loadSpec(cfg.SpecPath)
	if err != nil {
		return err
	}

	loader, err := newLoader(ctx, cfg)
	if err != nil {
		return err
	}

	log.Printf("Loading spine from %s", cfg.Spine.URI)
	spine, err := loader.Load(ctx, datasetSource(cfg.Spine))
	if err != nil {
		return fmt.Errorf("failed to load spine: %w", err)
	}
	log.Printf("Spine: %d rows", spine.NumRows())

	tables := make(map[string]*frame.Table, len(cfg.Tables))
	for name, ds := range cfg.Tables {
		log.Printf("Loading table %q from %s", name, ds.URI)
		table, err := loader.Load(ctx, datasetSource(ds))
		if err != nil {
			return fmt.Errorf("failed to load table %q: %w", name, err)
		}
		log.Printf("Table %q: %d rows", name, table.NumRows())
		tables[name] = table
	}

	opts := builder.Options{
		EntityCol:     cfg.EntityCol,
		CutoffCol:     cfg.CutoffCol,
		EventTimeCols: cfg.EventTimeCols(),
		AllowedLag:    cfg.AllowedLag,
		CollectAudit:  cfg.Output.ReportPath != "",
	}

	features, report, err := builder.Build(spine, tables, spec, opts)
	if err != nil {
		return err
	}
	log.Printf("Built %d feature columns for %d rows",
		len(features.Columns)-len(spine.Columns), features.NumRows())

	if err := storage.WriteCSVFile(cfg.Output.Path, features); err != nil {
		return err
	}
	log.Printf("Wrote feature matrix to %s", cfg.Output.Path)

	if report != nil {
		if err := storage.WriteReport(cfg.Output.ReportPath, report); err != nil {
			return err
		}
		log.Printf("Wrote audit report to %s (run %s)", cfg.Output.ReportPath, report.RunID)
	}
	return nil
}

// loadSpec reads and validates the feature spec file.
func loadSpec(path string) (*featurespec.FeatureSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	spec, err := featurespec.ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("invalid feature spec %s: %w", path, err)
	}
	return spec, nil
}

// newLoader builds the dataset loader, attaching an S3 fetcher only
// when some dataset actually lives in object storage.
func newLoader(ctx context.Context, cfg *config.Config) (*storage.Loader, error) {
	if !needsS3(cfg) {
		return storage.NewLoader(nil, cfg.Storage.WorkDir), nil
	}

	fetcher, err := storage.NewS3Fetcher(ctx, storage.S3Options{
		Region:       cfg.Storage.S3.Region,
		Endpoint:     cfg.Storage.S3.Endpoint,
		UsePathStyle: cfg.Storage.S3.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewLoader(fetcher, cfg.Storage.WorkDir), nil
}

func needsS3(cfg *config.Config) bool {
	if strings.HasPrefix(cfg.Spine.URI, "s3://") {
		return true
	}
	for _, ds := range cfg.Tables {
		if strings.HasPrefix(ds.URI, "s3://") {
			return true
		}
	}
	return false
}

func datasetSource(ds config.Dataset) storage.Source {
	return storage.Source{
		URI:    ds.URI,
		Format: storage.Format(ds.Format),
		Table:  ds.Table,
	}
}

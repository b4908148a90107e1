// Package storage loads spine and event datasets into frame tables and
// writes feature matrices back out. Datasets live on the local filesystem
// or in object storage; supported formats are CSV, snappy-compressed CSV,
// and SQLite databases.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/safefeat/safefeat/pkg/frame"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound    = errors.New("object not found")
	ErrDownloadFailed    = errors.New("download failed")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Format identifies how a dataset is encoded.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatCSVSnappy Format = "csv.sz"
	FormatSQLite    Format = "sqlite"
)

// Source describes one dataset to load.
type Source struct {
	// URI is a local path or an s3://bucket/key object.
	URI string

	// Format overrides extension-based detection when set.
	Format Format

	// Table is the table name inside a SQLite dataset.
	Table string
}

// ObjectFetcher downloads a remote object to a local file.
// Implementations include S3 and a directory-backed fetcher for tests.
type ObjectFetcher interface {
	// Fetch downloads bucket/key to localPath.
	Fetch(ctx context.Context, bucket, key, localPath string) error
}

// Loader resolves dataset sources into frame tables.
type Loader struct {
	fetcher ObjectFetcher
	workDir string
}

// NewLoader creates a loader. fetcher may be nil if no s3:// URIs are
// used; workDir receives downloaded objects.
func NewLoader(fetcher ObjectFetcher, workDir string) *Loader {
	return &Loader{fetcher: fetcher, workDir: workDir}
}

// Load reads one dataset into a table.
func (l *Loader) Load(ctx context.Context, src Source) (*frame.Table, error) {
	path := src.URI
	if bucket, key, ok := splitS3URI(src.URI); ok {
		if l.fetcher == nil {
			return nil, fmt.Errorf("%w: no object fetcher configured for %s", ErrDownloadFailed, src.URI)
		}
		local := filepath.Join(l.workDir, fmt.Sprintf("fetch_%s_%s", uuid.New().String()[:8], filepath.Base(key)))
		if err := l.fetcher.Fetch(ctx, bucket, key, local); err != nil {
			return nil, err
		}
		defer os.Remove(local)
		path = local
	}

	format := src.Format
	if format == "" {
		format = DetectFormat(path)
	}

	switch format {
	case FormatCSV:
		return ReadCSVFile(path)
	case FormatCSVSnappy:
		return ReadCSVSnappyFile(path)
	case FormatSQLite:
		return ReadSQLiteTable(path, src.Table)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DetectFormat infers a dataset format from its file extension.
func DetectFormat(path string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv.sz"):
		return FormatCSVSnappy
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV
	case strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".db"):
		return FormatSQLite
	default:
		return Format("")
	}
}

// splitS3URI splits s3://bucket/key into its parts.
func splitS3URI(uri string) (bucket, key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

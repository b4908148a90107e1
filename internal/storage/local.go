package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFetcher implements ObjectFetcher against a base directory, with
// bucket/key mapping to basePath/bucket/key. It exists for tests and
// offline development.
type LocalFetcher struct {
	basePath string
}

// NewLocalFetcher creates a fetcher rooted at basePath.
func NewLocalFetcher(basePath string) *LocalFetcher {
	return &LocalFetcher{basePath: basePath}
}

// Fetch copies basePath/bucket/key to localPath.
func (l *LocalFetcher) Fetch(ctx context.Context, bucket, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath := filepath.Join(l.basePath, bucket, filepath.FromSlash(key))
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return nil
}

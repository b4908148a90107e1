package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures the S3 fetcher.
type S3Options struct {
	// Region is the AWS region.
	Region string

	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string

	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// S3Fetcher downloads dataset objects from S3.
type S3Fetcher struct {
	client     *s3.Client
	maxRetries int
	retryDelay time.Duration
}

// NewS3Fetcher creates an S3 fetcher using the default AWS credential
// chain (env vars, shared config, IAM role).
func NewS3Fetcher(ctx context.Context, opts S3Options) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Fetcher{
		client:     client,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// Fetch downloads bucket/key to localPath, retrying transient failures
// with exponential backoff.
func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key, localPath string) error {
	var lastErr error
	delay := f.retryDelay

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := f.fetchOnce(ctx, bucket, key, localPath)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrObjectNotFound) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: s3://%s/%s after %d attempts: %v",
		ErrDownloadFailed, bucket, key, f.maxRetries+1, lastErr)
}

func (f *S3Fetcher) fetchOnce(ctx context.Context, bucket, key, localPath string) error {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}
		return fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, out.Body); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

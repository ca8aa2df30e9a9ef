// Package upload ships completed dump files to an S3 bucket.
package upload

import (
	"context"
	"fmt"
	"os"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/opsdeck/dbackup/internal/models"
)

// Service defines the interface for offsite copies of dump files.
type Service interface {
	Upload(ctx context.Context, localPath, key string) error
}

// Impl implements the upload Service with the AWS SDK.
type Impl struct {
	uploader *manager.Uploader
	bucket   string
	logger   zerolog.Logger
}

// New creates an S3 uploader. Static credentials from the settings take
// precedence; otherwise the SDK's default chain applies.
func New(ctx context.Context, logger zerolog.Logger, cfg models.S3Settings) (*Impl, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Impl{
		uploader: manager.NewUploader(s3.NewFromConfig(awsCfg)),
		bucket:   cfg.Bucket,
		logger:   logger,
	}, nil
}

// ObjectKey builds the object key for one dump file: <prefix>/<target>/<file>.
func ObjectKey(prefix, target, filename string) string {
	return path.Join(prefix, target, filename)
}

// Upload streams one local file into the configured bucket.
func (s *Impl) Upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer func() { _ = file.Close() }()

	s.logger.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Msg("uploading dump")

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   file,
	}); err != nil {
		return fmt.Errorf("uploading to s3://%s/%s: %w", s.bucket, key, err)
	}

	return nil
}

// Package archive persists matched note PDFs to the compliance S3 bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mtorres/chrono-archiver/internal/config"
	"github.com/mtorres/chrono-archiver/internal/utils"
)

// ObjectPutter is the slice of the S3 API the uploader consumes.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Uploader struct {
	s3        ObjectPutter
	bucket    string
	keyPrefix string
	logger    *utils.Logger
}

func NewUploader(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*Uploader, error) {
	if cfg.Archive.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required")
	}
	if cfg.Aws.AccessKeyID == "" || cfg.Aws.SecretAccessKey == "" {
		return nil, fmt.Errorf("MY_AWS_ACCESS_KEY_ID and MY_AWS_SECRET_ACCESS_KEY are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Aws.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Aws.AccessKeyID, cfg.Aws.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &Uploader{
		s3:        s3.NewFromConfig(awsCfg),
		bucket:    cfg.Archive.Bucket,
		keyPrefix: cfg.Archive.KeyPrefix,
		logger:    logger,
	}, nil
}

// NewUploaderWithClient wires an explicit S3 client. Tests use it to swap a
// fake in for the real service.
func NewUploaderWithClient(client ObjectPutter, cfg *config.Config, logger *utils.Logger) *Uploader {
	return &Uploader{
		s3:        client,
		bucket:    cfg.Archive.Bucket,
		keyPrefix: cfg.Archive.KeyPrefix,
		logger:    logger,
	}
}

// Key returns the deterministic archive path for a note. Repeated runs for
// the same note overwrite the same object.
func (u *Uploader) Key(noteID string) string {
	return fmt.Sprintf("%s/note_%s.pdf", u.keyPrefix, noteID)
}

func (u *Uploader) Upload(ctx context.Context, key string, pdfBytes []byte, reqID string) error {
	u.logger.Debug(&reqID, "Uploading %d bytes to s3://%s/%s", len(pdfBytes), u.bucket, key)

	_, err := u.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pdfBytes),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload PDF to S3: %w", err)
	}

	u.logger.Info(&reqID, "Uploaded to s3://%s/%s", u.bucket, key)

	return nil
}

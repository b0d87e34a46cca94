package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config mirrors the handful of fields the teacher's
// S3ContentStoreConfig exposes for client construction, trimmed to what
// a single-shipper archive uploader needs.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool

	Bucket    string
	KeyPrefix string
}

// NewS3ClientFromConfig builds an S3 client the same way the teacher's
// content store does: static credentials when supplied, otherwise the
// default provider chain, with an optional custom endpoint and
// path-style addressing for S3-compatible object stores.
func NewS3ClientFromConfig(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transfer: loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// S3Shipper ships archives to an S3 (or S3-compatible) bucket, keyed by
// the archive's base file name under an optional prefix.
type S3Shipper struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Shipper constructs a shipper against an already-built client.
func NewS3Shipper(client *s3.Client, bucket, keyPrefix string) *S3Shipper {
	return &S3Shipper{client: client, bucket: bucket, keyPrefix: keyPrefix}
}

// Ship uploads path to s.bucket, pacing the read through a
// backpressureReader.
func (s *S3Shipper) Ship(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("transfer: opening %s: %w", path, err)
	}
	defer f.Close()

	key := s.objectKey(path)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   newBackpressureReader(f, defaultBufferCapacity),
	})
	if err != nil {
		return fmt.Errorf("transfer: uploading %s to s3://%s/%s: %w", path, s.bucket, key, err)
	}
	return nil
}

func (s *S3Shipper) objectKey(path string) string {
	return s.keyPrefix + filepath.Base(path)
}

var _ Shipper = (*S3Shipper)(nil)

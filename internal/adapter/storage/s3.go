package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

var s3AuthCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"Forbidden":             true,
}

// S3Storage uploads to an S3 bucket or any S3-compatible endpoint.
type S3Storage struct {
	name     string
	client   *s3.Client
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

func NewS3(ctx context.Context, cfg config.TargetConfig) (*S3Storage, error) {
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
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		name:     cfg.Name,
		client:   client,
		uploader: s3manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (s *S3Storage) Name() string { return s.name }
func (s *S3Storage) Type() string { return "s3" }

func (s *S3Storage) classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && s3AuthCodes[apiErr.ErrorCode()] {
		return domain.ErrAuth
	}
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return domain.ErrTransfer
	}
	return domain.ErrConnect
}

func (s *S3Storage) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.NewTargetError(s.name, domain.ErrTransfer, fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	// keys always use forward slashes
	key := path.Join(s.prefix, filepath.Base(localPath))

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return domain.NewTargetError(s.name, s.classify(err), fmt.Errorf("failed to upload to S3: %w", err))
	}

	return nil
}

func (s *S3Storage) TestConnection(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		kind := s.classify(err)
		if kind == domain.ErrTransfer {
			kind = domain.ErrConnect
		}
		return domain.NewTargetError(s.name, kind, fmt.Errorf("failed to reach bucket %s: %w", s.bucket, err))
	}
	return nil
}

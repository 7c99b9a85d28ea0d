package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kebairia/chargeback/internal/config"
	"github.com/kebairia/chargeback/internal/logger"
)

// PutObjectAPI is the subset of *s3.Client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies report artifacts to a bucket.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	log    logger.Logger
}

func NewUploader(client PutObjectAPI, bucket, prefix string, log logger.Logger) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

// NewS3Uploader builds an Uploader from configuration. Static keys are used
// when given, otherwise the default AWS credential chain applies. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Uploader(ctx context.Context, cfg config.S3Config, log logger.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 uploader: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 uploader: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewUploader(client, cfg.Bucket, cfg.Prefix, log), nil
}

// Key returns the object key a local file is stored under.
func (u *Uploader) Key(filePath string) string {
	name := filepath.Base(filePath)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// UploadFile stores filePath in the bucket and returns its s3:// URI.
func (u *Uploader) UploadFile(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", filePath, err)
	}

	key := u.Key(filePath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(filePath)),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.log.Info("uploaded", "file", filePath, "destination", uri, "size_bytes", info.Size())
	return uri, nil
}

func contentType(filePath string) string {
	switch filepath.Ext(filePath) {
	case ".json":
		return "application/json"
	case ".zst":
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

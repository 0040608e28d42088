package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of the S3 client used for exports.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes an S3-compatible bucket (AWS or MinIO).
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Saver uploads exports to a bucket.
type S3Saver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Saver wraps an existing client.
func NewS3Saver(client PutObjectAPI, bucket, prefix string) *S3Saver {
	return &S3Saver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3SaverFromConfig builds an S3 client from cfg. Static credentials are
// used when both keys are set; otherwise the default AWS credential chain.
func NewS3SaverFromConfig(ctx context.Context, cfg S3Config) (*S3Saver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Saver(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *S3Saver) Trigger(filename string) (Trigger, error) {
	name := SanitizeFilename(filename)
	key := name
	if s.prefix != "" {
		key = path.Join(s.prefix, name)
	}
	return &s3Trigger{saver: s, key: key}, nil
}

type s3Trigger struct {
	saver *S3Saver
	key   string
}

func (t *s3Trigger) Fire(ctx context.Context, staged Staged) (string, error) {
	f, err := os.Open(staged.Path())
	if err != nil {
		return "", fmt.Errorf("export: open staged: %w", err)
	}
	defer f.Close()

	_, err = t.saver.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.saver.bucket),
		Key:           aws.String(t.key),
		Body:          f,
		ContentLength: aws.Int64(staged.Size()),
		ContentType:   aws.String(staged.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("export: put object: %w", err)
	}
	return "s3://" + t.saver.bucket + "/" + t.key, nil
}

// Remove has nothing to release: the upload streams from the staged object.
func (t *s3Trigger) Remove() error { return nil }

package baseline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var errMissingBucket = errors.New("s3 bucket is required")

// S3API is the subset of the S3 client used by S3Transport.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 transport.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// S3Transport keeps one snapshot per branch in an S3 bucket.
type S3Transport struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Transport creates a transport using the default AWS credential chain.
func NewS3Transport(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	if cfg.Bucket == "" {
		return nil, errMissingBucket
	}

	opts := make([]func(*awsconfig.LoadOptions) error, 0, 1)
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3TransportWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3TransportWithClient creates a transport on top of an existing client.
func NewS3TransportWithClient(client S3API, bucket, prefix string) *S3Transport {
	return &S3Transport{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Key returns the object key holding branch's snapshot.
func (t *S3Transport) Key(branch string) string {
	return path.Join(t.prefix, branch, FileName)
}

// Fetch downloads branch's snapshot.
func (t *S3Transport) Fetch(ctx context.Context, branch string) ([]byte, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.Key(branch)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting s3://%s/%s: %w", t.bucket, t.Key(branch), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3 object: %w", err)
	}

	return data, nil
}

// Store uploads branch's snapshot, replacing the previous one.
func (t *S3Transport) Store(ctx context.Context, branch string, data []byte) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(t.Key(branch)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", t.bucket, t.Key(branch), err)
	}

	return nil
}

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// ObjectAPI is the subset of the S3 client used by S3.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds configuration for an S3 store.
type S3Config struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // optional, for MinIO or LocalStack
}

// S3 stores the ledger document as a single object.
type S3 struct {
	client ObjectAPI
	bucket string
	key    string
}

// NewS3 creates an S3 store over an existing client.
func NewS3(client ObjectAPI, bucket, key string) *S3 {
	if key == "" {
		key = "ledger.json"
	}
	return &S3{client: client, bucket: bucket, key: key}
}

// DialS3 loads the default AWS configuration and creates an S3 store.
func DialS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3(client, cfg.Bucket, cfg.Key), nil
}

// Load implements ledger.Store.
func (s *S3) Load(ctx context.Context) ([]ledger.Entry, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return []ledger.Entry{}, nil
		}
		return nil, fmt.Errorf("s3 get %s/%s: %w", s.bucket, s.key, err)
	}
	defer func() { _ = out.Body.Close() }()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}
	return Unmarshal(b)
}

// Save implements ledger.Store.
func (s *S3) Save(ctx context.Context, entries []ledger.Entry) error {
	b, err := Marshal(entries)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

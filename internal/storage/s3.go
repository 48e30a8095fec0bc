package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Endpoint  string `envconfig:"ENDPOINT"`
	Region    string `envconfig:"REGION" default:"us-east-1"`
	Bucket    string `envconfig:"BUCKET" default:"clouddrive"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
}

// S3Storage talks to any S3-compatible store through the AWS SDK.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// trailing checksums on unseekable bodies need TLS, which
			// S3-compatible endpoints often run without
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

func (s *S3Storage) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	// The body cannot seek, so S3 needs the length up front, zero included
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	// Progress-wrapped bodies are not seekable, so the payload is sent unsigned
	_, err := s.client.PutObject(ctx, in, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", name, err)
	}
	return name, nil
}

func (s *S3Storage) PutWithProgress(ctx context.Context, name string, r io.Reader, size int64, contentType string, onProgress ProgressFunc) (string, error) {
	return s.Put(ctx, name, NewProgressReader(r, size, onProgress), size, contentType)
}

func (s *S3Storage) Get(ctx context.Context, objectID string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", objectID, err)
	}
	return out.Body, nil
}

func (s *S3Storage) Delete(ctx context.Context, objectID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", objectID, err)
	}
	return nil
}

func (s *S3Storage) PresignedURL(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	}, s3.WithPresignExpires(presignTTL(ttl)))
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectID, err)
	}
	return req.URL, nil
}

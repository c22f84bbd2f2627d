// Package blobstore is the narrow object-store collaborator: put, get by
// key, and presigned URLs, backed by aws-sdk-go-v2. No encryption layer —
// the service's artifacts carry no such requirement.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/local/tipificador/internal/errs"
)

// Store wraps an S3-compatible bucket.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func New(ctx context.Context, bucket, region string) (*Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, errs.NewInternal("load aws config", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &Store{
		client:  cli,
		presign: s3.NewPresignClient(cli),
		bucket:  bucket,
	}, nil
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errs.NewInternal(fmt.Sprintf("put object %s", key), err)
	}
	return nil
}

// Get downloads the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errs.NewNotFound(fmt.Sprintf("object %s not found: %v", key, err))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.NewInternal(fmt.Sprintf("read object %s", key), err)
	}
	return data, nil
}

// PresignGet returns a time-limited URL for downloading key.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", errs.NewInternal(fmt.Sprintf("presign object %s", key), err)
	}
	return req.URL, nil
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"siege-coordinator/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the part of *s3.Client the store needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps each collection as one JSON object in an S3 compatible
// bucket (Cloudflare R2 in production). PutObject replaces an object
// atomically.
type S3Store struct {
	client ObjectAPI
	bucket string
	prefix string
}

func NewS3Store(client ObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(name string) string {
	return path.Join(s.prefix, name+".json")
}

func (s *S3Store) load(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download %s from R2: %w", s.key(name), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key(name), err)
	}
	return data, nil
}

func (s *S3Store) save(ctx context.Context, name string, v any) error {
	data, err := encode(FormatJSON, v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to R2: %w", s.key(name), err)
	}
	return nil
}

func (s *S3Store) LoadLive(ctx context.Context) (map[string]models.LiveEvent, error) {
	data, err := s.load(ctx, liveDoc)
	if err != nil {
		return nil, err
	}
	return decodeLive(FormatJSON, data)
}

func (s *S3Store) SaveLive(ctx context.Context, events map[string]models.LiveEvent) error {
	return s.save(ctx, liveDoc, events)
}

func (s *S3Store) LoadArchive(ctx context.Context) (map[string]models.ArchiveRecord, error) {
	data, err := s.load(ctx, archiveDoc)
	if err != nil {
		return nil, err
	}
	return decodeArchive(FormatJSON, data)
}

func (s *S3Store) SaveArchive(ctx context.Context, records map[string]models.ArchiveRecord) error {
	return s.save(ctx, archiveDoc, records)
}

func (s *S3Store) Close() error { return nil }

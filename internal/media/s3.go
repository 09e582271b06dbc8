// Package media stores event media binaries in S3. Full-resolution images and
// audio clips live under "{ownerKey}/{eventID}/{filename}"; the event record
// in DynamoDB keeps only the object key, content type, and an inline
// thumbnail, so item sizes stay bounded no matter how large the uploads are.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/apperr"
)

// DefaultURLExpiry is how long presigned download links stay valid.
const DefaultURLExpiry = 15 * time.Minute

// Store is the blob storage interface for event media.
type Store interface {
	// Put writes a media object and returns its key.
	Put(ctx context.Context, ownerKey, eventID, filename, contentType string, body []byte) (string, error)

	// Get reads a media object back in full.
	Get(ctx context.Context, key string) ([]byte, string, error)

	// PresignGet returns a time-limited download URL for a media object.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// S3Store implements Store against a single bucket.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3Store for the given bucket.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
	}
}

// ObjectKey builds the bucket key for a media object. Exported so handlers
// can validate client-supplied keys against the expected layout.
func ObjectKey(ownerKey, eventID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", ownerKey, eventID, filename)
}

func (s *S3Store) Put(ctx context.Context, ownerKey, eventID, filename, contentType string, body []byte) (string, error) {
	key := ObjectKey(ownerKey, eventID, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return "", &apperr.StorageError{Op: "put media " + key, Err: err}
	}

	log.Debug().
		Str("key", key).
		Str("contentType", contentType).
		Int("bytes", len(body)).
		Msg("Media object uploaded to S3")
	return key, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, "", &apperr.StorageError{Op: "get media " + key, Err: err}
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", &apperr.StorageError{Op: "read media " + key, Err: err}
	}

	contentType := ""
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	return body, contentType, nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	result, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", &apperr.StorageError{Op: "presign media " + key, Err: err}
	}
	return result.URL, nil
}

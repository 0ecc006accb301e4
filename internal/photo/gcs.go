package photo

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore handles Cloud Storage operations.
type GCSStore struct {
	client     *storage.Client
	bucketName string
}

// NewGCSStore creates a Cloud Storage backed store.
func NewGCSStore(ctx context.Context, bucketName string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucketName: bucketName}, nil
}

// Upload writes the image and returns its object path.
func (s *GCSStore) Upload(ctx context.Context, userID, challengeID string, day int, r io.Reader, filename, contentType string) (string, error) {
	objectPath := ObjectPath(userID, challengeID, day, filename)
	if contentType == "" {
		contentType = "image/jpeg"
	}

	writer := s.client.Bucket(s.bucketName).Object(objectPath).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "private, max-age=3600"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write to storage: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}
	return objectPath, nil
}

// SignedURL creates a V4 signed GET URL for an object.
func (s *GCSStore) SignedURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucketName).SignedURL(objectPath, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown object paths.
var ErrNotFound = errors.New("photo not found")

// Object is a stored photo.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps photos in process memory and serves them under BaseURL.
type MemoryStore struct {
	BaseURL string
	MaxSize int64

	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore returns a store whose URLs are BaseURL + "/" + object path.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{BaseURL: baseURL, MaxSize: 10 << 20, objects: make(map[string]Object)}
}

func (s *MemoryStore) Upload(_ context.Context, userID, challengeID string, day int, r io.Reader, filename, contentType string) (string, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if n > s.MaxSize {
		return "", fmt.Errorf("photo exceeds %d bytes", s.MaxSize)
	}

	objectPath := ObjectPath(userID, challengeID, day, filename)
	s.mu.Lock()
	s.objects[objectPath] = Object{Data: buf.Bytes(), ContentType: contentType}
	s.mu.Unlock()
	return objectPath, nil
}

// SignedURL returns an unsigned link; the in-memory store has no access control of its own.
func (s *MemoryStore) SignedURL(_ context.Context, objectPath string, _ time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[objectPath]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return s.BaseURL + "/" + (&url.URL{Path: objectPath}).EscapedPath(), nil
}

// Get returns a stored object.
func (s *MemoryStore) Get(objectPath string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectPath]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

func (s *MemoryStore) Close() error { return nil }

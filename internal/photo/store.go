// Package photo stores progress photos and resolves their references to URLs.
package photo

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists photo bytes and signs read URLs.
type Store interface {
	Upload(ctx context.Context, userID, challengeID string, day int, r io.Reader, filename, contentType string) (string, error)
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	Close() error
}

// ObjectPath builds the storage key for a day's photo. A fresh uuid keeps replaced
// photos from being served from caches.
func ObjectPath(userID, challengeID string, day int, filename string) string {
	return fmt.Sprintf("photos/%s/%s/day-%d-%s%s", userID, challengeID, day, uuid.NewString(), extension(filename))
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return ".jpg"
	}
	return ext
}

// Resolve maps a stored reference to a URL: http(s) references pass through, object
// paths are signed. Failures resolve to "".
func Resolve(ctx context.Context, store Store, ref string, ttl time.Duration) string {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	if store == nil {
		return ""
	}
	url, err := store.SignedURL(ctx, trimmed, ttl)
	if err != nil {
		return ""
	}
	return url
}

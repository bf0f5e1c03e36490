// Package objectstore writes generated media to S3-compatible storage or the
// local filesystem.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	appcfg "github.com/bookbridge/core/internal/config"
)

// ErrInvalidKey is returned for empty keys or keys that escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// Store is the minimal surface the pipeline needs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// URL returns the public URL clients fetch the object from.
	URL(key string) string
}

// New picks the backend from config.
func New(cfg appcfg.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3(cfg.S3)
	case "local", "":
		return NewLocal(appcfg.ResolveRuntimePath(cfg.LocalDir, "media"), cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, "\\") {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

// escapeKey makes an object key safe to place in a URL path. Keys may already
// carry percent escapes, so each segment is escaped again.
func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

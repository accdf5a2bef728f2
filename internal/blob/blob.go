// Package blob stores item images. Keys are opaque strings saved on the
// item record.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.New("blob not found")

// Store saves, serves and removes image blobs.
type Store interface {
	Save(ctx context.Context, contentType string, r io.Reader) (key string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

func newKey(contentType string) string {
	return "items/" + uuid.NewString() + extension(contentType)
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func contentTypeOf(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PublicPrefix is the URL path under which stored images are served.
const PublicPrefix = "/uploads/"

// ErrImageNotFound is returned when an image URL does not resolve to a
// stored object.
var ErrImageNotFound = errors.New("image not found")

// ImageStore persists listing photos and maps them to public URLs.
type ImageStore interface {
	// Save writes r under name and returns the public URL.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Open returns the stored bytes for a URL previously returned by Save.
	Open(ctx context.Context, url string) (io.ReadCloser, error)
	// Replace overwrites the object behind url.
	Replace(ctx context.Context, url, contentType string, data []byte) error
	// Delete removes the object behind url. Missing objects are not an error.
	Delete(ctx context.Context, url string) error
}

// SniffLen is how many leading bytes DetectImageType looks at.
const SniffLen = 512

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImageType identifies an image from its leading bytes. Only JPEG, PNG,
// GIF and WebP are accepted; the declared name and content type of an upload
// are never consulted.
func DetectImageType(head []byte) (contentType, ext string, ok bool) {
	contentType = http.DetectContentType(head)
	ext, ok = imageExtensions[contentType]
	if !ok {
		return "", "", false
	}
	return contentType, ext, true
}

// NewObjectName returns a random file name with the given extension.
func NewObjectName(ext string) string {
	return uuid.NewString() + strings.ToLower(ext)
}

// objectNameFromURL extracts the stored name from a public URL. Only the
// last path element is used so a crafted URL cannot escape the store.
func objectNameFromURL(url string) (string, bool) {
	idx := strings.Index(url, PublicPrefix)
	if idx < 0 {
		return "", false
	}
	name := filepath.Base(url[idx+len(PublicPrefix):])
	if name == "." || name == "/" || name == ".." || name == "" {
		return "", false
	}
	return name, true
}

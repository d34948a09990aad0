// Package media stores uploaded files (images, attachments, blog exports) in
// a blob backend and registers them with the blog.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/JakeFAU/inkpress/internal/blog"
)

// ErrTooLarge is returned when an upload exceeds the configured size.
var ErrTooLarge = errors.New("media too large")

// Store is a blob backend.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	PublicURL(path string) string
}

// IDGenerator creates unique object name prefixes.
type IDGenerator interface {
	ObjectID() string
}

// Registrar records uploaded media; blog.Service satisfies it.
type Registrar interface {
	AddMedia(ctx context.Context, m blog.Media) (blog.Media, error)
}

// Uploader writes files to a Store and registers them.
type Uploader struct {
	store   Store
	reg     Registrar
	ids     IDGenerator
	maxSize int64
}

// NewUploader builds an Uploader. maxSize <= 0 disables the limit.
func NewUploader(store Store, reg Registrar, ids IDGenerator, maxSize int64) *Uploader {
	return &Uploader{store: store, reg: reg, ids: ids, maxSize: maxSize}
}

// Upload stores data under <blog>/<id>-<name> and returns the registered media.
func (u *Uploader) Upload(ctx context.Context, blogID, userID, name, contentType string, data []byte) (blog.Media, error) {
	if u.maxSize > 0 && int64(len(data)) > u.maxSize {
		return blog.Media{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	clean := CleanName(name)
	if clean == "" {
		return blog.Media{}, fmt.Errorf("%w: file name is required", blog.ErrInvalid)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(clean))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectPath := path.Join(blogID, u.ids.ObjectID()+"-"+clean)
	if _, err := u.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(data)); err != nil {
		return blog.Media{}, fmt.Errorf("put media: %w", err)
	}
	return u.reg.AddMedia(ctx, blog.Media{
		BlogID:      blogID,
		UserID:      userID,
		Name:        clean,
		Path:        objectPath,
		URL:         u.store.PublicURL(objectPath),
		ContentType: contentType,
		Size:        int64(len(data)),
	})
}

// CleanName keeps the base name of a client supplied path, slugged.
func CleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	ext := strings.ToLower(path.Ext(name))
	base := blog.Slugify(strings.TrimSuffix(name, path.Ext(name)), false)
	if base == "" {
		return ""
	}
	if ext = blog.Slugify(strings.TrimPrefix(ext, "."), false); ext != "" {
		return base + "." + ext
	}
	return base
}

// JoinURL joins a base URL and an object path.
func JoinURL(base, objectPath string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(objectPath, "/")
}

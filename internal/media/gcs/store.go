// Package gcs stores uploaded media in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/inkpress/internal/media"
)

// Config captures the bucket parameters.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// PublicURL overrides the https://storage.googleapis.com/<bucket> base.
	PublicURL string
}

// Store writes media objects to a configured GCS bucket.
type Store struct {
	client *storage.Client
	cfg    Config
}

// Open creates a client with Application Default Credentials and checks the
// bucket is reachable so misconfiguration fails at startup.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", cfg.Bucket, err)
	}
	return New(client, cfg)
}

// New creates a GCS-backed store from an existing client.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, cfg: cfg}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(p string) string {
	return strings.TrimLeft(path.Join(s.cfg.Prefix, p), "/")
}

// PutObject uploads data and returns a gs:// URI.
func (s *Store) PutObject(ctx context.Context, p string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is required")
	}
	name := s.objectName(p)
	writer := s.client.Bucket(s.cfg.Bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, name), nil
}

// PublicURL returns the HTTPS address of the object.
func (s *Store) PublicURL(p string) string {
	base := s.cfg.PublicURL
	if base == "" {
		base = "https://storage.googleapis.com/" + s.cfg.Bucket
	}
	return media.JoinURL(base, s.objectName(p))
}

// Package memory keeps uploaded media in process memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/JakeFAU/inkpress/internal/media"
)

type object struct {
	contentType string
	data        []byte
}

// Store keeps objects in a map and serves them over HTTP.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

// New creates an in-memory store whose public URLs start with baseURL.
func New(baseURL string) *Store {
	return &Store{objects: make(map[string]object), baseURL: baseURL}
}

// PutObject persists the content and returns a memory:// URI.
func (s *Store) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = object{contentType: contentType, data: byteData}
	return fmt.Sprintf("memory://%s", path), nil
}

// PublicURL returns the address the object is served from.
func (s *Store) PublicURL(path string) string {
	return media.JoinURL(s.baseURL, path)
}

// Get returns a copy of a stored object.
func (s *Store) Get(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}

// ServeHTTP serves objects by path; mount it with http.StripPrefix.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.Get(strings.TrimPrefix(r.URL.Path, "/"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	_, _ = w.Write(data)
}

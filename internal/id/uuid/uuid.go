// Package uuid generates object name prefixes for uploaded media and random
// signing secrets.
package uuid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Generator hands out identifiers backed by google/uuid.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// ObjectID returns a time-ordered v7 id without dashes so uploads sort by
// creation time in bucket listings. A v4 id is used if v7 generation fails.
func (Generator) ObjectID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return hex.EncodeToString(id[:])
}

// Secret returns 64 hex characters drawn from two random v4 ids.
func (Generator) Secret() (string, error) {
	a, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	b, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(a[:]) + hex.EncodeToString(b[:]), nil
}

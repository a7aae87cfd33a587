// Package artifact stores files the model asks to create so they can be
// attached to a reply. Keys are bare filenames; writing an existing name
// silently replaces it (last writer wins, no locking).
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidName is returned for empty names and names that could
	// escape the store: anything containing "..", "/" or "\".
	ErrInvalidName = errors.New("invalid artifact filename")

	// ErrNotFound is returned by Get for names never stored.
	ErrNotFound = errors.New("artifact not found")
)

// Store is an artifact backend.
type Store interface {
	// Put writes content under name, replacing any previous value.
	Put(ctx context.Context, name, content string) error
	// Get returns the raw bytes stored under name.
	Get(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// ValidateName rejects names that are empty or encode path traversal
// or separators.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open returns the backend named kind: "dir" stores files under dir,
// "sqlite" stores rows in the database at dbPath.
func Open(kind, dir, dbPath string) (Store, error) {
	switch kind {
	case "", "dir":
		return NewDirStore(dir), nil
	case "sqlite":
		return NewSQLiteStore(dbPath)
	}
	return nil, fmt.Errorf("unknown artifact backend %q", kind)
}

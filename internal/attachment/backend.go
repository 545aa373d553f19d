package attachment

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	// ErrObjectExists is returned by Backend.Create when the name is taken.
	ErrObjectExists = errors.New("attachment: object already exists")
	// ErrObjectNotFound is returned when no object has the given name.
	ErrObjectNotFound = errors.New("attachment: object not found")
)

// Backend persists attachment bytes under flat, store-generated names.
type Backend interface {
	// Create writes r under name and fails with ErrObjectExists instead of
	// overwriting.
	Create(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Remove reports false when there was nothing to delete.
	Remove(ctx context.Context, name string) (bool, error)
}

// validName accepts only flat names without traversal or separators.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsRune(name, 0)
}

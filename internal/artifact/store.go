// Package artifact stores the files produced by code block evaluation (plots,
// images) under keys of the form "<code_id>/<file_name>".
package artifact

import (
	"context"
	"fmt"
	"path"
	"strconv"
)

// Driver identifies a concrete artifact storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// Store persists artifact bytes by key.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the object stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every object whose key begins with prefix and
	// reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	Driver() Driver
}

// ErrNotFound is returned when an artifact doesn't exist.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	return "artifact not found: " + e.Key
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}

// BlockPrefix is the key prefix owning every artifact of one code block.
func BlockPrefix(codeID int64) string {
	return strconv.FormatInt(codeID, 10) + "/"
}

// Key builds the artifact key for a file produced by a code block. Only the
// base name of fileName is kept.
func Key(codeID int64, fileName string) (string, error) {
	base := path.Base(path.Clean("/" + fileName))
	if base == "/" || base == "." || base == "" {
		return "", fmt.Errorf("invalid artifact file name %q", fileName)
	}
	return BlockPrefix(codeID) + base, nil
}

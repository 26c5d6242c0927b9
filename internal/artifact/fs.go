package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FSStore keeps artifacts on the local filesystem:
//
//	<base>/
//	  12/
//	    plot.png
//	  13/
//	    sage0.png
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFSStore creates a filesystem-backed artifact store rooted at basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("artifact base path is required")
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory %s: %w", basePath, err)
	}
	return &FSStore{basePath: basePath}, nil
}

func (s *FSStore) Driver() Driver { return DriverFilesystem }

// Path returns the on-disk location for key.
func (s *FSStore) Path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Put writes data under key.
func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

// Get returns the bytes stored under key.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 - key is validated and joined under basePath
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// List returns the keys beginning with prefix.
func (s *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listUnlocked(prefix)
}

func (s *FSStore) listUnlocked(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix removes every artifact under prefix. A prefix ending in "/"
// removes the whole directory.
func (s *FSStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.listUnlocked(prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove artifact %s: %w", key, err)
		}
		removed++
	}
	if strings.HasSuffix(prefix, "/") && prefix != "/" {
		if err := validateKey(strings.TrimSuffix(prefix, "/")); err == nil {
			_ = os.RemoveAll(s.Path(strings.TrimSuffix(prefix, "/")))
		}
	}
	return removed, nil
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("invalid artifact key %q", key)
		}
	}
	return nil
}

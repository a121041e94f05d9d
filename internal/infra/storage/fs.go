// Package storage provides the blob store for uploaded source bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmobrien1/mdraft/internal/contenthash"
	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
)

var _ adapter.BlobStore = (*FSStore)(nil)

// FSStore is a content-addressed filesystem blob store. A blob's ref is its
// digest, fanned out over a two-character prefix directory, so identical
// uploads share one file on disk.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := contenthash.SumBytes(data)
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return ref, nil // already stored
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return ref, nil
}

func (s *FSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *FSStore) Exists(ctx context.Context, ref string) (bool, error) {
	path, err := s.path(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FSStore) Delete(ctx context.Context, ref string) (bool, error) {
	path, err := s.path(ref)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FSStore) path(ref string) (string, error) {
	if len(ref) < 3 || strings.ContainsAny(ref, "/\\.") {
		return "", domain.ErrInvalidArgument
	}
	return filepath.Join(s.root, ref[:2], ref), nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStore keeps each object as a file below root. Slash-separated object
// names map onto subdirectories.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root %s: %w", root, err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object name %q escapes store root", name)
	}
	return filepath.Join(s.root, clean), nil
}

func notFound(op, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", op, name, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}

func (s *DirStore) ContainerExists(ctx context.Context, name string) bool {
	p, err := s.path(name)
	if err != nil {
		return false
	}

	stat, err := os.Stat(p)
	if err != nil {
		return false
	}
	return stat.IsDir()
}

func (s *DirStore) CreateContainer(ctx context.Context, name string, recursive bool) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	if recursive {
		err = os.MkdirAll(p, 0o755)
	} else {
		err = os.Mkdir(p, 0o755)
	}
	if err != nil {
		return notFound("create container", name, err)
	}

	return nil
}

func (s *DirStore) LoadObject(ctx context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, notFound("load", name, err)
	}
	return data, nil
}

// SaveObject replaces the object through a temp file and rename, so readers
// never observe a half-written object.
func (s *DirStore) SaveObject(ctx context.Context, name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp*")
	if err != nil {
		return notFound("save", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", name, err)
	}

	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", name, err)
	}

	return nil
}

func (s *DirStore) RemoveObject(ctx context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		return notFound("remove", name, err)
	}
	return nil
}

func (s *DirStore) LoadText(ctx context.Context, name string) (string, error) {
	data, err := s.LoadObject(ctx, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *DirStore) SaveText(ctx context.Context, name string, text string) error {
	return s.SaveObject(ctx, name, []byte(text))
}

func (s *DirStore) Close() error {
	return nil
}

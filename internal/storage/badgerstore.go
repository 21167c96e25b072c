package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

type BadgerStore struct {
	db *badger.DB
	mu sync.RWMutex
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	return openBadger(opts)
}

// NewInMemoryBadgerStore keeps everything in RAM; useful for tests.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

func objectKey(name string) []byte {
	return []byte("obj:" + name)
}

func containerKey(name string) []byte {
	return []byte("dir:" + strings.Trim(name, "/"))
}

func (s *BadgerStore) ContainerExists(ctx context.Context, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(containerKey(name))
		return err
	})
	return err == nil
}

func (s *BadgerStore) CreateContainer(ctx context.Context, name string, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(strings.Trim(name, "/"), "/")

	err := s.db.Update(func(txn *badger.Txn) error {
		for i := 1; i < len(parts); i++ {
			parent := containerKey(strings.Join(parts[:i], "/"))
			_, err := txn.Get(parent)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if !recursive {
				return fmt.Errorf("parent %s: %w", parent, ErrNotFound)
			}
			if err := txn.Set(parent, []byte{}); err != nil {
				return err
			}
		}
		return txn.Set(containerKey(name), []byte{})
	})
	if err != nil {
		return fmt.Errorf("create container %s: %w", name, err)
	}

	return nil
}

func (s *BadgerStore) LoadObject(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(name))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			result = make([]byte, len(val))
			copy(result, val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("load %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	return result, nil
}

func (s *BadgerStore) SaveObject(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(objectKey(name), data)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}

	return nil
}

func (s *BadgerStore) RemoveObject(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey(name)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("remove %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	return nil
}

func (s *BadgerStore) LoadText(ctx context.Context, name string) (string, error) {
	data, err := s.LoadObject(ctx, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *BadgerStore) SaveText(ctx context.Context, name string, text string) error {
	return s.SaveObject(ctx, name, []byte(text))
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Close()
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type MemStore struct {
	mu         sync.RWMutex
	objects    map[string][]byte
	containers map[string]struct{}

	failLoad map[string]error
	failSave map[string]error
	saves    []string
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects:    make(map[string][]byte),
		containers: make(map[string]struct{}),
		failLoad:   make(map[string]error),
		failSave:   make(map[string]error),
	}
}

// FailLoad makes every LoadObject/LoadText of name return err until cleared
// with a nil err.
func (s *MemStore) FailLoad(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failLoad, name)
		return
	}
	s.failLoad[name] = err
}

// FailSave is the save-side counterpart of FailLoad.
func (s *MemStore) FailSave(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failSave, name)
		return
	}
	s.failSave[name] = err
}

// Saves returns the names passed to SaveObject/SaveText, in call order,
// including saves that failed.
func (s *MemStore) Saves() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.saves...)
}

// Names lists the stored object names in sorted order.
func (s *MemStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.objects))
	for name := range s.objects {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func (s *MemStore) ContainerExists(ctx context.Context, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.containers[name]
	return exists
}

func (s *MemStore) CreateContainer(ctx context.Context, name string, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failSave[name]; ok {
		return fmt.Errorf("create container %s: %w", name, err)
	}

	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i := 1; i < len(parts); i++ {
		parent := strings.Join(parts[:i], "/")
		if _, exists := s.containers[parent]; !exists {
			if !recursive {
				return fmt.Errorf("create container %s: parent %s: %w", name, parent, ErrNotFound)
			}
			s.containers[parent] = struct{}{}
		}
	}

	s.containers[name] = struct{}{}
	return nil
}

func (s *MemStore) LoadObject(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.failLoad[name]; ok {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	data, exists := s.objects[name]
	if !exists {
		return nil, fmt.Errorf("load %s: %w", name, ErrNotFound)
	}

	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

func (s *MemStore) SaveObject(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves = append(s.saves, name)
	if err, ok := s.failSave[name]; ok {
		return fmt.Errorf("save %s: %w", name, err)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[name] = stored
	return nil
}

func (s *MemStore) RemoveObject(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failSave[name]; ok {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	if _, exists := s.objects[name]; !exists {
		return fmt.Errorf("remove %s: %w", name, ErrNotFound)
	}

	delete(s.objects, name)
	return nil
}

func (s *MemStore) LoadText(ctx context.Context, name string) (string, error) {
	data, err := s.LoadObject(ctx, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *MemStore) SaveText(ctx context.Context, name string, text string) error {
	return s.SaveObject(ctx, name, []byte(text))
}

func (s *MemStore) Close() error {
	return nil
}

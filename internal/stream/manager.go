package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sekai02/redcloud-pages/internal/pagefile"
	"github.com/sekai02/redcloud-pages/internal/storage"
)

var ErrInvalidName = errors.New("invalid stream name")

// ValidateName rejects names that would escape the page naming scheme.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.HasSuffix(name, ".stats.json"):
		return fmt.Errorf("%w: %q collides with size records", ErrInvalidName, name)
	}
	return nil
}

// Manager tracks the open streams of one backend by name.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]*pagefile.File
	backend storage.Backend
	opts    []pagefile.Option
}

func NewManager(backend storage.Backend, opts ...pagefile.Option) *Manager {
	return &Manager{
		streams: make(map[string]*pagefile.File),
		backend: backend,
		opts:    opts,
	}
}

// Acquire returns the open stream called name, opening it first if needed.
// The manager lock only guards the map; opening waits on the stream's own
// lock, so a busy stream never holds up the others.
func (m *Manager) Acquire(ctx context.Context, name string) (*pagefile.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	f, exists := m.streams[name]
	if !exists {
		f = pagefile.New(m.backend, name, m.opts...)
		m.streams[name] = f
	}
	m.mu.Unlock()

	if err := f.Open(ctx); err != nil {
		m.forget(name, f)
		return nil, fmt.Errorf("open stream %s: %w", name, err)
	}
	return f, nil
}

// forget drops name from the map if it still refers to f.
func (m *Manager) forget(name string, f *pagefile.File) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.streams[name] == f {
		delete(m.streams, name)
	}
}

func (m *Manager) Get(name string) (*pagefile.File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, exists := m.streams[name]
	return f, exists
}

// Release closes the stream and forgets it. Unknown names are a no-op.
func (m *Manager) Release(name string) error {
	m.mu.Lock()
	f, exists := m.streams[name]
	delete(m.streams, name)
	m.mu.Unlock()

	if !exists {
		return nil
	}
	return f.Close()
}

// Remove deletes the stream whether or not it is open.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	m.mu.RLock()
	f, exists := m.streams[name]
	m.mu.RUnlock()
	if !exists {
		f = pagefile.New(m.backend, name, m.opts...)
	}

	if err := f.Delete(ctx); err != nil {
		return fmt.Errorf("delete stream %s: %w", name, err)
	}

	if exists {
		m.forget(name, f)
		f.Close()
	}
	return nil
}

func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, 0, len(m.streams))
	for name := range m.streams {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func (m *Manager) CloseAll() error {
	m.mu.Lock()
	streams := m.streams
	m.streams = make(map[string]*pagefile.File)
	m.mu.Unlock()

	var errs []error
	for name, f := range streams {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

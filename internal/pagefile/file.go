package pagefile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sekai02/redcloud-pages/internal/metrics"
	"github.com/sekai02/redcloud-pages/internal/paging"
	"github.com/sekai02/redcloud-pages/internal/persistence"
	"github.com/sekai02/redcloud-pages/internal/storage"
	"github.com/sekai02/redcloud-pages/internal/sys"
)

var (
	ErrNotOpen      = errors.New("stream is not open")
	ErrInvalidRange = errors.New("negative offset or length")
)

type State int

const (
	StateUnopened State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Stats = persistence.Stats

// File is a random-access byte stream stored as fixed-size page objects in
// a Backend. All methods are serialized on an internal mutex; the pages of a
// single read or write are processed one at a time in page order.
//
// Multi-page writes are not atomic: a failure part way through leaves some
// pages updated and others not.
type File struct {
	mu      sync.Mutex
	backend storage.Backend
	name    string
	pages   paging.Translator
	logger  *slog.Logger
	purge   bool

	state State
	stats Stats
}

type Option func(*File)

func WithLogger(logger *slog.Logger) Option {
	return func(f *File) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithPageSize overrides sys.PageSize. Every File sharing a stream name must
// use the same page size.
func WithPageSize(size int) Option {
	return func(f *File) {
		f.pages = paging.New(size)
	}
}

// WithPurge makes Delete also remove the stream's page objects and size
// record.
func WithPurge(purge bool) Option {
	return func(f *File) {
		f.purge = purge
	}
}

func New(backend storage.Backend, name string, opts ...Option) *File {
	f := &File{
		backend: backend,
		name:    name,
		pages:   paging.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("stream", name)
	return f
}

func (f *File) Name() string {
	return f.name
}

func (f *File) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// Open loads the size record and makes sure the page container exists. A
// missing or unreadable size record starts the stream at size 0.
func (f *File) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateOpen {
		return nil
	}
	metrics.StreamOp("open")

	f.stats = f.loadStats(ctx)

	if !f.backend.ContainerExists(ctx, sys.DataDir) {
		if err := f.backend.CreateContainer(ctx, sys.DataDir, true); err != nil {
			return fmt.Errorf("create %s container: %w", sys.DataDir, err)
		}
	}

	f.state = StateOpen
	return nil
}

func (f *File) loadStats(ctx context.Context) Stats {
	text, err := f.backend.LoadText(ctx, paging.StatsName(f.name))
	if err != nil {
		f.logger.Warn("Failed to load stats, starting at size 0", "error", err)
		return Stats{}
	}

	stats, err := persistence.DecodeStats(text)
	if err != nil {
		f.logger.Warn("Failed to parse stats, starting at size 0", "error", err)
		return Stats{}
	}

	return stats
}

func (f *File) saveStats(ctx context.Context) error {
	text, err := persistence.EncodeStats(f.stats)
	if err != nil {
		return err
	}

	if err := f.backend.SaveText(ctx, paging.StatsName(f.name), text); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// Stat reports the size as of the last Open or Write.
func (f *File) Stat() (Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateOpen {
		return Stats{}, ErrNotOpen
	}
	return f.stats, nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateOpen {
		metrics.StreamOp("close")
		f.state = StateClosed
	}
	return nil
}

// Delete removes the object named after the stream. It may be called in any
// state. The stream's own name is never written by File, so its absence is
// not an error. Pages and the size record stay behind unless the File was
// built with WithPurge.
func (f *File) Delete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	metrics.StreamOp("delete")

	if err := f.backend.RemoveObject(ctx, f.name); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.PageIO(metrics.OpRemove, metrics.ResultError)
			return fmt.Errorf("remove %s: %w", f.name, err)
		}
	}

	if f.purge {
		f.purgeObjects(ctx)
	}

	return nil
}

func (f *File) purgeObjects(ctx context.Context) {
	size := f.stats.Size
	if f.state != StateOpen {
		size = f.loadStats(ctx).Size
	}

	count := f.pages.PageCount(size)
	for page := int64(0); page < count; page++ {
		f.removeQuietly(ctx, paging.PageName(f.name, page))
	}
	f.removeQuietly(ctx, paging.StatsName(f.name))

	if f.state == StateOpen {
		f.stats = Stats{}
	}
	f.logger.Info("Purged stream", "pages", count)
}

func (f *File) removeQuietly(ctx context.Context, name string) {
	err := f.backend.RemoveObject(ctx, name)
	switch {
	case err == nil:
		metrics.PageIO(metrics.OpRemove, metrics.ResultOK)
	case errors.Is(err, storage.ErrNotFound):
		metrics.PageIO(metrics.OpRemove, metrics.ResultMissing)
	default:
		metrics.PageIO(metrics.OpRemove, metrics.ResultError)
		f.logger.Error("Failed to remove object", "object", name, "error", err)
	}
}

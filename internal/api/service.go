package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sekai02/redcloud-pages/internal/pagefile"
	"github.com/sekai02/redcloud-pages/internal/stream"
	"github.com/sekai02/redcloud-pages/pkg/pagefs"
)

var _ pagefs.API = (*Service)(nil)

type Service struct {
	streams *stream.Manager
}

func NewService(streams *stream.Manager) *Service {
	return &Service{
		streams: streams,
	}
}

func (s *Service) Open(ctx context.Context, name string) error {
	_, err := s.streams.Acquire(ctx, name)
	return err
}

func (s *Service) Read(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	f, err := s.streams.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}

	data, err := f.Read(ctx, offset, length)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", name, err)
	}

	return data, nil
}

func (s *Service) ReadPartial(ctx context.Context, name string, offset, length int64) (pagefile.PartialRead, error) {
	f, err := s.streams.Acquire(ctx, name)
	if err != nil {
		return pagefile.PartialRead{}, err
	}

	result, err := f.ReadPartial(ctx, offset, length)
	if err != nil {
		return pagefile.PartialRead{}, fmt.Errorf("read stream %s: %w", name, err)
	}

	return result, nil
}

func (s *Service) Write(ctx context.Context, name string, offset int64, data []byte) (int, error) {
	f, err := s.streams.Acquire(ctx, name)
	if err != nil {
		return 0, err
	}

	result, err := f.WriteReport(ctx, offset, data)
	if err != nil {
		return result.N, fmt.Errorf("write stream %s: %w", name, err)
	}

	if len(result.Failed) > 0 {
		slog.Warn("Write accepted with unsaved pages", "stream", name, "failed", len(result.Failed))
	}
	return result.N, nil
}

func (s *Service) Stat(ctx context.Context, name string) (pagefile.Stats, error) {
	f, err := s.streams.Acquire(ctx, name)
	if err != nil {
		return pagefile.Stats{}, err
	}

	return f.Stat()
}

func (s *Service) Close(ctx context.Context, name string) error {
	return s.streams.Release(name)
}

func (s *Service) Delete(ctx context.Context, name string) error {
	return s.streams.Remove(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.streams.List(), nil
}

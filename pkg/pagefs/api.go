package pagefs

import (
	"context"

	"github.com/sekai02/redcloud-pages/internal/pagefile"
)

type Stats = pagefile.Stats

type PartialRead = pagefile.PartialRead

// StreamAPI addresses paged streams by name. Streams open on first use.
type StreamAPI interface {
	Open(ctx context.Context, name string) error
	Read(ctx context.Context, name string, offset, length int64) ([]byte, error)
	Write(ctx context.Context, name string, offset int64, data []byte) (int, error)
	Stat(ctx context.Context, name string) (Stats, error)
	Close(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
}

// InspectAPI exposes page faults that StreamAPI absorbs.
type InspectAPI interface {
	ReadPartial(ctx context.Context, name string, offset, length int64) (PartialRead, error)
	List(ctx context.Context) ([]string, error)
}

type API interface {
	StreamAPI
	InspectAPI
}

package pagefile

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sekai02/redcloud-pages/internal/metrics"
	"github.com/sekai02/redcloud-pages/internal/paging"
	"github.com/sekai02/redcloud-pages/internal/storage"
)

// PageFault records a page that could not be loaded or saved.
type PageFault struct {
	Page int64
	Name string
	Err  error
}

func (e *PageFault) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Page, e.Name, e.Err)
}

func (e *PageFault) Unwrap() error {
	return e.Err
}

// PartialRead is the result of a read that may have stopped early. Fault is
// nil when every planned page was served.
type PartialRead struct {
	Data  []byte
	Fault *PageFault
}

func (r PartialRead) Complete() bool {
	return r.Fault == nil
}

type WriteResult struct {
	N      int
	Failed []PageFault
}

func (f *File) loadPage(ctx context.Context, name string) ([]byte, error) {
	raw, err := f.backend.LoadObject(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.PageIO(metrics.OpLoad, metrics.ResultMissing)
		} else {
			metrics.PageIO(metrics.OpLoad, metrics.ResultError)
		}
		return nil, err
	}

	payload, err := DecodePage(raw)
	if err != nil {
		metrics.PageIO(metrics.OpLoad, metrics.ResultCorrupt)
		return nil, err
	}

	metrics.PageIO(metrics.OpLoad, metrics.ResultOK)
	return payload, nil
}

// slicePayload returns payload[off:off+n], shortened to the bytes that exist.
func slicePayload(payload []byte, off, n int) []byte {
	if off >= len(payload) {
		return nil
	}
	end := off + n
	if end > len(payload) {
		end = len(payload)
	}
	return payload[off:end]
}

// Read returns up to n bytes starting at off. A page that cannot be loaded
// ends the read: the bytes gathered so far are returned without an error.
func (f *File) Read(ctx context.Context, off, n int64) ([]byte, error) {
	result, err := f.ReadPartial(ctx, off, n)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// ReadPartial is Read with the page fault that cut the read short, if any.
func (f *File) ReadPartial(ctx context.Context, off, n int64) (PartialRead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateOpen {
		return PartialRead{}, ErrNotOpen
	}
	if off < 0 || n < 0 {
		return PartialRead{}, ErrInvalidRange
	}
	metrics.StreamOp("read")

	result := PartialRead{Data: []byte{}}
	f.pages.WalkRead(n, off, func(chunk paging.ReadChunk) bool {
		name := paging.PageName(f.name, chunk.Page)

		payload, err := f.loadPage(ctx, name)
		if err != nil {
			f.logger.Warn("Failed to read page, returning partial data", "page", name, "have", len(result.Data), "error", err)
			result.Fault = &PageFault{Page: chunk.Page, Name: name, Err: err}
			metrics.PartialRead()
			return false
		}

		result.Data = append(result.Data, slicePayload(payload, chunk.Offset, chunk.Length)...)
		return true
	})

	metrics.BytesRead(len(result.Data))
	return result, nil
}

// Write stores p at off and returns len(p). Pages that fail to save are
// logged and skipped; the size record is advanced regardless.
func (f *File) Write(ctx context.Context, off int64, p []byte) (int, error) {
	result, err := f.WriteReport(ctx, off, p)
	return result.N, err
}

// WriteReport is Write with the list of pages that did not persist.
func (f *File) WriteReport(ctx context.Context, off int64, p []byte) (WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateOpen {
		return WriteResult{}, ErrNotOpen
	}
	if off < 0 || off > math.MaxInt64-int64(len(p)) {
		return WriteResult{}, ErrInvalidRange
	}
	metrics.StreamOp("write")

	var result WriteResult
	for _, chunk := range f.pages.PlanWrite(p, off) {
		name := paging.PageName(f.name, chunk.Page)

		page := make([]byte, f.pages.PageSize)
		payload, err := f.loadPage(ctx, name)
		if err != nil {
			f.logger.Debug("Page not readable, starting from zeros", "page", name, "error", err)
		} else {
			copy(page, payload)
		}

		copy(page[chunk.Offset:], chunk.Data)

		if err := f.backend.SaveObject(ctx, name, EncodePage(page)); err != nil {
			metrics.PageIO(metrics.OpSave, metrics.ResultError)
			f.logger.Error("Failed to save page", "page", name, "error", err)
			result.Failed = append(result.Failed, PageFault{Page: chunk.Page, Name: name, Err: err})
			continue
		}
		metrics.PageIO(metrics.OpSave, metrics.ResultOK)
	}

	result.N = len(p)
	metrics.BytesWritten(len(p))

	if end := off + int64(len(p)); end > f.stats.Size {
		f.stats.Size = end
	}
	if err := f.saveStats(ctx); err != nil {
		f.logger.Error("Failed to persist stats", "size", f.stats.Size, "error", err)
		return result, err
	}

	return result, nil
}

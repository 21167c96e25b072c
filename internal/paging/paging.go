package paging

import (
	"strconv"

	"github.com/sekai02/redcloud-pages/internal/sys"
)

// WriteChunk is the part of a write buffer that lands in a single page.
type WriteChunk struct {
	Page   int64
	Offset int
	Data   []byte
}

// ReadChunk is the part of a read range served by a single page.
type ReadChunk struct {
	Page   int64
	Offset int
	Length int
}

// Translator maps logical byte ranges onto fixed-size pages. It does no I/O.
type Translator struct {
	PageSize int
}

func New(pageSize int) Translator {
	if pageSize <= 0 {
		pageSize = sys.PageSize
	}
	return Translator{PageSize: pageSize}
}

func Default() Translator {
	return Translator{PageSize: sys.PageSize}
}

func (t Translator) locate(off int64) (int64, int) {
	size := int64(t.PageSize)
	return off / size, int(off % size)
}

// PlanWrite splits p into page-local chunks starting at logical offset off.
// Chunks are returned in increasing page order and cover p exactly once.
func (t Translator) PlanWrite(p []byte, off int64) []WriteChunk {
	if off < 0 || len(p) == 0 {
		return nil
	}

	pageIdx, pageOff := t.locate(off)
	chunks := make([]WriteChunk, 0, 1+len(p)/t.PageSize+1)
	written := 0

	for written < len(p) {
		toWrite := t.PageSize - pageOff
		if remaining := len(p) - written; toWrite > remaining {
			toWrite = remaining
		}

		chunks = append(chunks, WriteChunk{
			Page:   pageIdx,
			Offset: pageOff,
			Data:   p[written : written+toWrite],
		})

		written += toWrite
		pageIdx++
		pageOff = 0
	}

	return chunks
}

// maxPlanHint bounds the capacity PlanRead reserves up front.
const maxPlanHint = 64

// PlanRead splits the range [off, off+n) into page-local reads.
func (t Translator) PlanRead(n, off int64) []ReadChunk {
	if off < 0 || n <= 0 {
		return nil
	}

	hint := n/int64(t.PageSize) + 2
	if hint > maxPlanHint {
		hint = maxPlanHint
	}
	chunks := make([]ReadChunk, 0, hint)
	t.WalkRead(n, off, func(chunk ReadChunk) bool {
		chunks = append(chunks, chunk)
		return true
	})
	return chunks
}

// WalkRead calls fn for each page-local read of [off, off+n) in page order
// and stops early when fn returns false. Nothing is allocated per page, so
// the cost follows the pages visited rather than n.
func (t Translator) WalkRead(n, off int64, fn func(ReadChunk) bool) {
	if off < 0 || n <= 0 {
		return
	}

	pageIdx, pageOff := t.locate(off)
	remaining := n

	for remaining > 0 {
		toRead := int64(t.PageSize - pageOff)
		if toRead > remaining {
			toRead = remaining
		}

		if !fn(ReadChunk{Page: pageIdx, Offset: pageOff, Length: int(toRead)}) {
			return
		}

		remaining -= toRead
		pageIdx++
		pageOff = 0
	}
}

// PageCount returns how many pages are needed to hold size bytes.
func (t Translator) PageCount(size int64) int64 {
	if size <= 0 {
		return 0
	}
	ps := int64(t.PageSize)
	return (size + ps - 1) / ps
}

func PageName(stream string, page int64) string {
	return sys.DataDir + "/" + strconv.FormatInt(page, 10) + "_" + stream
}

func StatsName(stream string) string {
	return stream + ".stats.json"
}

package pagefile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sekai02/redcloud-pages/internal/sys"
)

var ErrShortPage = errors.New("page shorter than length prefix")

// EncodePage frames payload as [u32 big-endian length][payload].
func EncodePage(payload []byte) []byte {
	buf := make([]byte, sys.PrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[sys.PrefixSize:], payload)
	return buf
}

// DecodePage returns the valid payload of a page object. Bytes past the
// recorded length are padding and are dropped; a prefix larger than the
// stored payload is clamped to what is actually there.
func DecodePage(raw []byte) ([]byte, error) {
	if len(raw) < sys.PrefixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPage, len(raw))
	}

	length := binary.BigEndian.Uint32(raw)
	payload := raw[sys.PrefixSize:]
	if uint64(length) < uint64(len(payload)) {
		payload = payload[:length]
	}

	return payload, nil
}

package persistence

import (
	"encoding/json"
	"fmt"
)

// Stats is the persisted size record of one stream.
type Stats struct {
	Size int64 `json:"size"`
}

func EncodeStats(stats Stats) (string, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}

	return string(data), nil
}

func DecodeStats(text string) (Stats, error) {
	var stats Stats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		return Stats{}, fmt.Errorf("unmarshal stats: %w", err)
	}

	if stats.Size < 0 {
		return Stats{}, fmt.Errorf("unmarshal stats: negative size %d", stats.Size)
	}

	return stats, nil
}

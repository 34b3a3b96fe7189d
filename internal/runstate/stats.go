package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Stats accumulates processing statistics across runs.
type Stats struct {
	TotalRuns      int       `json:"total_runs"`
	SuccessfulRuns int       `json:"successful_runs"`
	ItemsCompleted int       `json:"items_completed"`
	ItemsFailed    int       `json:"items_failed"`
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunID      string    `json:"last_run_id,omitempty"`
}

// LoadStats reads accumulated statistics; a missing file yields zero stats.
func LoadStats(path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Stats{}, nil
		}
		return nil, fmt.Errorf("read stats: %w", err)
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &stats, nil
}

// SaveStats writes accumulated statistics.
func SaveStats(path string, stats *Stats) error {
	if stats == nil {
		return errors.New("stats is nil")
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

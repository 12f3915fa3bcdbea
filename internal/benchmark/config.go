package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/user/rsalab/internal/engine"
)

type Config struct {
	KeySizes     []int `json:"key_sizes"`
	Iterations   int   `json:"iterations"`
	Parallel     int   `json:"parallel"`
	ShowProgress bool  `json:"show_progress"`
	Timeout      int   `json:"timeout"`
	Verbose      bool  `json:"verbose"`
}

// Validate checks the config against the engine's key size range.
func (c Config) Validate(minBits, maxBits int) error {
	if len(c.KeySizes) == 0 {
		return fmt.Errorf("at least one key size is required")
	}
	for _, size := range c.KeySizes {
		if size < minBits {
			return fmt.Errorf("key size %d is below the %d-bit minimum", size, minBits)
		}
		if size > maxBits {
			return fmt.Errorf("key size %d is above the %d-bit maximum", size, maxBits)
		}
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1")
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Result holds timings only; generated keys are discarded.
type Result struct {
	KeySize       int            `json:"key_size"`
	Iterations    int            `json:"iterations"`
	Parallel      int            `json:"parallel"`
	TotalTime     time.Duration  `json:"total_time"`
	AverageTime   time.Duration  `json:"average_time"`
	MinTime       time.Duration  `json:"min_time"`
	MaxTime       time.Duration  `json:"max_time"`
	StdDev        time.Duration  `json:"std_dev"`
	KeysPerSecond float64        `json:"keys_per_second"`
	CPUUsage      float64        `json:"cpu_usage"`
	MemoryUsed    uint64         `json:"memory_used"`
	Errors        int            `json:"errors"`
	ErrorKinds    map[string]int `json:"error_kinds,omitempty"`
	CompletedAt   time.Time      `json:"completed_at"`
}

// Generated is the number of keys that were produced successfully.
func (r Result) Generated() int {
	return r.Iterations*r.Parallel - r.Errors
}

type ProgressUpdate struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Rate       float64 `json:"rate"`
	KeySize    int     `json:"key_size"`
}

// KeyGenerator is the part of the engine the runner drives.
type KeyGenerator interface {
	GenerateRSAKey(ctx context.Context, bits int) (*engine.KeyPair, error)
	MinBits() int
	MaxBits() int
}

var _ KeyGenerator = (*engine.Engine)(nil)

package rslimiter

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/aleister1102/codetriage/internal/config"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceLimiter guards ingestion against memory pressure. Submissions of
// large analyzer result sets call WaitForCapacity before buffering; when
// process or system memory is above threshold the caller is throttled
// until pressure drops or the context is cancelled.
type ResourceLimiter struct {
	config config.ResourceLimiterConfig
	logger zerolog.Logger
}

// NewResourceLimiter creates a new resource limiter
func NewResourceLimiter(cfg config.ResourceLimiterConfig, logger zerolog.Logger) *ResourceLimiter {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.MaxMemoryMB == 0 {
		cfg.MaxMemoryMB = 1024
	}
	if cfg.SystemMemThreshold == 0 {
		cfg.SystemMemThreshold = 0.9
	}

	return &ResourceLimiter{
		config: cfg,
		logger: logger.With().Str("component", "ResourceLimiter").Logger(),
	}
}

// CheckMemoryLimit checks if current process memory usage exceeds the limit
func (rl *ResourceLimiter) CheckMemoryLimit() error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	currentMB := int64(m.Alloc / 1024 / 1024)
	if currentMB > rl.config.MaxMemoryMB {
		return fmt.Errorf("memory limit exceeded: current %dMB > limit %dMB", currentMB, rl.config.MaxMemoryMB)
	}
	return nil
}

// CheckSystemMemory reports whether system memory usage exceeds the
// configured threshold.
func (rl *ResourceLimiter) CheckSystemMemory() (bool, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return false, fmt.Errorf("failed to get system memory stats: %w", err)
	}
	return vmStat.UsedPercent/100.0 >= rl.config.SystemMemThreshold, nil
}

// WaitForCapacity blocks while memory pressure is above threshold. It
// returns nil once there is headroom and the context error when cancelled.
func (rl *ResourceLimiter) WaitForCapacity(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}

	for {
		processOverLimit := rl.CheckMemoryLimit() != nil

		systemOverLimit, err := rl.CheckSystemMemory()
		if err != nil {
			// Stats failure must not stall ingestion.
			rl.logger.Warn().Err(err).Msg("System memory check failed, skipping throttle")
			return nil
		}

		if !processOverLimit && !systemOverLimit {
			return nil
		}

		rl.logger.Warn().
			Bool("process_over_limit", processOverLimit).
			Bool("system_over_limit", systemOverLimit).
			Dur("retry_in", rl.config.CheckInterval).
			Msg("Memory pressure high, throttling ingestion")
		runtime.GC()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.config.CheckInterval):
		}
	}
}

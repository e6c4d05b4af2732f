// Package resource enforces static resource limits and paces outbound traffic.
package resource

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/time/rate"

	"github.com/odin-rtps/rtps/internal/config"
	"github.com/odin-rtps/rtps/internal/telemetry"
)

// Guard enforces static resource limits and prevents participant overload.
//
// Unlike an auto-tuning capacity manager, Guard does not calculate limits
// from measurements or adjust them over time. It enforces the configured
// limits, paces discovery announcements and outbound traffic, and provides
// emergency brakes on CPU and memory.
type Guard struct {
	config config.Config
	logger zerolog.Logger

	announceLimiter *rate.Limiter // paces SPDP/SEDP announcements
	outboundLimiter *rate.Limiter // paces general outbound submessages

	goroutineLimiter *GoroutineLimiter

	currentCPU    atomic.Value // float64
	currentMemory atomic.Value // int64 (bytes)
}

// GoroutineLimiter limits concurrent goroutines using a semaphore.
type GoroutineLimiter struct {
	sem chan struct{}
	max int
}

// NewGoroutineLimiter creates a limiter that allows max concurrent goroutines.
func NewGoroutineLimiter(max int) *GoroutineLimiter {
	return &GoroutineLimiter{
		sem: make(chan struct{}, max),
		max: max,
	}
}

// Acquire attempts to acquire a goroutine slot. Returns false if at limit.
func (gl *GoroutineLimiter) Acquire() bool {
	select {
	case gl.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release releases a goroutine slot.
func (gl *GoroutineLimiter) Release() {
	<-gl.sem
}

// Current returns the current number of active goroutines held by the limiter.
func (gl *GoroutineLimiter) Current() int { return len(gl.sem) }

// Max returns the maximum allowed goroutines.
func (gl *GoroutineLimiter) Max() int { return gl.max }

// NewGuard creates a new resource guard from static configuration.
func NewGuard(cfg config.Config, logger zerolog.Logger) *Guard {
	announceLimiter := rate.NewLimiter(
		rate.Limit(cfg.MaxAnnounceRate),
		cfg.MaxAnnounceRate*2,
	)
	outboundLimiter := rate.NewLimiter(
		rate.Limit(cfg.MaxOutboundRate),
		cfg.MaxOutboundRate*2,
	)

	g := &Guard{
		config:           cfg,
		logger:           logger,
		announceLimiter:  announceLimiter,
		outboundLimiter:  outboundLimiter,
		goroutineLimiter: NewGoroutineLimiter(cfg.MaxGoroutines),
	}
	g.currentCPU.Store(0.0)
	g.currentMemory.Store(int64(0))

	logger.Info().
		Float64("cpu_limit", cfg.CPULimit).
		Int64("memory_limit", cfg.MemoryLimit).
		Int("max_announce_rate", cfg.MaxAnnounceRate).
		Int("max_outbound_rate", cfg.MaxOutboundRate).
		Int("max_goroutines", cfg.MaxGoroutines).
		Msg("resource guard initialized")

	return g
}

// ShouldAcceptEndpoint checks whether a new local DataWriter or DataReader
// may be created.
//
// Checks (in order):
//  1. CPU emergency brake
//  2. Memory emergency brake
//  3. Goroutine limit
func (g *Guard) ShouldAcceptEndpoint() (accept bool, reason string) {
	currentCPU := g.currentCPU.Load().(float64)
	currentMemory := g.currentMemory.Load().(int64)
	currentGoros := runtime.NumGoroutine()

	if currentCPU > g.config.CPURejectThreshold {
		telemetry.IncrementCapacityRejection("cpu_overload")
		g.logger.Warn().
			Float64("current_cpu", currentCPU).
			Float64("threshold", g.config.CPURejectThreshold).
			Msg("endpoint rejected: CPU overload")
		return false, fmt.Sprintf("CPU %.1f%% > %.1f%%", currentCPU, g.config.CPURejectThreshold)
	}

	if currentMemory > g.config.MemoryLimit {
		telemetry.IncrementCapacityRejection("memory_limit")
		g.logger.Warn().
			Int64("current_memory_mb", currentMemory/(1024*1024)).
			Int64("limit_mb", g.config.MemoryLimit/(1024*1024)).
			Msg("endpoint rejected: memory limit exceeded")
		return false, "memory limit exceeded"
	}

	if currentGoros > g.config.MaxGoroutines {
		telemetry.IncrementCapacityRejection("goroutine_limit")
		g.logger.Warn().
			Int("current_goroutines", currentGoros).
			Int("max_goroutines", g.config.MaxGoroutines).
			Msg("endpoint rejected: goroutine limit exceeded")
		return false, fmt.Sprintf("goroutine limit exceeded (%d > %d)", currentGoros, g.config.MaxGoroutines)
	}

	return true, "OK"
}

// ShouldPauseDiscovery reports whether discovery processing should pause
// to shed load, giving inbound traffic backpressure when CPU is critically
// high.
func (g *Guard) ShouldPauseDiscovery() bool {
	return g.currentCPU.Load().(float64) > g.config.CPUPauseThreshold
}

// AllowAnnounce checks whether an SPDP/SEDP announcement should be sent now.
//
// Returns allow=true if it should be sent immediately. If the rate limit is
// exceeded, allow is false; if only delayed, waitDuration reports how long
// the caller should wait before retrying.
func (g *Guard) AllowAnnounce(ctx context.Context) (allow bool, waitDuration time.Duration) {
	reservation := g.announceLimiter.Reserve()
	if !reservation.OK() {
		return false, 0
	}
	delay := reservation.Delay()
	if delay == 0 {
		return true, 0
	}
	reservation.Cancel()
	return false, delay
}

// AllowOutbound checks whether a general outbound submessage should be sent
// now (rate limiting).
func (g *Guard) AllowOutbound() bool {
	return g.outboundLimiter.Allow()
}

// AcquireGoroutine attempts to acquire permission to start a new goroutine.
// Callers that acquire must call ReleaseGoroutine when the goroutine
// completes.
func (g *Guard) AcquireGoroutine() bool {
	acquired := g.goroutineLimiter.Acquire()
	if !acquired {
		g.logger.Warn().
			Int("current", g.goroutineLimiter.Current()).
			Int("max", g.goroutineLimiter.Max()).
			Msg("goroutine limit reached")
	}
	return acquired
}

// ReleaseGoroutine releases a goroutine slot acquired via AcquireGoroutine.
func (g *Guard) ReleaseGoroutine() {
	g.goroutineLimiter.Release()
}

// UpdateResources samples current CPU and memory usage. Call periodically
// (e.g. every config.MetricsInterval) to keep resource state current.
func (g *Guard) UpdateResources() {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		telemetry.LogError(g.logger, err, "failed to sample CPU usage", nil)
	} else if len(cpuPercent) > 0 {
		g.currentCPU.Store(cpuPercent[0])
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.currentMemory.Store(int64(mem.Alloc))

	telemetry.SetCPUUsagePercent(g.currentCPU.Load().(float64))
	telemetry.SetMemoryUsageBytes(g.currentMemory.Load().(int64))
	telemetry.SetGoroutinesActive(runtime.NumGoroutine())
}

// StartMonitoring begins periodic resource sampling until ctx is cancelled.
// A non-positive interval falls back to 15s rather than panicking, so a
// Config built without going through config.Load (and its envDefault tags)
// still monitors at a sane rate.
func (g *Guard) StartMonitoring(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				g.UpdateResources()

				currentCPU := g.currentCPU.Load().(float64)
				currentMemory := g.currentMemory.Load().(int64)

				cpuHeadroom := g.config.CPURejectThreshold - currentCPU
				memHeadroom := 100.0
				if g.config.MemoryLimit > 0 {
					memHeadroom = 100.0 - (float64(currentMemory)/float64(g.config.MemoryLimit))*100
				}
				telemetry.UpdateCapacityHeadroom(cpuHeadroom, memHeadroom)

			case <-ctx.Done():
				g.logger.Info().Msg("resource guard monitoring stopped")
				return
			}
		}
	}()

	g.logger.Info().Dur("interval", interval).Msg("resource guard monitoring started")
}

// Stats returns current resource statistics for diagnostics.
func (g *Guard) Stats() map[string]any {
	return map[string]any{
		"cpu_percent":          g.currentCPU.Load().(float64),
		"cpu_reject_threshold": g.config.CPURejectThreshold,
		"cpu_pause_threshold":  g.config.CPUPauseThreshold,
		"memory_bytes":         g.currentMemory.Load().(int64),
		"memory_limit_bytes":   g.config.MemoryLimit,
		"goroutines_current":   runtime.NumGoroutine(),
		"goroutines_limit":     g.config.MaxGoroutines,
		"announce_rate_limit":  g.config.MaxAnnounceRate,
		"outbound_rate_limit":  g.config.MaxOutboundRate,
	}
}

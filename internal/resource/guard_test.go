package resource

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/odin-rtps/rtps/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		CPULimit:           1.0,
		MemoryLimit:        512 * 1024 * 1024,
		MaxGoroutines:      1000,
		MaxAnnounceRate:    50,
		MaxOutboundRate:    2000,
		CPURejectThreshold: 75.0,
		CPUPauseThreshold:  80.0,
	}
}

func TestShouldAcceptEndpointRejectsOnMemoryLimit(t *testing.T) {
	g := NewGuard(testConfig(), zerolog.Nop())
	g.currentMemory.Store(int64(600 * 1024 * 1024))

	accept, reason := g.ShouldAcceptEndpoint()

	assert.False(t, accept)
	assert.Equal(t, "memory limit exceeded", reason)
}

func TestShouldAcceptEndpointRejectsOnCPUOverload(t *testing.T) {
	g := NewGuard(testConfig(), zerolog.Nop())
	g.currentCPU.Store(90.0)

	accept, _ := g.ShouldAcceptEndpoint()

	assert.False(t, accept)
}

func TestShouldAcceptEndpointAllowsWithinLimits(t *testing.T) {
	g := NewGuard(testConfig(), zerolog.Nop())

	accept, reason := g.ShouldAcceptEndpoint()

	assert.True(t, accept)
	assert.Equal(t, "OK", reason)
}

func TestShouldPauseDiscoveryAboveThreshold(t *testing.T) {
	g := NewGuard(testConfig(), zerolog.Nop())
	g.currentCPU.Store(85.0)

	assert.True(t, g.ShouldPauseDiscovery())
}

func TestGoroutineLimiterAcquireRelease(t *testing.T) {
	gl := NewGoroutineLimiter(1)

	assert.True(t, gl.Acquire())
	assert.False(t, gl.Acquire())

	gl.Release()
	assert.True(t, gl.Acquire())
}

func TestAllowAnnounceExhaustsBurst(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAnnounceRate = 1
	g := NewGuard(cfg, zerolog.Nop())

	ctx := context.Background()
	allowed := 0
	for i := 0; i < 4; i++ {
		if allow, _ := g.AllowAnnounce(ctx); allow {
			allowed++
		}
	}

	assert.Less(t, allowed, 4)
}

func TestAllowOutboundRespectsLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOutboundRate = 1
	g := NewGuard(cfg, zerolog.Nop())

	assert.True(t, g.AllowOutbound())
}

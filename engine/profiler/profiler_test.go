package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stage/engine/scene_host"
	"github.com/zeebo/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTickReportsAtInterval(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewProfiler(zap.New(core), WithInterval(20*time.Millisecond))

	stats := scene_host.Stats{Frame: 10, Consumed: 9, Timeline: 3, Backlog: 1, FreeTokens: 2}
	assert.False(t, p.Tick(stats))
	assert.Equal(t, logs.Len(), 0)

	time.Sleep(25 * time.Millisecond)
	assert.That(t, p.Tick(stats))
	assert.Equal(t, p.Reports(), 1)

	r := p.Last()
	assert.That(t, r.FPS > 0)
	assert.That(t, r.SysMB > 0)
	assert.Equal(t, r.Pipeline.Lag(), 1)

	entries := logs.All()
	assert.Equal(t, len(entries), 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, fields["lag"], uint64(1))
	assert.Equal(t, fields["timeline"], uint64(3))
	assert.Equal(t, fields["free_tokens"], int64(2))

	assert.False(t, p.Tick(stats))
}

func TestNilLoggerIsSafe(t *testing.T) {
	p := NewProfiler(nil, WithInterval(-1))
	assert.False(t, p.Tick(scene_host.Stats{}))
	assert.Equal(t, p.Reports(), 0)
}

// package profiler reports frame rate, memory and pipeline health at a fixed interval.
package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-stage/engine/scene_host"
	"go.uber.org/zap"
)

// Report is one interval's worth of measurements.
type Report struct {
	FPS         float64
	HeapMB      float64
	SysMB       float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	Pipeline    scene_host.Stats
}

// Profiler tracks frame rate, memory statistics and pipeline state for performance monitoring.
// Outputs a structured log line at a configurable interval.
type Profiler struct {
	log            *zap.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Report
	reports        int
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - log: where reports are written
//   - options: variadic list of ProfilerBuilderOption functions to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(log *zap.Logger, options ...ProfilerBuilderOption) *Profiler {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Profiler{
		log:            log,
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Tick should be called once per rendered frame.
// Logs performance statistics when the update interval has elapsed: FPS, heap usage, allocation rate,
// GC count/pause times, total memory, and the scene pipeline's lag, timeline, backlog, purge and token counts.
//
// Parameters:
//   - stats: the scene host's current pipeline snapshot
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(stats scene_host.Stats) bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	r := Report{
		FPS:      float64(p.frameCount) / elapsed.Seconds(),
		HeapMB:   float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:    float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:  p.memStats.NumGC,
		Pipeline: stats,
	}
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	if r.GCCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses.
		r.LastPauseUs = p.memStats.PauseNs[(r.GCCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if r.GCCount-startIdx > 256 {
			startIdx = r.GCCount - 256
		}
		for i := startIdx; i < r.GCCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.log.Info("profiler",
		zap.Float64("fps", r.FPS),
		zap.Float64("heap_mb", r.HeapMB),
		zap.Float64("alloc_rate_mb", r.AllocRateMB),
		zap.Uint32("gc", r.GCCount),
		zap.Uint64("gc_last_us", r.LastPauseUs),
		zap.Uint64("gc_max_us", r.MaxPauseUs),
		zap.Float64("sys_mb", r.SysMB),
		zap.Uint64("frame", stats.Frame),
		zap.Uint64("lag", stats.Lag()),
		zap.Uint64("timeline", uint64(stats.Timeline)),
		zap.Uint32("active", uint32(stats.Active)),
		zap.Int("backlog", stats.Backlog),
		zap.Int("purge", stats.Purge),
		zap.Int("free_tokens", stats.FreeTokens),
		zap.Uint64("built", stats.Built),
		zap.Uint64("destroyed", stats.Destroyed))

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.last = r
	p.reports++
	return true
}

// Last returns the most recent report.
//
// Returns:
//   - Report: the last logged report, zero before the first
func (p *Profiler) Last() Report {
	return p.last
}

// Reports returns how many reports have been logged.
//
// Returns:
//   - int: report count
func (p *Profiler) Reports() int {
	return p.reports
}

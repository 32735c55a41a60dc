package performance

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Pipeline stage names recorded by the request coordinator.
const (
	StageCacheLookup = "chunk.cache_lookup"
	StageStoreRead   = "chunk.store_read"
	StageGenerate    = "chunk.generate"
	StageDecodeCheck = "chunk.decode_check"
	StageEditWrite   = "chunk.edit_write"
	StageBatch       = "chunk.batch"
)

// Profiler tracks latency and hit-rate statistics for the chunk pipeline.
// A nil *Profiler is valid and records nothing, so callers never need to
// branch on whether profiling is wired up.
type Profiler struct {
	mu        sync.RWMutex
	stages    map[string]*stageStats
	counters  map[string]int64
	startTime time.Time
}

type stageStats struct {
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// StageReport is the exported snapshot of one pipeline stage.
type StageReport struct {
	Stage   string        `json:"stage"`
	Count   int64         `json:"count"`
	Average time.Duration `json:"avg_ns"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
}

// Report is a point-in-time snapshot of all recorded statistics.
type Report struct {
	StartTime time.Time        `json:"start_time"`
	Runtime   time.Duration    `json:"runtime_ns"`
	Stages    []StageReport    `json:"stages"`
	Counters  map[string]int64 `json:"counters"`
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{
		stages:    make(map[string]*stageStats),
		counters:  make(map[string]int64),
		startTime: time.Now(),
	}
}

// Time runs fn and records its duration under the named stage.
func (p *Profiler) Time(stage string, fn func()) {
	if p == nil {
		fn()
		return
	}
	start := time.Now()
	fn()
	p.Record(stage, time.Since(start))
}

// Record adds one observation for a stage.
func (p *Profiler) Record(stage string, d time.Duration) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stats, ok := p.stages[stage]
	if !ok {
		stats = &stageStats{min: d, max: d}
		p.stages[stage] = stats
	}
	stats.count++
	stats.total += d
	if d < stats.min {
		stats.min = d
	}
	if d > stats.max {
		stats.max = d
	}
}

// Count increments a named counter (cache hits, conflicts, and the like).
func (p *Profiler) Count(name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.counters[name]++
	p.mu.Unlock()
}

// Counter reads a counter's current value.
func (p *Profiler) Counter(name string) int64 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counters[name]
}

// Snapshot returns a copy of all statistics, stages sorted by name.
func (p *Profiler) Snapshot() Report {
	if p == nil {
		return Report{}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	report := Report{
		StartTime: p.startTime,
		Runtime:   time.Since(p.startTime),
		Counters:  make(map[string]int64, len(p.counters)),
	}
	for name, value := range p.counters {
		report.Counters[name] = value
	}
	for name, stats := range p.stages {
		avg := time.Duration(0)
		if stats.count > 0 {
			avg = stats.total / time.Duration(stats.count)
		}
		report.Stages = append(report.Stages, StageReport{
			Stage:   name,
			Count:   stats.count,
			Average: avg,
			Min:     stats.min,
			Max:     stats.max,
		})
	}
	sort.Slice(report.Stages, func(i, j int) bool {
		return report.Stages[i].Stage < report.Stages[j].Stage
	})
	return report
}

// JSON renders the snapshot for the stats endpoint.
func (p *Profiler) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal performance report: %w", err)
	}
	return data, nil
}

// Reset clears all recorded statistics.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.stages = make(map[string]*stageStats)
	p.counters = make(map[string]int64)
	p.startTime = time.Now()
	p.mu.Unlock()
}

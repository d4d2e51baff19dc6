package extract

import (
	"sort"
	"sync"
	"time"
)

// Pipeline stage names recorded by the processor.
const (
	StageChunk     = "chunk"
	StageExtract   = "extract"
	StageTimeline  = "timeline"
	StageCrossRefs = "crossrefs"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// StatsSnapshot is a point-in-time aggregate of latency samples for one stage.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// StageStats tracks recent per-stage processing latencies within a rolling window.
type StageStats struct {
	mu      sync.Mutex
	samples map[string][]sample
	maxAge  time.Duration
}

func NewStageStats(maxAge time.Duration) *StageStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &StageStats{
		samples: make(map[string][]sample),
		maxAge:  maxAge,
	}
}

// Record adds one latency sample for stage.
func (s *StageStats) Record(stage string, d time.Duration) {
	durationMs := d.Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[stage] = append(prune(s.samples[stage], now.Add(-s.maxAge)), sample{
		timestamp:  now,
		durationMs: durationMs,
	})
}

// Snapshot aggregates every stage that still has samples in the window.
func (s *StageStats) Snapshot() map[string]StatsSnapshot {
	cutoff := time.Now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]StatsSnapshot, len(s.samples))
	for stage, samples := range s.samples {
		samples = prune(samples, cutoff)
		s.samples[stage] = samples
		if len(samples) == 0 {
			delete(s.samples, stage)
			continue
		}
		out[stage] = aggregate(samples)
	}
	return out
}

// Stage aggregates a single stage; the zero snapshot means no recent samples.
func (s *StageStats) Stage(stage string) StatsSnapshot {
	cutoff := time.Now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	samples := prune(s.samples[stage], cutoff)
	if len(samples) == 0 {
		delete(s.samples, stage)
		return StatsSnapshot{}
	}
	s.samples[stage] = samples
	return aggregate(samples)
}

func aggregate(samples []sample) StatsSnapshot {
	values := make([]int64, 0, len(samples))
	var sum int64
	for _, sm := range samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return StatsSnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func prune(samples []sample, cutoff time.Time) []sample {
	writeIdx := 0
	for _, sm := range samples {
		if !sm.timestamp.Before(cutoff) {
			samples[writeIdx] = sm
			writeIdx++
		}
	}
	return samples[:writeIdx]
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	if lower == upper {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}

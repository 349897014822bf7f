package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/fefsmon/jobrate/pkg/types"
)

// Pass durations are recorded in microseconds, from 1µs up to 10 minutes.
const (
	latencyMin    = 1
	latencyMax    = int64(10 * time.Minute / time.Microsecond)
	latencySigFig = 3
)

// LatencySummary holds pass duration percentiles for one domain.
type LatencySummary struct {
	Count int64         `json:"count"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// PassLatency keeps one HDR histogram of pass durations per domain.
type PassLatency struct {
	mu    sync.RWMutex
	hists map[types.Domain]*hdrhistogram.Histogram
}

// NewPassLatency returns an empty tracker.
func NewPassLatency() *PassLatency {
	return &PassLatency{hists: make(map[types.Domain]*hdrhistogram.Histogram)}
}

// Record adds one pass duration. Values outside the trackable range are
// clamped.
func (p *PassLatency) Record(d types.Domain, dur time.Duration) {
	us := int64(dur / time.Microsecond)
	if us < latencyMin {
		us = latencyMin
	}
	if us > latencyMax {
		us = latencyMax
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.hists[d]
	if !ok {
		h = hdrhistogram.New(latencyMin, latencyMax, latencySigFig)
		p.hists[d] = h
	}
	_ = h.RecordValue(us)
}

// Summary returns the percentiles of domain d. An unknown domain yields a
// zero summary.
func (p *PassLatency) Summary(d types.Domain) LatencySummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.hists[d]
	if !ok {
		return LatencySummary{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencySummary{
		Count: h.TotalCount(),
		P50:   us(h.ValueAtQuantile(50)),
		P90:   us(h.ValueAtQuantile(90)),
		P99:   us(h.ValueAtQuantile(99)),
		Max:   us(h.Max()),
	}
}

// Domains returns the domains with at least one recorded pass.
func (p *PassLatency) Domains() []types.Domain {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Domain, 0, len(p.hists))
	for d := range p.hists {
		out = append(out, d)
	}
	return out
}

// Reset forgets every recorded pass.
func (p *PassLatency) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.hists {
		h.Reset()
	}
}

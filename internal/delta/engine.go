// Package delta turns cumulative job_stats counters into interval deltas.
//
// The engine remembers the last cumulative value of every (volume, job,
// field). A value seen for the first time is reported as-is, so a job that
// starts between two samples is credited with everything it did. A value
// lower than the remembered one means the counter restarted (the target was
// remounted or the job record expired), and the new value is reported as-is
// instead of a negative or wrapped difference.
//
// An Engine is owned by a single interval controller and is not safe for
// concurrent use.
package delta

import "github.com/fefsmon/jobrate/pkg/types"

// Sample is one cumulative reading. Bytes is meaningful only when HasBytes.
type Sample struct {
	Count    uint64
	Bytes    uint64
	HasBytes bool
}

// Delta is the change since the previous reading.
type Delta struct {
	Count      uint64
	Bytes      uint64
	HasBytes   bool
	CountReset bool
	BytesReset bool
	// FirstSample is set when nothing was remembered for the key
	FirstSample bool
}

// JobKey identifies one job on one volume.
type JobKey struct {
	Volume string
	Job    string
}

// Observed is the set of jobs seen during an interval.
type Observed map[JobKey]struct{}

// Add marks a job as seen.
func (o Observed) Add(volume, job string) {
	o[JobKey{Volume: volume, Job: job}] = struct{}{}
}

// Has reports whether a job was seen.
func (o Observed) Has(volume, job string) bool {
	_, ok := o[JobKey{Volume: volume, Job: job}]
	return ok
}

type reading struct {
	count    uint64
	bytes    uint64
	hasBytes bool
}

// Engine holds the previous-value store.
type Engine struct {
	prev map[string]map[string]map[types.Field]reading
}

// NewEngine returns an engine with an empty store.
func NewEngine() *Engine {
	return &Engine{prev: make(map[string]map[string]map[types.Field]reading)}
}

// Compute returns the delta of s against the remembered reading for
// (volume, job, field) and remembers s. The count and byte channels reset
// independently.
func (e *Engine) Compute(volume, job string, field types.Field, s Sample) Delta {
	jobs, ok := e.prev[volume]
	if !ok {
		jobs = make(map[string]map[types.Field]reading)
		e.prev[volume] = jobs
	}
	fields, ok := jobs[job]
	if !ok {
		fields = make(map[types.Field]reading)
		jobs[job] = fields
	}

	last, seen := fields[field]
	fields[field] = reading{count: s.Count, bytes: s.Bytes, hasBytes: s.HasBytes}

	d := Delta{HasBytes: s.HasBytes, FirstSample: !seen}
	d.Count, d.CountReset = diff(s.Count, last.count, seen)
	if s.HasBytes {
		d.Bytes, d.BytesReset = diff(s.Bytes, last.bytes, seen && last.hasBytes)
	}
	return d
}

func diff(cur, prev uint64, seen bool) (uint64, bool) {
	switch {
	case !seen:
		return cur, false
	case cur >= prev:
		return cur - prev, false
	default:
		return cur, true
	}
}

// Prune forgets every job that is not in observed and returns how many jobs
// were dropped. Volumes left without jobs are dropped too.
func (e *Engine) Prune(observed Observed) int {
	pruned := 0
	for volume, jobs := range e.prev {
		for job := range jobs {
			if !observed.Has(volume, job) {
				delete(jobs, job)
				pruned++
			}
		}
		if len(jobs) == 0 {
			delete(e.prev, volume)
		}
	}
	return pruned
}

// Len returns the number of remembered jobs.
func (e *Engine) Len() int {
	n := 0
	for _, jobs := range e.prev {
		n += len(jobs)
	}
	return n
}

// Has reports whether a reading is remembered for (volume, job, field).
func (e *Engine) Has(volume, job string, field types.Field) bool {
	_, ok := e.prev[volume][job][field]
	return ok
}

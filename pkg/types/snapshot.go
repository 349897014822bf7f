package types

import (
	"sort"
	"time"
)

// Row maps a field to its delta for one interval.
type Row map[Field]uint64

// NewRow returns a row with every given field set to zero.
func NewRow(fields []Field) Row {
	r := make(Row, len(fields))
	for _, f := range fields {
		r[f] = 0
	}
	return r
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for f, v := range r {
		out[f] = v
	}
	return out
}

// Values returns the row's values in the order of fields; missing fields are 0.
func (r Row) Values(fields []Field) []uint64 {
	out := make([]uint64, len(fields))
	for i, f := range fields {
		out[i] = r[f]
	}
	return out
}

// Total returns the sum of all counters in the row, byte companions excluded.
func (r Row) Total() uint64 {
	var sum uint64
	for f, v := range r {
		if f.IsBytes() {
			continue
		}
		sum += v
	}
	return sum
}

// VolumeEntry holds a volume total row and the rows of its jobs.
type VolumeEntry struct {
	Total Row            `json:"total"`
	Jobs  map[string]Row `json:"jobs"`
}

// JobIDs returns the entry's job ids in sorted order.
func (v VolumeEntry) JobIDs() []string {
	ids := make([]string, 0, len(v.Jobs))
	for id := range v.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot is the immutable result of one interval pass.
type Snapshot struct {
	Domain   Domain                 `json:"domain"`
	Profile  Profile                `json:"profile"`
	Fields   []Field                `json:"fields"`
	Sequence uint64                 `json:"sequence"`
	Started  time.Time              `json:"started"`
	Finished time.Time              `json:"finished"`
	Fleet    Row                    `json:"fleet"`
	Volumes  map[string]VolumeEntry `json:"volumes"`
}

// VolumeNames returns the snapshot's volume ids in sorted order.
func (s Snapshot) VolumeNames() []string {
	names := make([]string, 0, len(s.Volumes))
	for name := range s.Volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobCount returns the number of job rows across all volumes.
func (s Snapshot) JobCount() int {
	n := 0
	for _, v := range s.Volumes {
		n += len(v.Jobs)
	}
	return n
}

// PassStats summarizes what one interval pass consumed.
type PassStats struct {
	Lines         int           `json:"lines"`
	Headers       int           `json:"headers"`
	Jobs          int           `json:"jobs"`
	Samples       int           `json:"samples"`
	Ignored       int           `json:"ignored"`
	OutOfScope    int           `json:"out_of_scope"`
	UnknownFields int           `json:"unknown_fields"`
	Resets        int           `json:"resets"`
	Pruned        int           `json:"pruned"`
	Duration      time.Duration `json:"duration"`
}

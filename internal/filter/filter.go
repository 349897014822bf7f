// Package filter decides which volumes and jobs of a job_stats dump are in
// scope for an interval.
package filter

import (
	"strings"

	"github.com/fefsmon/jobrate/pkg/errors"
)

// Criteria selects volumes and jobs by substring patterns. An empty list
// selects everything. Filesystems and Volumes are mutually exclusive.
type Criteria struct {
	Filesystems []string `yaml:"filesystems,omitempty" json:"filesystems,omitempty"`
	Volumes     []string `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	Jobs        []string `yaml:"jobs,omitempty" json:"jobs,omitempty"`
}

// Validate rejects a filesystem filter combined with a volume filter.
func (c Criteria) Validate() error {
	if len(compact(c.Filesystems)) > 0 && len(compact(c.Volumes)) > 0 {
		return errors.NewError(errors.ErrCodeConfigConflict,
			"filesystem and volume filters can't be set at the same time").
			WithComponent("filter").
			WithDetail("filesystems", c.Filesystems).
			WithDetail("volumes", c.Volumes)
	}
	return nil
}

// Clone returns a copy that shares no slices with c.
func (c Criteria) Clone() Criteria {
	return Criteria{
		Filesystems: compact(c.Filesystems),
		Volumes:     compact(c.Volumes),
		Jobs:        compact(c.Jobs),
	}
}

// ParsePatterns splits a '/'-separated pattern list, dropping empty entries.
func ParsePatterns(s string) []string {
	return compact(strings.Split(s, "/"))
}

// FilesystemOf returns the filesystem prefix of a volume id: everything
// before the last '-'. A volume without a dash is its own prefix.
func FilesystemOf(volume string) string {
	if i := strings.LastIndexByte(volume, '-'); i > 0 {
		return volume[:i]
	}
	return volume
}

func compact(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func matchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if strings.Contains(value, p) {
			return true
		}
	}
	return false
}

// Evaluator tracks the current volume and job while a dump is walked top to
// bottom. Scope decisions stick until the next header or marker.
type Evaluator struct {
	criteria Criteria

	volume        string
	volumeInScope bool
	job           string
	jobInScope    bool
}

// New returns an evaluator for c. The criteria are expected to be valid.
func New(c Criteria) *Evaluator {
	return &Evaluator{criteria: c.Clone()}
}

// Criteria returns the criteria in use.
func (e *Evaluator) Criteria() Criteria {
	return e.criteria.Clone()
}

// Reset forgets the current volume and job.
func (e *Evaluator) Reset() {
	e.volume, e.volumeInScope = "", false
	e.job, e.jobInScope = "", false
}

// OnVolume enters volume v and reports whether it is in scope. The current
// job is cleared.
func (e *Evaluator) OnVolume(v string) bool {
	e.volume = v
	e.job, e.jobInScope = "", false

	switch {
	case len(e.criteria.Filesystems) > 0:
		e.volumeInScope = matchAny(e.criteria.Filesystems, FilesystemOf(v))
	case len(e.criteria.Volumes) > 0:
		e.volumeInScope = matchAny(e.criteria.Volumes, v)
	default:
		e.volumeInScope = true
	}
	return e.volumeInScope
}

// OnJob enters job j of the current volume and reports whether it is in
// scope. No job is in scope outside an in-scope volume.
func (e *Evaluator) OnJob(j string) bool {
	e.job = j
	switch {
	case !e.volumeInScope:
		e.jobInScope = false
	case len(e.criteria.Jobs) > 0:
		e.jobInScope = matchAny(e.criteria.Jobs, j)
	default:
		e.jobInScope = true
	}
	return e.jobInScope
}

// SampleInScope reports whether a counter line at the current position
// belongs to the interval.
func (e *Evaluator) SampleInScope() bool {
	return e.volumeInScope && e.jobInScope && e.job != ""
}

// Volume returns the current volume id.
func (e *Evaluator) Volume() string { return e.volume }

// Job returns the current job id.
func (e *Evaluator) Job() string { return e.job }

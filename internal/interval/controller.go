package interval

import (
	"io"
	"sync"
	"time"

	"github.com/fefsmon/jobrate/internal/aggregate"
	"github.com/fefsmon/jobrate/internal/delta"
	"github.com/fefsmon/jobrate/internal/filter"
	"github.com/fefsmon/jobrate/internal/parser"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateCollecting
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// Config configures a Controller.
type Config struct {
	Domain   types.Domain
	Profile  types.Profile
	Criteria filter.Criteria

	// Logger for pass events; defaults to a discarding logger
	Logger *utils.StructuredLogger
}

// Controller runs sampling passes for one domain.
type Controller struct {
	domain    types.Domain
	profile   types.Profile
	canonical map[types.Field]bool

	engine   *delta.Engine
	table    *aggregate.Table
	eval     *filter.Evaluator
	observed delta.Observed

	mu      sync.Mutex
	pending *filter.Criteria

	state    State
	sequence uint64
	started  time.Time
	stats    types.PassStats

	logger *utils.StructuredLogger
	now    func() time.Time
}

// New validates cfg and returns an idle controller.
func New(cfg Config) (*Controller, error) {
	fields := types.CanonicalFields(cfg.Domain, cfg.Profile)
	if fields == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig,
			"no field list for domain %q with profile %q", cfg.Domain, cfg.Profile).
			WithComponent("interval").
			WithOperation("new")
	}
	if err := cfg.Criteria.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	canonical := make(map[types.Field]bool, len(fields))
	for _, f := range fields {
		canonical[f] = true
	}

	return &Controller{
		domain:    cfg.Domain,
		profile:   cfg.Profile,
		canonical: canonical,
		engine:    delta.NewEngine(),
		table:     aggregate.New(fields),
		eval:      filter.New(cfg.Criteria),
		observed:  make(delta.Observed),
		logger:    logger.WithComponent("interval").WithField("domain", string(cfg.Domain)),
		now:       time.Now,
	}, nil
}

// Domain returns the controller's domain.
func (c *Controller) Domain() types.Domain { return c.domain }

// Profile returns the controller's field profile.
func (c *Controller) Profile() types.Profile { return c.profile }

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state }

// Tracked returns the number of jobs in the previous-value store.
func (c *Controller) Tracked() int { return c.engine.Len() }

// Criteria returns the criteria of the current or next pass.
func (c *Controller) Criteria() filter.Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return c.pending.Clone()
	}
	return c.eval.Criteria()
}

// SetCriteria validates cr and stages it for the next Begin, so a pass
// always runs under one set of criteria.
func (c *Controller) SetCriteria(cr filter.Criteria) error {
	if err := cr.Validate(); err != nil {
		return err
	}
	staged := cr.Clone()

	c.mu.Lock()
	c.pending = &staged
	c.mu.Unlock()
	return nil
}

func (c *Controller) invalidState(op string, want State) error {
	return errors.Newf(errors.ErrCodeInvalidState, "%s requires state %s, controller is %s", op, want, c.state).
		WithComponent("interval").
		WithOperation(op).
		WithContext("domain", string(c.domain))
}

// Begin starts a pass.
func (c *Controller) Begin() error {
	if c.state != StateIdle {
		return c.invalidState("begin", StateIdle)
	}

	c.mu.Lock()
	if c.pending != nil {
		c.eval = filter.New(*c.pending)
		c.pending = nil
		c.logger.Info("Filter criteria applied", map[string]interface{}{
			"criteria": c.eval.Criteria(),
		})
	}
	c.mu.Unlock()

	c.table.Reset()
	c.observed = make(delta.Observed)
	c.eval.Reset()
	c.stats = types.PassStats{}
	c.sequence++
	c.started = c.now()
	c.state = StateCollecting
	return nil
}

// Feed processes one line tagged with its domain. Lines of another domain
// are skipped without being counted.
func (c *Controller) Feed(tag types.Domain, line string) error {
	if c.state != StateCollecting {
		return c.invalidState("feed", StateCollecting)
	}
	if tag != c.domain {
		return nil
	}
	c.stats.Lines++
	c.apply(parser.Parse(c.domain, line))
	return nil
}

// FeedLines feeds every line in order.
func (c *Controller) FeedLines(lines []types.Line) error {
	for _, l := range lines {
		if err := c.Feed(l.Domain, l.Text); err != nil {
			return err
		}
	}
	return nil
}

// FeedReader feeds every line read from r.
func (c *Controller) FeedReader(tag types.Domain, r io.Reader) error {
	if c.state != StateCollecting {
		return c.invalidState("feed", StateCollecting)
	}
	if tag != c.domain {
		return nil
	}
	err := parser.Scan(c.domain, r, func(rec parser.Record) {
		c.stats.Lines++
		c.apply(rec)
	})
	if err != nil {
		return errors.NewError(errors.ErrCodeSourceUnavailable, "failed to read job_stats").
			WithComponent("interval").
			WithOperation("feed").
			WithCause(err)
	}
	return nil
}

func (c *Controller) apply(rec parser.Record) {
	switch r := rec.(type) {
	case parser.VolumeHeader:
		c.stats.Headers++
		if c.eval.OnVolume(r.Volume) {
			c.table.InitVolume(r.Volume)
		} else if c.logger.Enabled(utils.DEBUG) {
			c.logger.Debug("Volume out of scope", map[string]interface{}{"volume": r.Volume})
		}

	case parser.JobMarker:
		c.stats.Jobs++
		if c.eval.OnJob(r.JobID) {
			volume := c.eval.Volume()
			c.table.InitJob(volume, r.JobID)
			c.observed.Add(volume, r.JobID)
		}

	case parser.FieldSample:
		if !c.eval.SampleInScope() {
			c.stats.OutOfScope++
			return
		}
		c.stats.Samples++
		if !c.canonical[r.Field] {
			c.stats.UnknownFields++
		}

		volume, job := c.eval.Volume(), c.eval.Job()
		d := c.engine.Compute(volume, job, r.Field, delta.Sample{
			Count:    r.Samples,
			Bytes:    r.Sum,
			HasBytes: r.HasSum,
		})
		if d.CountReset || d.BytesReset {
			c.stats.Resets++
			if c.logger.Enabled(utils.DEBUG) {
				c.logger.Debug("Counter reset", map[string]interface{}{
					"volume":      volume,
					"job":         job,
					"field":       string(r.Field),
					"count_reset": d.CountReset,
					"bytes_reset": d.BytesReset,
				})
			}
		}
		c.table.Record(volume, job, r.Field, d.Count, d.Bytes, d.HasBytes)

	case parser.Ignored:
		c.stats.Ignored++
		if c.logger.Enabled(utils.TRACE) {
			c.logger.Trace("Line skipped", map[string]interface{}{"reason": string(r.Reason)})
		}
	}
}

// End finishes the pass, prunes jobs that were not observed and returns the
// snapshot with its statistics.
func (c *Controller) End() (types.Snapshot, types.PassStats, error) {
	if c.state != StateCollecting {
		return types.Snapshot{}, types.PassStats{}, c.invalidState("end", StateCollecting)
	}

	finished := c.now()
	c.stats.Pruned = c.engine.Prune(c.observed)
	c.stats.Duration = finished.Sub(c.started)

	snap := c.table.Snapshot()
	snap.Domain = c.domain
	snap.Profile = c.profile
	snap.Sequence = c.sequence
	snap.Started = c.started
	snap.Finished = finished

	c.state = StateIdle

	c.logger.Debug("Pass complete", map[string]interface{}{
		"sequence": c.sequence,
		"lines":    c.stats.Lines,
		"volumes":  len(snap.Volumes),
		"jobs":     snap.JobCount(),
		"samples":  c.stats.Samples,
		"resets":   c.stats.Resets,
		"pruned":   c.stats.Pruned,
		"tracked":  c.engine.Len(),
	})
	return snap, c.stats, nil
}

// Skip accounts for an interval whose text could not be acquired. It returns
// an all-zero snapshot and leaves the previous-value store as it was, so the
// next pass computes deltas across the gap.
func (c *Controller) Skip() (types.Snapshot, error) {
	if c.state != StateIdle {
		return types.Snapshot{}, c.invalidState("skip", StateIdle)
	}

	c.sequence++
	now := c.now()
	c.table.Reset()

	snap := c.table.Snapshot()
	snap.Domain = c.domain
	snap.Profile = c.profile
	snap.Sequence = c.sequence
	snap.Started = now
	snap.Finished = now

	c.logger.Debug("Pass skipped", map[string]interface{}{
		"sequence": c.sequence,
		"tracked":  c.engine.Len(),
	})
	return snap, nil
}

// Package monitor drives the sampling loop: every interval it pulls raw
// job_stats text, runs one pass per domain and publishes the snapshots.
package monitor

import (
	"context"
	stderr "errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fefsmon/jobrate/internal/filter"
	"github.com/fefsmon/jobrate/internal/interval"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/health"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// Config configures a Monitor.
type Config struct {
	Domains  []types.Domain
	Profile  types.Profile
	Criteria filter.Criteria
	Interval time.Duration

	Source types.Source
	Sinks  []types.Sink

	// OnAcquisitionError is called for every failed pull, e.g. to count it
	OnAcquisitionError func(error)

	// Health, when set, tracks the "source" component and one component per
	// domain
	Health *health.Tracker

	Logger *utils.StructuredLogger
}

// SourceComponent is the health component name of the acquisition step.
const SourceComponent = "source"

// Result is the outcome of one pass for one domain.
type Result struct {
	Snapshot types.Snapshot
	Stats    types.PassStats
	// Skipped is set when the raw text could not be acquired
	Skipped bool
	// Tracked is the number of jobs held in the previous-value store after
	// the pass
	Tracked int
}

// Monitor owns one interval controller per domain.
type Monitor struct {
	cfg         Config
	controllers []*interval.Controller
	logger      *utils.StructuredLogger

	// serializes passes; a controller is never driven by two passes at once
	passMu sync.Mutex
	passes uint64
}

// New validates cfg and builds the controllers.
func New(cfg Config) (*Monitor, error) {
	if len(cfg.Domains) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "at least one domain is required").
			WithComponent("monitor")
	}
	if cfg.Source == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "a source is required").
			WithComponent("monitor")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	m := &Monitor{cfg: cfg, logger: logger.WithComponent("monitor")}
	if cfg.Health != nil {
		cfg.Health.RegisterComponent(SourceComponent)
	}
	for _, d := range cfg.Domains {
		c, err := interval.New(interval.Config{
			Domain:   d,
			Profile:  cfg.Profile,
			Criteria: cfg.Criteria,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		m.controllers = append(m.controllers, c)
		if cfg.Health != nil {
			cfg.Health.RegisterComponent(string(d))
		}
	}
	return m, nil
}

// SetCriteria stages new filter criteria on every controller. They take
// effect with the next pass.
func (m *Monitor) SetCriteria(c filter.Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, ctl := range m.controllers {
		if err := ctl.SetCriteria(c); err != nil {
			return err
		}
	}
	m.logger.Info("Filter criteria staged for next interval", map[string]interface{}{
		"filesystems": c.Filesystems,
		"volumes":     c.Volumes,
		"jobs":        c.Jobs,
	})
	return nil
}

// Passes returns the number of completed passes.
func (m *Monitor) Passes() uint64 {
	m.passMu.Lock()
	defer m.passMu.Unlock()
	return m.passes
}

// Run performs a pass immediately and then once per interval until ctx is
// done or a replay source runs dry.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Monitor started", map[string]interface{}{
		"domains":  m.cfg.Domains,
		"profile":  string(m.cfg.Profile),
		"interval": m.cfg.Interval.String(),
	})

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil {
			if stderr.Is(err, io.EOF) {
				m.logger.Info("Replay finished", map[string]interface{}{"passes": m.Passes()})
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopped", map[string]interface{}{"passes": m.Passes()})
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce pulls once, runs every domain's pass concurrently and publishes the
// results to all sinks in domain order. A failed pull is logged and yields
// all-zero snapshots. io.EOF from the source is returned as is.
func (m *Monitor) RunOnce(ctx context.Context) ([]Result, error) {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	lines, pullErr := m.cfg.Source.Pull(ctx)
	if pullErr != nil {
		if stderr.Is(pullErr, io.EOF) {
			return nil, pullErr
		}
		if ctx.Err() != nil {
			return nil, errors.NewError(errors.ErrCodeOperationCanceled, "pass canceled").
				WithComponent("monitor").
				WithCause(ctx.Err())
		}
		m.logger.Warn("Failed to acquire job_stats, reporting zeros", map[string]interface{}{
			"error": pullErr.Error(),
			"code":  string(errors.CodeOf(pullErr)),
		})
		if m.cfg.OnAcquisitionError != nil {
			m.cfg.OnAcquisitionError(pullErr)
		}
		m.recordHealth(SourceComponent, pullErr)
	} else {
		m.recordHealth(SourceComponent, nil)
	}

	results := make([]Result, len(m.controllers))
	if pullErr != nil {
		for i, ctl := range m.controllers {
			snap, err := ctl.Skip()
			if err != nil {
				return nil, err
			}
			results[i] = Result{Snapshot: snap, Skipped: true, Tracked: ctl.Tracked()}
		}
	} else {
		byDomain := make(map[types.Domain][]types.Line, len(m.controllers))
		for _, l := range lines {
			byDomain[l.Domain] = append(byDomain[l.Domain], l)
		}

		g, _ := errgroup.WithContext(ctx)
		for i, ctl := range m.controllers {
			i, ctl := i, ctl
			g.Go(func() error {
				snap, stats, err := runPass(ctl, byDomain[ctl.Domain()])
				m.recordHealth(string(ctl.Domain()), err)
				if err != nil {
					return err
				}
				results[i] = Result{Snapshot: snap, Stats: stats, Tracked: ctl.Tracked()}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	m.passes++

	for _, r := range results {
		m.logSummary(r)
		m.publish(ctx, r)
	}
	return results, nil
}

func runPass(ctl *interval.Controller, lines []types.Line) (types.Snapshot, types.PassStats, error) {
	if err := ctl.Begin(); err != nil {
		return types.Snapshot{}, types.PassStats{}, err
	}
	if err := ctl.FeedLines(lines); err != nil {
		return types.Snapshot{}, types.PassStats{}, err
	}
	return ctl.End()
}

func (m *Monitor) recordHealth(component string, err error) {
	if m.cfg.Health == nil {
		return
	}
	if err != nil {
		m.cfg.Health.RecordError(component, err)
		return
	}
	m.cfg.Health.RecordSuccess(component)
}

func (m *Monitor) publish(ctx context.Context, r Result) {
	for _, sink := range m.cfg.Sinks {
		if err := sink.Publish(ctx, r.Snapshot, r.Stats); err != nil {
			m.logger.Warn("Failed to publish interval", map[string]interface{}{
				"domain":   string(r.Snapshot.Domain),
				"sequence": r.Snapshot.Sequence,
				"error":    err.Error(),
			})
		}
	}
}

func (m *Monitor) logSummary(r Result) {
	m.logger.Info("Interval complete", map[string]interface{}{
		"domain":   string(r.Snapshot.Domain),
		"sequence": r.Snapshot.Sequence,
		"skipped":  r.Skipped,
		"volumes":  len(r.Snapshot.Volumes),
		"jobs":     r.Snapshot.JobCount(),
		"ops":      r.Snapshot.Fleet.Total(),
		"resets":   r.Stats.Resets,
		"pruned":   r.Stats.Pruned,
		"tracked":  r.Tracked,
		"duration": r.Stats.Duration.String(),
	})
}

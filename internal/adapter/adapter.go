package adapter

import (
	"context"
	stderr "errors"
	"io"

	"github.com/fefsmon/jobrate/internal/config"
	"github.com/fefsmon/jobrate/internal/metrics"
	"github.com/fefsmon/jobrate/internal/monitor"
	"github.com/fefsmon/jobrate/internal/report"
	"github.com/fefsmon/jobrate/internal/source"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/health"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// Adapter assembles the collector: one source, the monitor and its sinks.
type Adapter struct {
	config *config.Configuration
	logger *utils.StructuredLogger

	source    types.Source
	resilient *source.Resilient
	reportOut io.WriteCloser
	health    *health.Tracker
	exporter  *metrics.Exporter
	monitor   *monitor.Monitor
}

// New builds every component described by cfg. Nothing is started.
func New(cfg *config.Configuration, logger *utils.StructuredLogger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	domains, err := cfg.Domains()
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		config: cfg,
		logger: logger.WithComponent("adapter"),
		health: health.NewTracker(cfg.Health),
	}
	a.health.AddStateChangeCallback(func(component string, from, to health.HealthState, err error) {
		fields := map[string]interface{}{
			"component": component,
			"from":      from.String(),
			"to":        to.String(),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		if to == health.StateHealthy {
			a.logger.Info("Component recovered", fields)
		} else {
			a.logger.Warn("Component health changed", fields)
		}
	})

	raw, err := newSource(cfg, domains, logger)
	if err != nil {
		return nil, err
	}
	a.source = raw
	if cfg.Source.Kind != config.SourceFile {
		a.resilient = source.NewResilient(raw, cfg.RetryConfig(), cfg.BreakerConfig(), logger)
		a.source = a.resilient
	}

	a.exporter, err = metrics.NewExporter(metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Address:   cfg.Metrics.Address,
		Path:      cfg.Metrics.Path,
		Namespace: cfg.Metrics.Namespace,
		Health:    a.health,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	var sinks []types.Sink
	if cfg.Report.Enabled {
		a.reportOut, err = report.Open(cfg.Report.Output)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, report.New(report.Config{
			Format:      cfg.Report.Format,
			Mode:        cfg.Mode(),
			Separator:   cfg.Report.Separator,
			HeaderEvery: cfg.Report.HeaderEvery,
			Output:      a.reportOut,
		}))
	}
	if cfg.Metrics.Enabled {
		sinks = append(sinks, a.exporter)
	}

	a.monitor, err = monitor.New(monitor.Config{
		Domains:            domains,
		Profile:            cfg.Profile(),
		Criteria:           cfg.Collector.Filters,
		Interval:           cfg.Global.Interval,
		Source:             a.source,
		Sinks:              sinks,
		OnAcquisitionError: a.exporter.RecordAcquisitionError,
		Health:             a.health,
		Logger:             logger,
	})
	if err != nil {
		_ = a.closeReport()
		return nil, err
	}
	return a, nil
}

func newSource(cfg *config.Configuration, domains []types.Domain, logger *utils.StructuredLogger) (types.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceLctl:
		return source.NewLctlSource(source.LctlConfig{
			Path:     cfg.Source.LctlPath,
			ProcRoot: cfg.Source.ProcRoot,
			Domains:  domains,
			Timeout:  cfg.Source.Timeout,
			Logger:   logger,
		}), nil
	case config.SourceProc:
		return source.NewProcSource(cfg.Source.ProcRoot, domains, logger), nil
	case config.SourceFile:
		return source.NewFileSource(cfg.Source.Files, domains)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unsupported source kind: %s", cfg.Source.Kind).
			WithComponent("adapter").
			WithDetail("supported", []string{config.SourceLctl, config.SourceProc, config.SourceFile})
	}
}

// Monitor returns the sampling loop.
func (a *Adapter) Monitor() *monitor.Monitor { return a.monitor }

// Exporter returns the metrics exporter; it records even when its server is
// disabled.
func (a *Adapter) Exporter() *metrics.Exporter { return a.exporter }

// Health returns the component health tracker fed by the monitor.
func (a *Adapter) Health() *health.Tracker { return a.health }

// Start brings up the metrics endpoint when enabled.
func (a *Adapter) Start(ctx context.Context) error {
	a.logger.Info("Starting collector", map[string]interface{}{
		"source":   a.config.Source.Kind,
		"domains":  a.config.Collector.Domains,
		"profile":  a.config.Collector.Profile,
		"mode":     a.config.Collector.Mode,
		"interval": a.config.Global.Interval.String(),
	})
	return a.exporter.Start(ctx)
}

// Run samples every interval until ctx is done or a replay runs dry.
func (a *Adapter) Run(ctx context.Context) error {
	return a.monitor.Run(ctx)
}

// RunOnce performs a single pass.
func (a *Adapter) RunOnce(ctx context.Context) ([]monitor.Result, error) {
	return a.monitor.RunOnce(ctx)
}

// Replay runs passes back to back until the source is exhausted, ignoring
// the interval.
func (a *Adapter) Replay(ctx context.Context) (uint64, error) {
	if fs, ok := a.source.(*source.FileSource); ok {
		a.logger.Info("Replaying dumps", map[string]interface{}{"files": fs.Remaining()})
	}
	for {
		if _, err := a.monitor.RunOnce(ctx); err != nil {
			if stderr.Is(err, io.EOF) {
				return a.monitor.Passes(), nil
			}
			return a.monitor.Passes(), err
		}
	}
}

// ApplyConfig takes the reloadable parts of a new configuration. Only the
// filter criteria change at runtime; everything else needs a restart.
func (a *Adapter) ApplyConfig(cfg *config.Configuration) {
	if err := a.monitor.SetCriteria(cfg.Collector.Filters); err != nil {
		a.logger.Warn("Reloaded filters rejected", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	a.config.Collector.Filters = cfg.Collector.Filters
}

// Stop shuts down the metrics endpoint and closes the report output.
func (a *Adapter) Stop(ctx context.Context) error {
	fields := map[string]interface{}{"passes": a.monitor.Passes()}
	if a.resilient != nil {
		fields["breaker"] = a.resilient.BreakerState().String()
	}
	a.logger.Info("Stopping collector", fields)
	err := a.exporter.Stop(ctx)
	if cerr := a.closeReport(); err == nil {
		err = cerr
	}
	return err
}

func (a *Adapter) closeReport() error {
	if a.reportOut == nil {
		return nil
	}
	err := a.reportOut.Close()
	a.reportOut = nil
	return err
}

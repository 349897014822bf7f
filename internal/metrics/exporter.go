package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/health"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// Config represents exporter configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`

	// Health, when set, drives /health and the component_health gauge
	Health *health.Tracker         `yaml:"-"`
	Logger *utils.StructuredLogger `yaml:"-"`
}

// Exporter publishes interval deltas and its own pass statistics as
// Prometheus metrics. It implements types.Sink.
type Exporter struct {
	mu       sync.RWMutex
	config   Config
	registry *prometheus.Registry
	logger   *utils.StructuredLogger

	// Interval deltas
	jobOps    *prometheus.GaugeVec
	volumeOps *prometheus.GaugeVec
	fleetOps  *prometheus.GaugeVec

	// Self metrics
	intervals         *prometheus.CounterVec
	lines             *prometheus.CounterVec
	resets            *prometheus.CounterVec
	pruned            *prometheus.CounterVec
	acquisitionErrors *prometheus.CounterVec
	passDuration      *prometheus.HistogramVec
	lastSequence      *prometheus.GaugeVec
	componentHealth   *prometheus.GaugeVec

	latency *PassLatency
	last    map[types.Domain]passInfo
	started time.Time

	server   *http.Server
	listener net.Listener
}

type passInfo struct {
	Sequence uint64    `json:"sequence"`
	Finished time.Time `json:"finished"`
	Volumes  int       `json:"volumes"`
	Jobs     int       `json:"jobs"`
}

// NewExporter creates an exporter with its own registry
func NewExporter(config Config) (*Exporter, error) {
	if config.Address == "" {
		config.Address = ":9464"
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "jobrate"
	}
	logger := config.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	e := &Exporter{
		config:   config,
		registry: prometheus.NewRegistry(),
		logger:   logger.WithComponent("metrics"),
		latency:  NewPassLatency(),
		last:     make(map[types.Domain]passInfo),
		started:  time.Now(),
	}
	e.initMetrics()

	if err := e.registerMetrics(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to register metrics").
			WithComponent("metrics").
			WithCause(err)
	}
	return e, nil
}

func (e *Exporter) initMetrics() {
	ns := e.config.Namespace

	e.jobOps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "interval_ops",
		Help:      "Operations (or bytes for *_bytes fields) of one job on one volume during the last interval",
	}, []string{"domain", "volume", "job", "field"})

	e.volumeOps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "volume_interval_ops",
		Help:      "Operations of all jobs on one volume during the last interval",
	}, []string{"domain", "volume", "field"})

	e.fleetOps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "fleet_interval_ops",
		Help:      "Operations of all volumes of a domain during the last interval",
	}, []string{"domain", "field"})

	e.intervals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "intervals_total",
		Help:      "Number of completed interval passes",
	}, []string{"domain"})

	e.lines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "lines_total",
		Help:      "job_stats lines consumed, by how they were classified",
	}, []string{"domain", "kind"})

	e.resets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "counter_resets_total",
		Help:      "Samples whose cumulative value went backwards",
	}, []string{"domain"})

	e.pruned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "pruned_jobs_total",
		Help:      "Jobs dropped from the previous-value store after they stopped reporting",
	}, []string{"domain"})

	e.acquisitionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "acquisition_errors_total",
		Help:      "Failed pulls of raw job_stats text, by error code",
	}, []string{"code"})

	e.passDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "pass_duration_seconds",
		Help:      "Time spent parsing and aggregating one interval",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 15), // 0.5ms to ~8s
	}, []string{"domain"})

	e.lastSequence = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "last_interval_sequence",
		Help:      "Sequence number of the last published interval",
	}, []string{"domain"})

	e.componentHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "component_health",
		Help:      "Health state per component (0=healthy, 1=degraded, 2=unavailable)",
	}, []string{"component"})
}

func (e *Exporter) registerMetrics() error {
	metrics := []prometheus.Collector{
		e.jobOps,
		e.volumeOps,
		e.fleetOps,
		e.intervals,
		e.lines,
		e.resets,
		e.pruned,
		e.acquisitionErrors,
		e.passDuration,
		e.lastSequence,
		e.componentHealth,
	}

	for _, metric := range metrics {
		if err := e.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the exporter's registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Publish replaces the domain's delta gauges with snap and folds stats into
// the self metrics. Jobs and volumes absent from snap disappear.
func (e *Exporter) Publish(_ context.Context, snap types.Snapshot, stats types.PassStats) error {
	d := string(snap.Domain)

	e.mu.Lock()
	defer e.mu.Unlock()

	match := prometheus.Labels{"domain": d}
	e.jobOps.DeletePartialMatch(match)
	e.volumeOps.DeletePartialMatch(match)
	e.fleetOps.DeletePartialMatch(match)

	for f, v := range snap.Fleet {
		e.fleetOps.WithLabelValues(d, string(f)).Set(float64(v))
	}
	for vol, entry := range snap.Volumes {
		for f, v := range entry.Total {
			e.volumeOps.WithLabelValues(d, vol, string(f)).Set(float64(v))
		}
		for job, row := range entry.Jobs {
			for f, v := range row {
				e.jobOps.WithLabelValues(d, vol, job, string(f)).Set(float64(v))
			}
		}
	}

	e.intervals.WithLabelValues(d).Inc()
	e.lines.WithLabelValues(d, "header").Add(float64(stats.Headers))
	e.lines.WithLabelValues(d, "job").Add(float64(stats.Jobs))
	e.lines.WithLabelValues(d, "sample").Add(float64(stats.Samples))
	e.lines.WithLabelValues(d, "ignored").Add(float64(stats.Ignored))
	e.lines.WithLabelValues(d, "out_of_scope").Add(float64(stats.OutOfScope))
	e.lines.WithLabelValues(d, "unknown_field").Add(float64(stats.UnknownFields))
	e.resets.WithLabelValues(d).Add(float64(stats.Resets))
	e.pruned.WithLabelValues(d).Add(float64(stats.Pruned))
	e.passDuration.WithLabelValues(d).Observe(stats.Duration.Seconds())
	e.lastSequence.WithLabelValues(d).Set(float64(snap.Sequence))

	e.latency.Record(snap.Domain, stats.Duration)
	e.updateHealth()
	e.last[snap.Domain] = passInfo{
		Sequence: snap.Sequence,
		Finished: snap.Finished,
		Volumes:  len(snap.Volumes),
		Jobs:     snap.JobCount(),
	}
	return nil
}

func (e *Exporter) updateHealth() {
	if e.config.Health == nil {
		return
	}
	for _, c := range e.config.Health.GetAllComponents() {
		e.componentHealth.WithLabelValues(c.Name).Set(float64(c.State))
	}
}

// RecordAcquisitionError counts a failed pull
func (e *Exporter) RecordAcquisitionError(err error) {
	e.acquisitionErrors.WithLabelValues(string(errors.CodeOf(err))).Inc()
}

// Handler returns the HTTP handler serving the metrics path, /health and
// /debug/passes.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", e.healthHandler)
	mux.HandleFunc("/debug/passes", e.debugPassesHandler)
	return mux
}

// Start serves the handler on the configured address. A disabled exporter
// still records metrics but serves nothing.
func (e *Exporter) Start(ctx context.Context) error {
	if !e.config.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", e.config.Address)
	if err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, "failed to listen for metrics").
			WithComponent("metrics").
			WithContext("address", e.config.Address).
			WithCause(err)
	}

	e.mu.Lock()
	e.listener = ln
	e.server = &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := e.server
	e.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.logger.Error("Metrics server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	e.logger.Info("Metrics server started", map[string]interface{}{
		"address": ln.Addr().String(),
		"path":    e.config.Path,
	})
	return nil
}

// Addr returns the address the server listens on, or "" before Start.
func (e *Exporter) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Stop shuts the server down
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.RLock()
	server := e.server
	e.mu.RUnlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// HTTP handlers

func (e *Exporter) healthHandler(w http.ResponseWriter, r *http.Request) {
	e.mu.RLock()
	last := make(map[string]passInfo, len(e.last))
	for d, info := range e.last {
		last[string(d)] = info
	}
	e.mu.RUnlock()

	status := health.StateHealthy
	var components []health.ComponentHealth
	if e.config.Health != nil {
		status = e.config.Health.GetOverallHealth()
		components = e.config.Health.GetAllComponents()
	}

	w.Header().Set("Content-Type", "application/json")
	if status == health.StateUnavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status.String(),
		"service":    "jobrate",
		"uptime":     time.Since(e.started).Round(time.Second).String(),
		"domains":    last,
		"components": components,
	})
}

func (e *Exporter) debugPassesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("jobrate pass latency\n")
	writef("====================\n\n")

	domains := e.latency.Domains()
	if len(domains) == 0 {
		writef("No passes recorded.\n")
		return
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })

	writef("%-8s %10s %12s %12s %12s %12s\n", "Domain", "Passes", "p50", "p90", "p99", "Max")
	writef("%-8s %10s %12s %12s %12s %12s\n", "------", "------", "---", "---", "---", "---")
	for _, d := range domains {
		s := e.latency.Summary(d)
		writef("%-8s %10d %12v %12v %12v %12v\n", d, s.Count, s.P50, s.P90, s.P99, s.Max)
	}
}

/*
Package metrics exports interval deltas and collector self metrics to
Prometheus.

# Architecture

	┌─────────────┐
	│  Exporter   │  ← types.Sink fed by the monitor
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌──────────▼──────┐
	│  Prometheus  │         │  HTTP Endpoints │
	│   Registry   │         │  /metrics       │
	│              │         │  /health        │
	│ - Gauges     │         │  /debug/passes  │
	│ - Counters   │         └─────────────────┘
	│ - Histograms │
	└──────────────┘

# Interval gauges

Each published snapshot replaces every gauge series of its domain, so jobs
that stopped reporting vanish from the scrape:

	<ns>_interval_ops{domain,volume,job,field}
	<ns>_volume_interval_ops{domain,volume,field}
	<ns>_fleet_interval_ops{domain,field}

Byte sums appear under their own field label (read_bytes, write_bytes).

# Self metrics

	<ns>_intervals_total{domain}
	<ns>_lines_total{domain,kind}
	<ns>_counter_resets_total{domain}
	<ns>_pruned_jobs_total{domain}
	<ns>_acquisition_errors_total{code}
	<ns>_pass_duration_seconds{domain}
	<ns>_last_interval_sequence{domain}

PassLatency keeps an HDR histogram of pass durations per domain for the
percentiles shown on /debug/passes.

# Usage

	exporter, err := metrics.NewExporter(metrics.Config{
		Enabled:   true,
		Address:   ":9464",
		Namespace: "jobrate",
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := exporter.Start(ctx); err != nil {
		return err
	}
	defer exporter.Stop(context.Background())
*/
package metrics

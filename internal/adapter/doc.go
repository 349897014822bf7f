/*
Package adapter assembles the collector from a validated configuration.

# Architecture Role

	┌──────────────────────────────────────────┐
	│            cmd/jobrate                   │
	└──────────────────────────────────────────┘
	                    │
	┌──────────────────────────────────────────┐
	│             ADAPTER LAYER                │ ← This Package
	│  • Source selection (lctl, proc, file)   │
	│  • Retry and circuit breaker wrapping    │
	│  • Sink wiring (report, exporter)        │
	│  • Filter reload                         │
	└──────────────────────────────────────────┘
	        │              │              │
	┌───────┴──────┐ ┌─────┴─────┐ ┌──────┴──────┐
	│    Source    │ │  Monitor  │ │    Sinks    │
	│ (job_stats)  │ │ (passes)  │ │ (report,    │
	│              │ │           │ │  metrics)   │
	└──────────────┘ └───────────┘ └─────────────┘

Live sources (lctl and proc) are wrapped in a source.Resilient so a slow or
failing lctl is retried and eventually short-circuited. A file source replays
saved dumps and ends with io.EOF, which stops Run and Replay.

The Prometheus exporter is always built so acquisition errors are counted; it
is only a sink, and only listens, when metrics are enabled.

# Lifecycle

	a, err := adapter.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(context.Background())

	return a.Run(ctx)

ApplyConfig takes a reloaded configuration and stages its filter criteria for
the next interval. Other settings need a restart.
*/
package adapter

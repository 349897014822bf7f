package types

import (
	"context"
)

// Line is one line of raw job_stats text tagged with its accounting domain.
type Line struct {
	Domain Domain
	Text   string
}

// Source pulls one raw job_stats snapshot. A source with nothing to report
// returns no lines and a nil error.
type Source interface {
	Pull(ctx context.Context) ([]Line, error)
}

// Sink consumes the result of an interval pass.
type Sink interface {
	Publish(ctx context.Context, snap Snapshot, stats PassStats) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, snap Snapshot, stats PassStats) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, snap Snapshot, stats PassStats) error {
	return f(ctx, snap, stats)
}

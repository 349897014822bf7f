package source

import (
	"context"
	stderr "errors"
	"io"
	"time"

	"github.com/fefsmon/jobrate/internal/circuit"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/retry"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// Resilient retries failed pulls with backoff and stops calling a source
// that keeps failing until the breaker timeout has passed.
type Resilient struct {
	source  types.Source
	retryer *retry.Retryer
	breaker *circuit.CircuitBreaker
	logger  *utils.StructuredLogger
}

// NewResilient wraps src. The end of a replay is not a failure.
func NewResilient(src types.Source, rc retry.Config, bc circuit.Config, logger *utils.StructuredLogger) *Resilient {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	logger = logger.WithComponent("source")

	if bc.IsSuccessful == nil {
		bc.IsSuccessful = func(err error) bool {
			return err == nil || stderr.Is(err, io.EOF) ||
				errors.CodeOf(err) == errors.ErrCodeOperationCanceled
		}
	}
	if bc.OnStateChange == nil {
		bc.OnStateChange = func(name string, from, to circuit.State) {
			logger.Warn("Source circuit state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		}
	}

	r := retry.New(rc).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("Pull failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	})

	return &Resilient{
		source:  src,
		retryer: r,
		breaker: circuit.NewCircuitBreaker("source", bc),
		logger:  logger,
	}
}

// Pull pulls from the wrapped source.
func (r *Resilient) Pull(ctx context.Context) ([]types.Line, error) {
	var lines []types.Line
	err := r.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return r.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			l, err := r.source.Pull(ctx)
			if err != nil {
				return err
			}
			lines = l
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// BreakerState returns the state of the circuit breaker.
func (r *Resilient) BreakerState() circuit.State {
	return r.breaker.GetState()
}

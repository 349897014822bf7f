package circuit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jerrors "github.com/fefsmon/jobrate/pkg/errors"
)

var errPull = errors.New("lctl: exit status 1")

func call(cb *CircuitBreaker, err error) error {
	return cb.ExecuteWithContext(context.Background(), func(context.Context) error { return err })
}

func counts(cb *CircuitBreaker) Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(config Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("lctl", config)
	cb.now = clock.Now
	return cb, clock
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"Closed state", StateClosed, "CLOSED"},
		{"Open state", StateOpen, "OPEN"},
		{"Half-open state", StateHalfOpen, "HALF_OPEN"},
		{"Unknown state", State(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.state.String(); result != tt.want {
				t.Errorf("State.String() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{})

	if cb.name != "test" {
		t.Errorf("name = %q, want %q", cb.name, "test")
	}
	if cb.GetState() != StateClosed {
		t.Errorf("initial state = %v, want %v", cb.GetState(), StateClosed)
	}
	if cb.config.FailureThreshold != 5 {
		t.Errorf("default FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.Timeout != 60*time.Second {
		t.Errorf("default Timeout = %v, want %v", cb.config.Timeout, 60*time.Second)
	}
}

func TestCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(Config{FailureThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		_ = call(cb, errPull)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state after 2 failures = %v, want CLOSED", cb.GetState())
	}

	_ = call(cb, errPull)
	if cb.GetState() != StateOpen {
		t.Fatalf("state after 3 failures = %v, want OPEN", cb.GetState())
	}

	called := false
	err := cb.ExecuteWithContext(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("function should not run while the breaker is open")
	}
	if jerrors.CodeOf(err) != jerrors.ErrCodeCircuitOpen {
		t.Errorf("error code = %v, want CIRCUIT_OPEN", jerrors.CodeOf(err))
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(Config{FailureThreshold: 2})

	_ = call(cb, errPull)
	_ = call(cb, nil)
	_ = call(cb, errPull)

	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want CLOSED", cb.GetState())
	}
	c := counts(cb)
	if c.TotalFailures != 2 || c.ConsecutiveFailures != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	var transitions []State
	cb, clock := newTestBreaker(Config{
		FailureThreshold: 1,
		Timeout:          10 * time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, to)
		},
	})

	_ = call(cb, errPull)
	clock.Advance(11 * time.Second)

	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want HALF_OPEN", cb.GetState())
	}
	if err := call(cb, nil); err != nil {
		t.Fatalf("probe request failed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state after successful probe = %v, want CLOSED", cb.GetState())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb, clock := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})

	_ = call(cb, errPull)
	clock.Advance(2 * time.Second)
	_ = call(cb, errPull)

	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want OPEN", cb.GetState())
	}
}

func TestCircuitBreaker_CanceledIsNotFailure(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(Config{FailureThreshold: 1})

	err := cb.ExecuteWithContext(context.Background(), func(context.Context) error {
		return jerrors.NewError(jerrors.ErrCodeOperationCanceled, "shutdown")
	})
	if err == nil {
		t.Fatal("expected the canceled error to be returned")
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want CLOSED", cb.GetState())
	}
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("concurrent", Config{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = call(cb, nil)
		}()
	}
	wg.Wait()

	if got := counts(cb).TotalSuccesses; got != 50 {
		t.Errorf("TotalSuccesses = %d, want 50", got)
	}
}

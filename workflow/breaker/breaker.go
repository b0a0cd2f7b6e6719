// Package breaker implements the circuit breaker guarding side-effectful
// external calls: a closed/open/halfOpen state machine, scoped to
// (system, principal, operation), that persists across process restarts.
//
// The in-process FSM and failure counting are delegated to
// github.com/sony/gobreaker; gobreaker alone has no
// notion of surviving a restart, so Breaker wraps it with a thin
// persistence layer that answers one question on every Allow check for a
// key not yet held in memory: "is this scope still inside a cooldown window that began
// before this process existed." Once that check passes, control is
// handed to gobreaker for the rest of the decision.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/flowruntime/engine/workflow"
)

// Store persists CircuitState across restarts. workflow/store.Store
// satisfies this with its circuit_breaker_state table.
type Store interface {
	LoadCircuitState(ctx context.Context, key string) (workflow.CircuitState, bool, error)
	SaveCircuitState(ctx context.Context, state workflow.CircuitState) error
}

// Config tunes the breaker's thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open.
	FailureThreshold uint32
	// CooldownPeriod is how long the breaker stays open before allowing
	// a single halfOpen probe.
	CooldownPeriod time.Duration
	// HalfOpenMaxRequests bounds concurrent probes admitted while
	// halfOpen.
	HalfOpenMaxRequests uint32
}

// DefaultConfig returns the engine defaults: trip after 5 consecutive
// failures, 60s cooldown, one half-open probe.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		CooldownPeriod:      60 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker manages one gobreaker.CircuitBreaker per (scope, operation) key,
// backed by Store for cross-restart persistence.
type Breaker struct {
	cfg   Config
	store Store

	mu       sync.Mutex
	circuits map[string]*gobreaker.CircuitBreaker[any]
}

// New returns a Breaker. store may be nil, in which case state does not
// survive a restart (suitable for tests or an all-in-memory deployment
// that already accepts that limitation).
func New(cfg Config, store Store) *Breaker {
	return &Breaker{
		cfg:      cfg,
		store:    store,
		circuits: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Allow reports whether an operation under scope may proceed. It loads
// persisted state on first use for a key and refuses entry if that state
// shows the breaker open and still within its cooldown window, even
// before gobreaker's in-memory timer (reset by a process restart) would
// agree.
func (b *Breaker) Allow(ctx context.Context, scope workflow.CircuitScope, operation string) error {
	key := scope.Key(operation)

	b.mu.Lock()
	cb, seen := b.circuits[key]
	b.mu.Unlock()

	if !seen && b.store != nil {
		persisted, ok, err := b.store.LoadCircuitState(ctx, key)
		if err == nil && ok && persisted.State == workflow.CircuitOpen && persisted.OpenedAt != nil {
			if time.Since(*persisted.OpenedAt) < b.cfg.CooldownPeriod {
				return workflow.NewError(workflow.KindCircuitOpen, "", fmt.Sprintf("circuit %s is open", key))
			}
		}
	}

	cb = b.circuitFor(key, scope, operation)
	state := cb.State()
	if state == gobreaker.StateOpen {
		return workflow.NewError(workflow.KindCircuitOpen, "", fmt.Sprintf("circuit %s is open", key))
	}
	return nil
}

// Record reports the outcome of an operation already admitted by Allow,
// driving gobreaker's internal counters and persisting the resulting
// state.
func (b *Breaker) Record(ctx context.Context, scope workflow.CircuitScope, operation string, err error) {
	key := scope.Key(operation)
	cb := b.circuitFor(key, scope, operation)

	_, _ = cb.Execute(func() (any, error) {
		return nil, err
	})

	b.persist(ctx, cb, scope, operation)
}

// circuitFor returns the gobreaker instance for key, creating it (with an
// OnStateChange hook that keeps Store in sync) on first use.
func (b *Breaker) circuitFor(key string, scope workflow.CircuitScope, operation string) *gobreaker.CircuitBreaker[any] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.circuits[key]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: b.cfg.HalfOpenMaxRequests,
		Interval:    0, // never reset ConsecutiveFailures on a timer while closed
		Timeout:     b.cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.onStateChange(scope, operation, to)
		},
	}
	cb := gobreaker.NewCircuitBreaker[any](settings)
	b.circuits[key] = cb
	return cb
}

func (b *Breaker) onStateChange(scope workflow.CircuitScope, operation string, to gobreaker.State) {
	if b.store == nil {
		return
	}
	state := toFSMState(to)
	now := time.Now()
	cs := workflow.CircuitState{
		Scope:     scope,
		Operation: operation,
		State:     state,
	}
	if state == workflow.CircuitOpen {
		cs.OpenedAt = &now
	}
	if state == workflow.CircuitClosed {
		cs.LastSuccessAt = &now
	}
	// Best-effort: a failed state-change write never blocks the caller
	// that tripped the breaker — the in-process gobreaker FSM is already
	// authoritative for this process's lifetime.
	_ = b.store.SaveCircuitState(context.Background(), cs)
}

func (b *Breaker) persist(ctx context.Context, cb *gobreaker.CircuitBreaker[any], scope workflow.CircuitScope, operation string) {
	if b.store == nil {
		return
	}
	counts := cb.Counts()
	now := time.Now()
	cs := workflow.CircuitState{
		Scope:               scope,
		Operation:           operation,
		State:               toFSMState(cb.State()),
		ConsecutiveFailures: int(counts.ConsecutiveFailures),
	}
	if cs.State == workflow.CircuitOpen {
		cs.OpenedAt = &now
	}
	if counts.ConsecutiveSuccesses > 0 {
		cs.LastSuccessAt = &now
	}
	_ = b.store.SaveCircuitState(ctx, cs)
}

func toFSMState(s gobreaker.State) workflow.CircuitFSMState {
	switch s {
	case gobreaker.StateOpen:
		return workflow.CircuitOpen
	case gobreaker.StateHalfOpen:
		return workflow.CircuitHalfOpen
	default:
		return workflow.CircuitClosed
	}
}

// State returns the current in-process state for a scope/operation,
// without mutating anything. A key not yet held in memory reports closed.
func (b *Breaker) State(scope workflow.CircuitScope, operation string) workflow.CircuitFSMState {
	key := scope.Key(operation)
	b.mu.Lock()
	cb, ok := b.circuits[key]
	b.mu.Unlock()
	if !ok {
		return workflow.CircuitClosed
	}
	return toFSMState(cb.State())
}

package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowruntime/engine/workflow"
)

type memStore struct {
	mu    sync.Mutex
	state map[string]workflow.CircuitState
}

func newMemStore() *memStore {
	return &memStore{state: make(map[string]workflow.CircuitState)}
}

func (m *memStore) LoadCircuitState(_ context.Context, key string) (workflow.CircuitState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.state[key]
	return cs, ok, nil
}

func (m *memStore) SaveCircuitState(_ context.Context, cs workflow.CircuitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[cs.Scope.Key(cs.Operation)] = cs
	return nil
}

func testScope() workflow.CircuitScope {
	return workflow.CircuitScope{System: "ethereum", Principal: "wallet-1"}
}

func TestBreaker_AllowsWhileClosed(t *testing.T) {
	b := New(DefaultConfig(), newMemStore())
	if err := b.Allow(context.Background(), testScope(), "transfer"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := New(cfg, newMemStore())
	scope := testScope()

	for i := 0; i < 3; i++ {
		if err := b.Allow(context.Background(), scope, "transfer"); err != nil {
			t.Fatalf("attempt %d: expected allow before trip, got %v", i, err)
		}
		b.Record(context.Background(), scope, "transfer", errors.New("boom"))
	}

	if err := b.Allow(context.Background(), scope, "transfer"); err == nil {
		t.Fatal("expected circuit open after consecutive failures")
	}
}

func TestBreaker_RecordSuccessKeepsClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	b := New(cfg, newMemStore())
	scope := testScope()

	b.Record(context.Background(), scope, "transfer", errors.New("boom"))
	b.Record(context.Background(), scope, "transfer", nil)
	b.Record(context.Background(), scope, "transfer", errors.New("boom"))

	if err := b.Allow(context.Background(), scope, "transfer"); err != nil {
		t.Fatalf("expected closed circuit (failure streak reset by success), got %v", err)
	}
}

func TestBreaker_PersistsOpenStateAcrossRestart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.CooldownPeriod = time.Hour
	store := newMemStore()
	scope := testScope()

	b1 := New(cfg, store)
	_ = b1.Allow(context.Background(), scope, "transfer")
	b1.Record(context.Background(), scope, "transfer", errors.New("boom"))

	// A fresh Breaker simulates a process restart: gobreaker's in-memory
	// FSM is gone, but Store still shows the scope inside its cooldown.
	b2 := New(cfg, store)
	if err := b2.Allow(context.Background(), scope, "transfer"); err == nil {
		t.Fatal("expected persisted open state to block a post-restart Allow")
	}
}

func TestBreaker_StateReflectsClosedByDefault(t *testing.T) {
	b := New(DefaultConfig(), newMemStore())
	if got := b.State(testScope(), "transfer"); got != workflow.CircuitClosed {
		t.Errorf("expected closed for unseen scope, got %s", got)
	}
}

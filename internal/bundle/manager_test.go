package bundle

import (
	"sync"
	"testing"
	"time"

	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pool"
)

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.NewPool(observability.Noop{}, time.Second)
	p.AddWorker(pool.Low)
	if _, err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { p.Stop(true) })
	return p
}

func TestManager_CompletesOnAllSuccesses(t *testing.T) {
	p := newTestPool(t)
	var mu sync.Mutex
	var got Result
	done := make(chan struct{})
	m := NewManager(p, observability.Noop{}, func(r Result) {
		mu.Lock()
		got = r
		mu.Unlock()
		close(done)
	}, time.Minute)

	if err := m.Start("guid-1", 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Success("guid-1", "msgA", "/tmp/a"); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if err := m.Success("guid-1", "msgB", "/tmp/b"); err != nil {
		t.Fatalf("Success: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.GUID != "guid-1" || len(got.Successes) != 2 || len(got.Failures) != 0 || got.TimedOut {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestManager_CompletesOnMixedSuccessAndFailure(t *testing.T) {
	p := newTestPool(t)
	done := make(chan Result, 1)
	m := NewManager(p, observability.Noop{}, func(r Result) { done <- r }, time.Minute)

	if err := m.Start("guid-2", 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Failure("guid-2", "disk full"); err != nil {
		t.Fatalf("Failure: %v", err)
	}
	if err := m.Success("guid-2", "msgA", "/tmp/a"); err != nil {
		t.Fatalf("Success: %v", err)
	}

	select {
	case r := <-done:
		if len(r.Failures) != 1 || len(r.Successes) != 1 {
			t.Errorf("unexpected result: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
}

func TestManager_StartTwiceFails(t *testing.T) {
	p := newTestPool(t)
	m := NewManager(p, observability.Noop{}, func(Result) {}, time.Minute)

	if err := m.Start("guid-3", 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start("guid-3", 1); err == nil {
		t.Fatal("expected error starting an already-started guid")
	}
}

func TestManager_MutationOnUnknownGUIDFails(t *testing.T) {
	p := newTestPool(t)
	m := NewManager(p, observability.Noop{}, func(Result) {}, time.Minute)

	if err := m.Success("missing", "msg", "/tmp/x"); err == nil {
		t.Fatal("expected error on unknown guid")
	}
	if err := m.Failure("missing", "msg"); err == nil {
		t.Fatal("expected error on unknown guid")
	}
}

func TestManager_DeadlineFiresSyntheticFailures(t *testing.T) {
	p := newTestPool(t)
	done := make(chan Result, 1)
	m := NewManager(p, observability.Noop{}, func(r Result) { done <- r }, 10*time.Millisecond)
	go m.Run(5 * time.Millisecond)
	defer m.Close()

	if err := m.Start("guid-4", 3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Success("guid-4", "msgA", "/tmp/a"); err != nil {
		t.Fatalf("Success: %v", err)
	}

	select {
	case r := <-done:
		if !r.TimedOut {
			t.Error("expected TimedOut result")
		}
		if len(r.Successes) != 1 || len(r.Failures) != 2 {
			t.Errorf("unexpected result: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never fired completion")
	}
}

// Package bundle implements the bundle manager (component D): correlating
// a multi-file transfer by its GUID and firing one aggregate callback once
// every file in the bundle has succeeded or failed.
package bundle

import (
	"fmt"
	"sync"
	"time"

	"github.com/netframe/coreengine/internal/metrics"
	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pool"
)

// Success records one file that completed within a bundle.
type Success struct {
	Message  string
	TempPath string
}

// Result is delivered to the aggregate callback once a bundle completes,
// either because every file arrived or because its deadline elapsed.
type Result struct {
	GUID      string
	Failures  []string
	Successes []Success
	TimedOut  bool
}

// Callback is invoked exactly once per bundle, as a Low-priority pool job.
type Callback func(Result)

type entry struct {
	count     uint64
	failures  []string
	successes []Success
	deadline  time.Time
}

func (e *entry) done() bool {
	return uint64(len(e.failures)+len(e.successes)) >= e.count
}

// Manager is the thread-safe guid -> entry map described in §4.D, with a
// per-bundle deadline janitor added per the reimplementation note in §9.
type Manager struct {
	logger   observability.Logger
	pool     *pool.Pool
	callback Callback
	timeout  time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	stop chan struct{}
	once sync.Once
}

// NewManager constructs a Manager. jobs completes bundles as Low-priority
// pool jobs; timeout bounds how long a bundle may sit incomplete before the
// janitor force-completes it with synthetic failures for the missing files.
func NewManager(jobs *pool.Pool, logger observability.Logger, callback Callback, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Manager{
		logger:   logger,
		pool:     jobs,
		callback: callback,
		timeout:  timeout,
		entries:  make(map[string]*entry),
		stop:     make(chan struct{}),
	}
}

// Run starts the deadline janitor; it exits when Close is called. Intended
// to be launched once, e.g. from the pipeline or server's startup sequence.
func (m *Manager) Run(tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.sweepExpired()
		}
	}
}

// Close stops the janitor. Safe to call multiple times.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
}

// Start registers a new bundle expecting count files. Fails if guid is
// already present, per §4.D.
func (m *Manager) Start(guid string, count uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[guid]; exists {
		return fmt.Errorf("bundle: guid %q already started", guid)
	}
	m.entries[guid] = &entry{count: count, deadline: time.Now().Add(m.timeout)}
	metrics.BundlesActiveGauge.Inc()
	return nil
}

// Failure records a failed file in the bundle, completing it if this was
// the last outstanding file.
func (m *Manager) Failure(guid, msg string) error {
	return m.append(guid, func(e *entry) {
		e.failures = append(e.failures, msg)
	})
}

// Success records a successfully received file in the bundle, completing
// it if this was the last outstanding file.
func (m *Manager) Success(guid, msg, tempPath string) error {
	return m.append(guid, func(e *entry) {
		e.successes = append(e.successes, Success{Message: msg, TempPath: tempPath})
	})
}

func (m *Manager) append(guid string, mutate func(*entry)) error {
	m.mu.Lock()
	e, ok := m.entries[guid]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("bundle: guid %q not started", guid)
	}
	mutate(e)
	complete := e.done()
	if complete {
		delete(m.entries, guid)
		metrics.BundlesActiveGauge.Dec()
	}
	m.mu.Unlock()

	if complete {
		m.fireCompletion(guid, e, false)
	}
	return nil
}

// Snapshot describes one in-flight bundle, for the admin surface's
// /debug/bundles endpoint.
type Snapshot struct {
	GUID             string
	Count            uint64
	SuccessesSoFar   int
	FailuresSoFar    int
	DeadlineUnixSecs int64
}

// Snapshot returns every currently in-flight bundle's state.
func (m *Manager) Snapshot() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.entries))
	for guid, e := range m.entries {
		out = append(out, Snapshot{
			GUID:             guid,
			Count:            e.count,
			SuccessesSoFar:   len(e.successes),
			FailuresSoFar:    len(e.failures),
			DeadlineUnixSecs: e.deadline.Unix(),
		})
	}
	return out
}

func (m *Manager) sweepExpired() {
	now := time.Now()
	var expired []struct {
		guid string
		e    *entry
	}
	m.mu.Lock()
	for guid, e := range m.entries {
		if now.After(e.deadline) {
			expired = append(expired, struct {
				guid string
				e    *entry
			}{guid, e})
			delete(m.entries, guid)
			metrics.BundlesActiveGauge.Dec()
			metrics.BundlesTimedOutCounter.Inc()
		}
	}
	m.mu.Unlock()

	for _, x := range expired {
		missing := x.e.count - uint64(len(x.e.failures)+len(x.e.successes))
		for i := uint64(0); i < missing; i++ {
			x.e.failures = append(x.e.failures, "bundle deadline exceeded")
		}
		m.fireCompletion(x.guid, x.e, true)
	}
}

func (m *Manager) fireCompletion(guid string, e *entry, timedOut bool) {
	result := Result{
		GUID:      guid,
		Failures:  append([]string(nil), e.failures...),
		Successes: append([]Success(nil), e.successes...),
		TimedOut:  timedOut,
	}
	_, err := m.pool.Push(pool.Job{
		Priority: pool.Low,
		Work: func() (bool, error) {
			if m.callback != nil {
				m.callback(result)
			}
			return true, nil
		},
	})
	if err != nil {
		m.logger.Error("bundle: failed to enqueue completion callback for %s: %v", guid, err)
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/netframe/coreengine/internal/bundle"
	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pipeline"
	"github.com/netframe/coreengine/internal/pool"
)

// Options configures an Acceptor: the identity and lifecycle settings it
// hands every accepted session's pipeline, per §6's construction-time
// parameters applied server-side.
type Options struct {
	ServerID     string
	Pipeline     pipeline.Options
	ShutdownWait time.Duration
}

// Acceptor is the Server Acceptor (component E): one listener, one
// server-level pool (High/Normal/Low/LongTerm, no Top — the Acceptor
// itself never writes a frame, each session's own pipeline pool owns
// that), and the registry of active sessions under a mutex.
type Acceptor struct {
	opts    Options
	logger  observability.Logger
	handler pipeline.Handler

	pool *pool.Pool

	mu       sync.Mutex
	sessions []*session

	listener net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
}

// NewAcceptor constructs an Acceptor. handler receives every event fanned
// in from every session, each already carrying that session's (id,
// sub_id), per §4.E's "fan-in callbacks that prepend (id, sub_id)".
func NewAcceptor(opts Options, logger observability.Logger, handler pipeline.Handler) *Acceptor {
	if logger == nil {
		logger = observability.Noop{}
	}
	return &Acceptor{
		opts:    opts,
		logger:  logger,
		handler: handler,
		pool:    pool.NewServerPool(logger, opts.ShutdownWait),
	}
}

// Start opens the listener on port and runs the accept loop under an
// errgroup.Group the same way pool.Pool supervises its own worker
// goroutines — a crashed or errored accept loop surfaces through
// g.Wait() in Stop rather than silently vanishing.
func (a *Acceptor) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("server: listen on port %d: %w", port, err)
	}
	a.listener = ln

	if _, err := a.pool.Start(); err != nil {
		ln.Close()
		return fmt.Errorf("server: start pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	g, _ := errgroup.WithContext(ctx)
	a.group = g
	g.Go(func() error {
		return a.acceptLoop(ctx)
	})

	a.logger.Info("server: listening on :%d", port)
	return nil
}

// acceptLoop accepts connections until ctx is cancelled or the listener
// is closed, fanning each accepted socket's session setup out onto the
// server pool's Normal class rather than blocking the accept loop on it —
// the direct analogue of a pipeline's reactor handing frame work to a
// pool worker instead of processing it inline.
func (a *Acceptor) acceptLoop(ctx context.Context) error {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.logger.Error("server: accept: %v", err)
			continue
		}
		c := conn
		if _, err := a.pool.Push(pool.Job{
			Priority: pool.Normal,
			Work: func() (bool, error) {
				a.spawnSession(c)
				return true, nil
			},
		}); err != nil {
			a.logger.Error("server: failed to schedule session setup: %v", err)
			c.Close()
		}
	}
}

func (a *Acceptor) spawnSession(conn net.Conn) {
	fh := &fanningHandler{acceptor: a}
	p, err := pipeline.NewServerSession(conn, a.opts.ServerID, a.opts.Pipeline, a.logger, fh)
	if err != nil {
		a.logger.Error("server: failed to start session: %v", err)
		conn.Close()
		return
	}
	a.mu.Lock()
	a.sessions = append(a.sessions, &session{pipe: p})
	a.mu.Unlock()
}

// snapshot returns the current sessions under lock, for iteration outside
// it (sends and sweeps must not hold the registry lock while calling into
// a pipeline, which may itself block on a full Top queue).
func (a *Acceptor) snapshot() []*session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*session(nil), a.sessions...)
}

// matches implements §4.E's target-selection rule: empty id matches
// every session; a non-empty id matches by id, and additionally by
// sub_id when sub_id is also non-empty.
func matches(s *session, id, subID string) bool {
	if id == "" {
		return true
	}
	if s.id() != id {
		return false
	}
	if subID != "" && s.subID() != subID {
		return false
	}
	return true
}

// sweepExpired removes every session whose pipeline has reached Expired,
// per §4.E's sweep triggered by a rejected handshake anywhere in the
// registry.
func (a *Acceptor) sweepExpired() {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.sessions[:0]
	for _, s := range a.sessions {
		if s.pipe.Condition() == pipeline.ConditionExpired {
			continue
		}
		kept = append(kept, s)
	}
	a.sessions = kept
}

// DropSession removes the session matching (id, sub_id) from the
// registry and stops its pipeline.
func (a *Acceptor) DropSession(id, subID string) {
	a.dropMatching(func(s *session) bool {
		return s.id() == id && s.subID() == subID
	})
}

// DropSessions removes every session with the given id, regardless of
// sub_id, and stops each removed pipeline.
func (a *Acceptor) DropSessions(id string) {
	a.dropMatching(func(s *session) bool {
		return s.id() == id
	})
}

func (a *Acceptor) dropMatching(match func(*session) bool) {
	a.mu.Lock()
	var removed []*session
	kept := a.sessions[:0]
	for _, s := range a.sessions {
		if match(s) {
			removed = append(removed, s)
		} else {
			kept = append(kept, s)
		}
	}
	a.sessions = kept
	a.mu.Unlock()

	for _, s := range removed {
		s.pipe.Stop()
	}
}

// SessionCount returns the number of sessions currently registered.
func (a *Acceptor) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// SessionInfo is one session's identity and condition, for the admin
// surface's /debug/sessions endpoint.
type SessionInfo struct {
	ID        string
	SubID     string
	Condition string
}

// Sessions returns a snapshot of every registered session's identity and
// condition.
func (a *Acceptor) Sessions() []SessionInfo {
	sessions := a.snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ID:        s.id(),
			SubID:     s.subID(),
			Condition: s.pipe.Condition().String(),
		})
	}
	return out
}

// BundleSnapshots aggregates the in-flight file bundles across every
// session, for the admin surface's /debug/bundles endpoint.
func (a *Acceptor) BundleSnapshots() map[string][]bundle.Snapshot {
	sessions := a.snapshot()
	out := make(map[string][]bundle.Snapshot, len(sessions))
	for _, s := range sessions {
		if snaps := s.pipe.BundleSnapshots(); len(snaps) > 0 {
			out[s.id()+"/"+s.subID()] = snaps
		}
	}
	return out
}

// QueueDepth exposes the Acceptor's own server-level pool depth per
// priority class, for the admin surface's /debug/pool endpoint.
func (a *Acceptor) QueueDepth(p pool.Priority) int {
	return a.pool.QueueDepth(p)
}

// Stop closes the listener, waits for the accept loop to exit, stops
// every active session, and drains the server-level pool, mirroring a
// pipeline's own terminate/Stop shape at the Acceptor's scope.
func (a *Acceptor) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.listener != nil {
		_ = a.listener.Close()
	}
	if a.group != nil {
		if err := a.group.Wait(); err != nil {
			a.logger.Error("server: accept loop exited with error: %v", err)
		}
	}
	for _, s := range a.snapshot() {
		s.pipe.Stop()
	}
	a.pool.Stop(true)
}

// Package pipeline implements the connection pipeline (component C): the
// per-socket read/write state machine, the connect/handshake lifecycle,
// and the send/receive dispatch that drives the frame codec and bundle
// manager for one TCP connection.
package pipeline

import (
	"encoding/base64"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/netframe/coreengine/internal/bundle"
	"github.com/netframe/coreengine/internal/codec"
	"github.com/netframe/coreengine/internal/config"
	"github.com/netframe/coreengine/internal/metrics"
	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pool"
)

// Options configures a Pipeline at construction, the §6 "per-pipeline,
// construction-time" settings plus the per-start buffer_size (ip and port
// are StartClient arguments).
type Options struct {
	BufferSize    int
	StartCode     []byte
	EndCode       []byte
	EncryptMode   bool
	RegisteredKey string
	Pool          config.PriorityPoolConfig
	BundleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 4096
	}
	if len(o.StartCode) == 0 {
		o.StartCode = codec.DefaultStartCode
	}
	if len(o.EndCode) == 0 {
		o.EndCode = codec.DefaultEndCode
	}
	if o.Pool.HighPriorityCount <= 0 {
		o.Pool.HighPriorityCount = 3
	}
	if o.Pool.NormalPriorityCount <= 0 {
		o.Pool.NormalPriorityCount = 3
	}
	if o.Pool.LowPriorityCount <= 0 {
		o.Pool.LowPriorityCount = 3
	}
	if o.Pool.LongTermPriorityCount <= 0 {
		o.Pool.LongTermPriorityCount = 1
	}
	return o
}

// role distinguishes the client side of a pipeline (dials out, sends the
// handshake request) from a server session (accepted socket, responds to
// the handshake request) — the two concrete Handler-owning roles the
// design notes describe.
type role int

const (
	roleClient role = iota
	roleServerSession
)

// Pipeline is one end of one TCP connection, as described in §4.C: a
// socket, its own priority pool, codec state, connection condition, and
// the bundle manager for any file transfers it reassembles.
type Pipeline struct {
	conn    net.Conn
	opts    Options
	logger  observability.Logger
	handler Handler
	jobs    *pool.Pool
	bundles *bundle.Manager
	role    role

	condition conditionState

	// localID is what this end calls itself in the Connection handshake.
	localID string
	// id/subID address the *peer* of this pipeline: for a client this is
	// the server's advertised identity once the handshake completes (its own
	// id until then); for a server session this is the
	// client-chosen id once the handshake completes ("unauthorized_client"
	// until then) and the server-generated sub_id.
	id    atomic.String
	subID string

	keyMu sync.RWMutex
	key   []byte
	iv    []byte

	inboundSeq   atomic.Uint64
	dispatchMu   sync.Mutex
	nextDispatch uint64
	pending      map[uint64]*Event

	doneCh chan struct{} // closed once teardown finishes, per WaitStop
}

func newPipeline(conn net.Conn, opts Options, logger observability.Logger, handler Handler, localID string) *Pipeline {
	opts = opts.withDefaults()
	if logger == nil {
		logger = observability.Noop{}
	}
	tuneSocket(conn)

	p := &Pipeline{
		conn:    conn,
		opts:    opts,
		logger:  logger,
		handler: handler,
		jobs:    pool.NewPipelinePool(opts.Pool, logger, 10*time.Second),
		localID: localID,
		pending: make(map[uint64]*Event),
		doneCh:  make(chan struct{}),
	}
	p.bundles = bundle.NewManager(p.jobs, logger, p.onBundleComplete, opts.BundleTimeout)
	metrics.SessionsActiveGauge.Inc()
	return p
}

func tuneSocket(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(true)
	_ = tc.SetKeepAlive(true)
	_ = tc.SetKeepAlivePeriod(30 * time.Second)
}

// StartClient dials ip:port and drives the client side of the handshake
// lifecycle described in §4.C. id is the identity this client advertises
// to the server.
func StartClient(ip string, port int, id string, opts Options, logger observability.Logger, handler Handler) (*Pipeline, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, fmt.Errorf("pipeline: dial %s:%d: %w", ip, port, err)
	}
	return startClientOverConn(conn, id, opts, logger, handler)
}

// startClientOverConn drives the client handshake lifecycle over an
// already-established connection; split out of StartClient so tests can
// exercise the handshake and dispatch logic over a net.Pipe without a
// real listener.
func startClientOverConn(conn net.Conn, id string, opts Options, logger observability.Logger, handler Handler) (*Pipeline, error) {
	p := newPipeline(conn, opts, logger, handler, id)
	p.role = roleClient
	p.id.Store(id)
	p.subID = ""
	p.condition.advance(ConditionWaiting)

	if _, err := p.jobs.Start(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pipeline: start pool: %w", err)
	}
	go p.bundles.Run(time.Second)

	if _, err := p.jobs.Push(pool.Job{Priority: pool.LongTerm, Work: p.reactorLoop}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pipeline: schedule reactor: %w", err)
	}
	if err := p.sendClientHandshake(); err != nil {
		p.terminate(true)
		return nil, err
	}
	return p, nil
}

// NewServerSession wraps an already-accepted socket, per §4.C's
// "server-session side" — created by the Acceptor with an existing
// connected socket and the server's registered_key. serverID is what this
// session advertises as its own identity in the handshake response.
func NewServerSession(conn net.Conn, serverID string, opts Options, logger observability.Logger, handler Handler) (*Pipeline, error) {
	p := newPipeline(conn, opts, logger, handler, serverID)
	p.role = roleServerSession
	p.id.Store("unauthorized_client")
	p.subID = uuid.NewString()
	p.condition.advance(ConditionWaiting)

	if _, err := p.jobs.Start(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pipeline: start pool: %w", err)
	}
	go p.bundles.Run(time.Second)

	if _, err := p.jobs.Push(pool.Job{Priority: pool.LongTerm, Work: p.reactorLoop}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pipeline: schedule reactor: %w", err)
	}
	return p, nil
}

func (p *Pipeline) isClientRole() bool { return p.role == roleClient }

// Condition returns the current connection condition.
func (p *Pipeline) Condition() Condition { return p.condition.get() }

// ID and SubID address this pipeline's peer, per §3's (id, sub_id) pair.
func (p *Pipeline) ID() string    { return p.id.Load() }
func (p *Pipeline) SubID() string { return p.subID }

// BundleSnapshots returns the state of every file bundle this pipeline is
// currently reassembling, for the admin surface's /debug/bundles endpoint.
func (p *Pipeline) BundleSnapshots() []bundle.Snapshot {
	return p.bundles.Snapshot()
}

func (p *Pipeline) hasSessionKey() bool {
	p.keyMu.RLock()
	defer p.keyMu.RUnlock()
	return p.key != nil
}

func (p *Pipeline) installSessionKey(key, iv []byte) {
	p.keyMu.Lock()
	p.key, p.iv = key, iv
	p.keyMu.Unlock()
}

func (p *Pipeline) sessionKey() (key, iv []byte) {
	p.keyMu.RLock()
	defer p.keyMu.RUnlock()
	return p.key, p.iv
}

// Stop tears the pipeline down from the local side: by_itself is always
// true for a caller-initiated Stop.
func (p *Pipeline) Stop() {
	p.terminate(true)
}

// WaitStop blocks up to timeout (0 = indefinitely) for the pipeline to
// finish tearing down, then returns. It does not itself trigger teardown.
func (p *Pipeline) WaitStop(timeout time.Duration) {
	if timeout <= 0 {
		<-p.doneCh
		return
	}
	select {
	case <-p.doneCh:
	case <-time.After(timeout):
	}
}

// terminate is the single path to Expired: it advances condition exactly
// once, fires disconnected, closes the socket and drains the pool.
func (p *Pipeline) terminate(byItself bool) {
	if !p.condition.advance(ConditionExpired) {
		return
	}
	_ = p.conn.Close()
	p.bundles.Close()
	metrics.SessionsActiveGauge.Dec()
	if p.handler != nil {
		p.handler.OnDisconnect(byItself)
	}
	go func() {
		p.jobs.Stop(true)
		close(p.doneCh)
	}()
}

func encodeBase64(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

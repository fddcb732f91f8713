package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pipeline"
)

// collectingHandler records every dispatched event and every disconnect,
// usable as both the Acceptor's fan-in handler and a plain client-side
// pipeline.Handler in these tests.
type collectingHandler struct {
	mu         sync.Mutex
	events     []pipeline.Event
	disconnect chan bool
}

func newCollectingHandler() *collectingHandler {
	return &collectingHandler{disconnect: make(chan bool, 1)}
}

func (h *collectingHandler) OnDispatch(e pipeline.Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *collectingHandler) OnDisconnect(byItself bool) {
	if h.disconnect == nil {
		return
	}
	select {
	case h.disconnect <- byItself:
	default:
	}
}

func (h *collectingHandler) snapshot() []pipeline.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]pipeline.Event(nil), h.events...)
}

func waitForEventKind(t *testing.T, h *collectingHandler, kind pipeline.Kind, timeout time.Duration) pipeline.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range h.snapshot() {
			if e.Kind == kind {
				return e
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event kind %s", kind)
	return pipeline.Event{}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startTestAcceptor(t *testing.T, key string) (*Acceptor, *collectingHandler, int) {
	t.Helper()
	port := freePort(t)
	h := newCollectingHandler()
	a := NewAcceptor(Options{
		ServerID: "srv",
		Pipeline: pipeline.Options{
			BufferSize:    1024,
			RegisteredKey: key,
			BundleTimeout: time.Minute,
		},
		ShutdownWait: time.Second,
	}, observability.Noop{}, h)
	if err := a.Start(port); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(a.Stop)
	return a, h, port
}

func dialClient(t *testing.T, port int, id, key string) (*pipeline.Pipeline, *collectingHandler) {
	t.Helper()
	ch := newCollectingHandler()
	p, err := pipeline.StartClient("127.0.0.1", port, id, pipeline.Options{
		BufferSize:    1024,
		RegisteredKey: key,
		BundleTimeout: time.Minute,
	}, observability.Noop{}, ch)
	if err != nil {
		t.Fatalf("StartClient: %v", err)
	}
	waitForEventKind(t, ch, pipeline.EventConnection, 2*time.Second)
	return p, ch
}

func TestAcceptor_AcceptsSessionAndHandshakes(t *testing.T) {
	_, h, port := startTestAcceptor(t, "K")
	client, _ := dialClient(t, port, "c1", "K")
	defer client.Stop()

	waitFor(t, 2*time.Second, func() bool {
		for _, e := range h.snapshot() {
			if e.Kind == pipeline.EventConnection && e.Confirmed {
				return true
			}
		}
		return false
	})
}

func TestAcceptor_SessionCountTracksConnections(t *testing.T) {
	a, _, port := startTestAcceptor(t, "K")
	client, _ := dialClient(t, port, "c1", "K")
	defer client.Stop()

	waitFor(t, 2*time.Second, func() bool { return a.SessionCount() == 1 })
}

func TestAcceptor_UnicastSendMessage(t *testing.T) {
	a, _, port := startTestAcceptor(t, "K")
	c1, h1 := dialClient(t, port, "c1", "K")
	c2, h2 := dialClient(t, port, "c2", "K")
	defer c1.Stop()
	defer c2.Stop()

	waitFor(t, 2*time.Second, func() bool { return a.SessionCount() == 2 })

	if err := a.SendMessage("hi-c1", "c1", ""); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForEventKind(t, h1, pipeline.EventMessage, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	for _, e := range h2.snapshot() {
		if e.Kind == pipeline.EventMessage {
			t.Fatal("unicast leaked to non-target session")
		}
	}
}

func TestAcceptor_BroadcastReachesAllSessions(t *testing.T) {
	a, _, port := startTestAcceptor(t, "K")
	c1, h1 := dialClient(t, port, "c1", "K")
	c2, h2 := dialClient(t, port, "c2", "K")
	defer c1.Stop()
	defer c2.Stop()

	waitFor(t, 2*time.Second, func() bool { return a.SessionCount() == 2 })

	if err := a.Broadcast("hi-all"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	waitForEventKind(t, h1, pipeline.EventMessage, 2*time.Second)
	waitForEventKind(t, h2, pipeline.EventMessage, 2*time.Second)
}

func TestAcceptor_DropSessionRemovesAndStops(t *testing.T) {
	a, _, port := startTestAcceptor(t, "K")
	client, ch := dialClient(t, port, "c1", "K")
	defer client.Stop()

	waitFor(t, 2*time.Second, func() bool { return a.SessionCount() == 1 })

	sessions := a.snapshot()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	subID := sessions[0].subID()
	a.DropSession("c1", subID)

	waitFor(t, 2*time.Second, func() bool { return a.SessionCount() == 0 })
	select {
	case <-ch.disconnect:
	case <-time.After(2 * time.Second):
		t.Fatal("dropped client never saw disconnect")
	}
}

func TestAcceptor_KeyMismatchRejectedAndSwept(t *testing.T) {
	a, _, port := startTestAcceptor(t, "K")
	ch := newCollectingHandler()
	p, err := pipeline.StartClient("127.0.0.1", port, "bad", pipeline.Options{
		BufferSize:    1024,
		RegisteredKey: "WRONG",
		BundleTimeout: time.Minute,
	}, observability.Noop{}, ch)
	if err != nil {
		t.Fatalf("StartClient: %v", err)
	}
	defer p.Stop()

	select {
	case byItself := <-ch.disconnect:
		_ = byItself
	case <-time.After(2 * time.Second):
		t.Fatal("rejected client never disconnected")
	}
	waitFor(t, 2*time.Second, func() bool { return a.SessionCount() == 0 })
}

func TestAcceptor_BroadcastBestEffortCollectsPerSessionOutcome(t *testing.T) {
	a, _, port := startTestAcceptor(t, "K")
	c1, _ := dialClient(t, port, "c1", "K")
	c2, _ := dialClient(t, port, "c2", "K")
	defer c1.Stop()
	defer c2.Stop()

	waitFor(t, 2*time.Second, func() bool { return a.SessionCount() == 2 })

	results := a.BroadcastBestEffort("hi")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected per-session failure for %s/%s: %v", r.ID, r.SubID, r.Err)
		}
	}
}

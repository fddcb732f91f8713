// Package server implements the Acceptor (component E): one TCP
// listener, a server-level priority pool, and the registry of active
// per-peer pipelines it fans sends and events through.
package server

import "github.com/netframe/coreengine/internal/pipeline"

// session is one registry entry of the Acceptor: a server-side pipeline.
// Its (id, sub_id) is read from the pipeline on every lookup, so a match
// always sees the id the handshake most recently stored.
type session struct {
	pipe *pipeline.Pipeline
}

func (s *session) id() string    { return s.pipe.ID() }
func (s *session) subID() string { return s.pipe.SubID() }

// fanningHandler is the per-session Handler the Acceptor hands to
// pipeline.NewServerSession: it forwards every dispatched Event (already
// carrying the session's (id, sub_id) per pipeline.Event) to the
// Acceptor's own fan-in, and on disconnect sweeps Expired sessions out of
// the registry, per §4.E ("on a Connection condition-callback with
// condition=false from any session, scan sessions and erase all in
// Expired").
type fanningHandler struct {
	acceptor *Acceptor
}

func (h *fanningHandler) OnDispatch(ev pipeline.Event) {
	if h.acceptor.handler != nil {
		h.acceptor.handler.OnDispatch(ev)
	}
	if ev.Kind == pipeline.EventConnection && !ev.Confirmed {
		h.acceptor.sweepExpired()
	}
}

func (h *fanningHandler) OnDisconnect(byItself bool) {
	h.acceptor.sweepExpired()
}

package pipeline

import "github.com/netframe/coreengine/internal/bundle"

// Kind discriminates the tagged-union Event the design notes call for,
// replacing the five-callback surface of the source with one channel
// users pattern-match over.
type Kind int

const (
	EventConnection Kind = iota
	EventMessage
	EventBinary
	EventFiles
)

func (k Kind) String() string {
	switch k {
	case EventConnection:
		return "connection"
	case EventMessage:
		return "message"
	case EventBinary:
		return "binary"
	case EventFiles:
		return "files"
	default:
		return "unknown"
	}
}

// Event is delivered to a Handler for every dispatched frame (or bundle
// completion). Only the fields matching Kind are populated.
type Event struct {
	Kind Kind

	// ID/SubID identify the peer this event came from. On the client
	// pipeline these are the server's handshake-returned identity; on a
	// server session they are the session's own (id, sub_id).
	ID    string
	SubID string

	// EventConnection.
	Confirmed bool
	ByItself  bool // meaningful only when Confirmed is false

	// EventMessage.
	Message string

	// EventBinary.
	BinaryMessage string
	BinaryData    []byte

	// EventFiles — the bundle manager's aggregate callback result.
	Bundle bundle.Result
}

// Handler is the polymorphic sink a pipeline dispatches to — the
// replacement for the source's virtual DataHandler. The client pipeline
// and a server session each construct the pipeline with their own
// Handler; the server's wraps the session's to fan events into one
// acceptor-level stream prefixed with (id, sub_id).
type Handler interface {
	OnDispatch(Event)
	OnDisconnect(byItself bool)
}

// HandlerFunc adapts a plain function to the Handler interface for the
// common case where disconnect needs no special handling.
type HandlerFunc func(Event)

func (f HandlerFunc) OnDispatch(e Event)        { f(e) }
func (f HandlerFunc) OnDisconnect(byItself bool) {}

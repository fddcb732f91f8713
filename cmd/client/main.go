// Command client is a thin demonstration wrapper over internal/pipeline's
// client role: connect, send one message, print every event received
// until the connection closes.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pipeline"
)

type printHandler struct {
	logger observability.Logger
	done   chan struct{}
}

func (h *printHandler) OnDispatch(ev pipeline.Event) {
	switch ev.Kind {
	case pipeline.EventConnection:
		h.logger.Info("connection: confirmed=%v by_itself=%v", ev.Confirmed, ev.ByItself)
	case pipeline.EventMessage:
		h.logger.Info("message from %s/%s: %s", ev.ID, ev.SubID, ev.Message)
	case pipeline.EventBinary:
		h.logger.Info("binary from %s/%s: %s (%d bytes)", ev.ID, ev.SubID, ev.BinaryMessage, len(ev.BinaryData))
	case pipeline.EventFiles:
		h.logger.Info("bundle %s complete: %d ok, %d failed", ev.Bundle.GUID, len(ev.Bundle.Successes), len(ev.Bundle.Failures))
	}
}

func (h *printHandler) OnDisconnect(byItself bool) {
	h.logger.Info("disconnected, by_itself=%v", byItself)
	close(h.done)
}

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 9443, "server port")
	id := flag.String("id", "demo-client", "client id advertised in the handshake")
	key := flag.String("key", "", "registered key, must match the server's")
	message := flag.String("message", "hello", "message to send once confirmed")
	flag.Parse()

	logger := observability.NewStdLogger()

	handler := &printHandler{logger: logger, done: make(chan struct{})}
	p, err := pipeline.StartClient(*host, *port, *id, pipeline.Options{
		RegisteredKey: *key,
		BundleTimeout: time.Minute,
	}, logger, handler)
	if err != nil {
		logger.Fatal("connect: %v", err)
	}
	defer p.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.Condition() == pipeline.ConditionConfirmed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if p.Condition() != pipeline.ConditionConfirmed {
		logger.Fatal("handshake never confirmed, last condition: %v", p.Condition())
	}

	if err := p.SendMessage(*message); err != nil {
		logger.Fatal("send: %v", err)
	}
	fmt.Println("sent:", *message)

	<-handler.done
}

package admin

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pipeline"
	"github.com/netframe/coreengine/internal/server"
)

type nopHandler struct{}

func (nopHandler) OnDispatch(pipeline.Event)  {}
func (nopHandler) OnDisconnect(byItself bool) {}

func newTestAcceptor(t *testing.T) *server.Acceptor {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	a := server.NewAcceptor(server.Options{
		ServerID: "srv",
		Pipeline: pipeline.Options{
			BufferSize:    1024,
			RegisteredKey: "K",
			BundleTimeout: time.Minute,
		},
		ShutdownWait: time.Second,
	}, observability.Noop{}, nopHandler{})
	if err := a.Start(port); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(a.Stop)
	return a
}

func TestDebugHandler_Pool_ReportsEveryPriorityClass(t *testing.T) {
	a := newTestAcceptor(t)
	h := NewDebugHandler(a)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/debug/pool", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandlePool(c); err != nil {
		t.Fatalf("HandlePool: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var depths []queueDepth
	if err := json.Unmarshal(rec.Body.Bytes(), &depths); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(depths) != 5 {
		t.Errorf("expected 5 priority classes, got %d", len(depths))
	}
}

func TestDebugHandler_Sessions_EmptyByDefault(t *testing.T) {
	a := newTestAcceptor(t)
	h := NewDebugHandler(a)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/debug/sessions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleSessions(c); err != nil {
		t.Fatalf("HandleSessions: %v", err)
	}
	var sessions []server.SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(sessions))
	}
}

func TestDebugHandler_Bundles_EmptyByDefault(t *testing.T) {
	a := newTestAcceptor(t)
	h := NewDebugHandler(a)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/debug/bundles", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleBundles(c); err != nil {
		t.Fatalf("HandleBundles: %v", err)
	}
	var bundles map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &bundles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("expected no bundles, got %d", len(bundles))
	}
}

func TestDebugHandler_SetupRoutes(t *testing.T) {
	a := newTestAcceptor(t)
	h := NewDebugHandler(a)
	e := echo.New()
	h.SetupRoutes(e)

	for _, path := range []string{"/debug/pool", "/debug/sessions", "/debug/bundles"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

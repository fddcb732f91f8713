// Package admin implements the ambient debug/introspection HTTP routes
// that sit alongside the core engine: pool queue depths, the session
// registry, and in-flight file bundles, following the same
// constructor-injected-handler/SetupRoutes(e) shape as
// internal/handler/http/health.
package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/netframe/coreengine/internal/pool"
	"github.com/netframe/coreengine/internal/server"
)

// DebugHandler exposes read-only introspection over the Acceptor's pool,
// session registry, and file bundles.
type DebugHandler struct {
	acceptor *server.Acceptor
}

// NewDebugHandler constructs a DebugHandler bound to acceptor.
func NewDebugHandler(acceptor *server.Acceptor) *DebugHandler {
	return &DebugHandler{acceptor: acceptor}
}

// SetupRoutes registers the debug routes with the Echo instance.
func (h *DebugHandler) SetupRoutes(e *echo.Echo) {
	e.GET("/debug/pool", h.HandlePool)
	e.GET("/debug/sessions", h.HandleSessions)
	e.GET("/debug/bundles", h.HandleBundles)
}

type queueDepth struct {
	Priority string `json:"priority"`
	Depth    int    `json:"depth"`
}

// HandlePool reports the Acceptor's own server-level pool queue depth per
// priority class. Per-session pipeline pools are not included here: each
// session owns its own pool instance, and their depths are not summed
// anywhere.
func (h *DebugHandler) HandlePool(c echo.Context) error {
	depths := make([]queueDepth, 0, len(pool.AllPriorities))
	for _, p := range pool.AllPriorities {
		depths = append(depths, queueDepth{Priority: p.String(), Depth: h.acceptor.QueueDepth(p)})
	}
	return c.JSON(http.StatusOK, depths)
}

// HandleSessions reports every registered session's identity and
// condition.
func (h *DebugHandler) HandleSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.acceptor.Sessions())
}

// HandleBundles reports every in-flight file bundle, keyed by the
// session that is reassembling it.
func (h *DebugHandler) HandleBundles(c echo.Context) error {
	return c.JSON(http.StatusOK, h.acceptor.BundleSnapshots())
}

// Package app ties the Server Acceptor and the ambient admin HTTP
// surface together behind the teacher's own staged lifecycle:
// preProcess -> injectDependency -> Run -> postProcess, with a
// signal-driven graceful shutdown (drain window, bounded shutdown
// timeout).
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/atomic"

	"github.com/netframe/coreengine/internal/admin"
	"github.com/netframe/coreengine/internal/config"
	httpiface "github.com/netframe/coreengine/internal/handler/http/interface"
	"github.com/netframe/coreengine/internal/handler/http/health"
	"github.com/netframe/coreengine/internal/observability"
	"github.com/netframe/coreengine/internal/pipeline"
	"github.com/netframe/coreengine/internal/server"
)

// serverIdentity is what this process advertises as its own id in every
// session's handshake response.
const serverIdentity = "coreengine-server"

// App represents the application with its lifecycle management.
type App struct {
	config       *config.Config
	logger       observability.Logger
	echo         *echo.Echo
	readiness    *atomic.Bool
	httpHandlers []httpiface.HttpRouter
	acceptor     *server.Acceptor
	eventHandler pipeline.Handler
	cancel       context.CancelFunc
}

// NewApp creates a new App instance with the given configuration.
// eventHandler receives every dispatched event from every session; pass
// nil to use a handler that only logs each event (sufficient for running
// the Acceptor standalone without application-specific message logic).
func NewApp(cfg *config.Config, logger observability.Logger, eventHandler pipeline.Handler) *App {
	if logger == nil {
		logger = observability.NewStdLogger()
	}
	if eventHandler == nil {
		eventHandler = loggingHandler{logger: logger}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	return &App{
		config:       cfg,
		logger:       logger,
		echo:         e,
		readiness:    atomic.NewBool(false),
		eventHandler: eventHandler,
	}
}

// loggingHandler is the default pipeline.Handler when the caller supplies
// none: it logs every dispatched event and disconnect, giving the
// Acceptor somewhere to send events without requiring a caller to wire
// application logic just to run the server.
type loggingHandler struct {
	logger observability.Logger
}

func (h loggingHandler) OnDispatch(ev pipeline.Event) {
	h.logger.Info("app: event kind=%s id=%s sub_id=%s", ev.Kind, ev.ID, ev.SubID)
}

func (h loggingHandler) OnDisconnect(byItself bool) {
	h.logger.Info("app: session disconnected by_itself=%v", byItself)
}

// injectDependency initializes the Acceptor and every admin HTTP handler.
// This centralizes handler initialization and makes it easy to add new
// handlers.
func (a *App) injectDependency() {
	a.acceptor = server.NewAcceptor(server.Options{
		ServerID: serverIdentity,
		Pipeline: pipeline.Options{
			BufferSize:    a.config.BufferSize,
			StartCode:     a.config.StartCode,
			EndCode:       a.config.EndCode,
			EncryptMode:   a.config.EncryptMode,
			RegisteredKey: a.config.RegisteredKey,
			Pool:          a.config.Pool,
			BundleTimeout: time.Duration(a.config.BundleTimeoutSeconds) * time.Second,
		},
		ShutdownWait: time.Duration(a.config.ShutdownTimeoutSeconds) * time.Second,
	}, a.logger, a.eventHandler)

	a.httpHandlers = []httpiface.HttpRouter{
		health.NewHealthHandler(a.readiness),
		admin.NewDebugHandler(a.acceptor),
	}
}

// preProcess is called before the server starts. Use this hook for
// initialization tasks that need to happen before accepting traffic.
func (a *App) preProcess() {
	a.logger.Info("app: preparing to start")
	if err := a.acceptor.Start(a.config.ListenPort); err != nil {
		a.logger.Fatal("app: failed to start acceptor: %v", err)
	}
}

// postProcess is called after the shutdown signal is received. Use this
// hook for cleanup tasks before graceful shutdown begins.
func (a *App) postProcess() {
	a.logger.Info("app: shutting down gracefully")
}

// readinessGate rejects everything but the liveness/readiness/metrics
// routes while readiness is false, so a load balancer stops sending
// traffic during startup and during the shutdown drain window.
func (a *App) readinessGate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.readiness.Load() {
			p := c.Request().URL.Path
			if p != "/healthz" && p != "/readyz" && p != "/metrics" {
				a.logger.Info("app: readiness=false, rejecting request path=%s", p)
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return next(c)
	}
}

// configureEcho wires the middleware chain and every handler's routes onto
// a.echo. Split out of Run so tests can exercise the resulting routes
// directly via httptest without binding a real listener.
func (a *App) configureEcho() {
	e := a.echo

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: a.config.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(a.readinessGate)
	e.Use(echoprometheus.NewMiddleware("coreengine"))
	e.GET("/metrics", echoprometheus.NewHandler())

	for _, h := range a.httpHandlers {
		h.SetupRoutes(e)
	}
}

// Run starts the Acceptor and the admin Echo server, then blocks until a
// shutdown signal arrives and drives the full graceful shutdown sequence.
func (a *App) Run() error {
	_, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.injectDependency()
	a.preProcess()
	a.configureEcho()

	go func() {
		addr := fmt.Sprintf(":%d", a.config.AdminPort)
		a.readiness.Store(true)
		a.logger.Info("app: admin surface listening on %s", addr)
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			a.logger.Error("app: admin server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	a.logger.Info("app: ready, waiting for interrupt signal")
	<-quit

	a.postProcess()

	a.readiness.Store(false)
	drainDuration := time.Duration(a.config.ShutdownDrainSeconds) * time.Second
	a.logger.Info("app: readiness=false, draining for %v", drainDuration)
	time.Sleep(drainDuration)

	a.logger.Info("app: stopping acceptor")
	a.acceptor.Stop()

	shutdownTimeout := time.Duration(a.config.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	a.logger.Info("app: shutting down admin server")
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("app: admin shutdown error: %v", err)
		a.cancel()
		return err
	}

	a.cancel()
	a.logger.Info("app: stopped gracefully")
	return nil
}

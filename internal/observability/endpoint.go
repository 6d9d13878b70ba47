package observability

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
	metricspkg "github.com/jupiter-voice/jupiter/internal/observability/metrics"
)

// HealthFunc reports whether the application is healthy.
type HealthFunc func() bool

// Endpoint serves /metrics and /healthz.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	health        HealthFunc

	mu       sync.Mutex
	echo     *echo.Echo
	listener net.Listener
}

// NewEndpoint creates an endpoint for listenAddress. health may be nil, in
// which case /healthz always answers 200.
func NewEndpoint(listenAddress string, metrics *Metrics, health HealthFunc) *Endpoint {
	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
		health:        health,
	}
}

func (e *Endpoint) routes() *echo.Echo {
	ec := echo.New()
	ec.HideBanner = true
	ec.HidePort = true

	ec.GET("/metrics", echo.WrapHandler(e.metrics.Handler()))
	ec.GET("/healthz", func(c echo.Context) error {
		if e.health != nil && !e.health() {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return ec
}

// Run serves until ctx is done, then shuts the server down gracefully.
// A failure to bind is returned immediately.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryNetwork).
			Context("listen_address", e.listenAddress).
			Build()
	}

	ec := e.routes()
	ec.Listener = ln

	e.mu.Lock()
	e.echo = ec
	e.listener = ln
	e.mu.Unlock()

	log := GetLogger()
	serveErr := make(chan error, 1)
	go func() {
		log.Info("telemetry endpoint starting", logger.String("address", ln.Addr().String()))
		serveErr <- ec.Start("")
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := ec.Shutdown(shutdownCtx); err != nil {
		log.Error("telemetry server shutdown error", logger.Error(err))
		return err
	}
	<-serveErr
	return nil
}

// Addr returns the bound address once Run is serving, or nil before.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// Package ops exposes the server's operational HTTP surface: a JSON
// status snapshot and Prometheus metrics. It listens on its own TCP port,
// separate from the chat protocol.
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Eboubaker/chat/internal/core"
)

// Server serves GET /status and GET /metrics.
type Server struct {
	state *core.State
	echo  *echo.Echo
}

func New(state *core.State) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("ops request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{state: state, echo: e}
	e.GET("/status", s.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutCtx)
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.Snapshot())
}

package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nrednav/cuid2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// NewServer builds the carrier-facing echo server.
func NewServer(h *Handler, reg prometheus.Registerer) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.BodyLimit("1M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "sms_gateway",
		Registerer: reg,
	}))
	server.Use(middleware.Recover())

	server.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	h.Register(server)
	return server
}

// NewMetricsServer serves /metrics on its own listener.
func NewMetricsServer() *echo.Echo {
	metrics := echo.New()
	metrics.HideBanner = true
	metrics.HidePort = true
	metrics.GET("/metrics", echoprometheus.NewHandler())
	return metrics
}

// Run starts server on addr in the background. Errors other than a clean
// shutdown are logged.
func Run(server *echo.Echo, addr string, logger *logrus.Entry) {
	go func() {
		logger.WithField("addr", addr).Info("HTTP listener starting")
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP listener stopped")
		}
	}()
}

// Shutdown stops servers, waiting up to timeout for in-flight requests.
func Shutdown(timeout time.Duration, logger *logrus.Entry, servers ...*echo.Echo) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("HTTP listener did not shut down cleanly")
		}
	}
}

// Package metricsserver starts the crawler's optional Prometheus
// exposition endpoint as a standalone fasthttp server, separate from
// any other crawler surface.
package metricsserver

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Handler is satisfied by metrics.Metrics.
type Handler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Start creates and starts the metrics HTTP server. Returns nil if
// metrics are disabled, matching spec.md's `--monitor` flag gate.
func Start(enabled bool, listen, path string, handler Handler, logger *zap.Logger) (*fasthttp.Server, error) {
	if !enabled {
		logger.Info("metrics collection disabled")
		return nil, nil
	}

	logger.Debug("starting metrics server", zap.String("listen", listen), zap.String("path", path))

	server := &fasthttp.Server{
		Handler:            requestHandler(path, handler),
		Name:               "crawler-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 * 1024,
		TCPKeepalive:       true,
		TCPKeepalivePeriod: 30 * time.Second,
		MaxConnsPerIP:      100,
		MaxRequestsPerConn: 1000,
		Concurrency:        100,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("listen", listen), zap.String("path", path))
		if err := server.ListenAndServe(listen); err != nil {
			logger.Error("metrics server stopped", zap.String("listen", listen), zap.Error(err))
		}
	}()

	time.Sleep(100 * time.Millisecond)
	return server, nil
}

func requestHandler(path string, handler Handler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == path {
			handler.ServeHTTP(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("Not Found")
	}
}

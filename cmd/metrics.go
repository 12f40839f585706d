package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"mcu-image-pipeline/internal/metrics"
)

// newRecorder returns the stage recorder and, when addr is set, starts the
// metrics server. The returned stop function shuts the server down.
func newRecorder(addr string, logger logrus.FieldLogger) (metrics.Recorder, func()) {
	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(reg)

	if addr == "" {
		return recorder, func() {}
	}

	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.WithField("addr", addr).Info("Starting prometheus metrics server")
		if err := metricsServer.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Failed to start prometheus metrics server")
			}
		}
		logger.Info("Metrics server shut down")
	}()

	return recorder, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hilife/servicereport-backend/pkg/logger"
)

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs the /metrics listener until ctx is canceled. An empty port
// disables it.
func Serve(ctx context.Context, port string, g prometheus.Gatherer, logg *logger.Logger) error {
	if port == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if logg != nil {
		logg.Info(logg.WithField(ctx, "addr", srv.Addr), "metrics listener started")
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

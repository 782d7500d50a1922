// Package metrics exposes pipeline instrumentation.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth is the current pending-queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filtersink_queue_depth",
		Help: "Pending accepted-transaction events awaiting the consumer.",
	})

	// Transactions counts processed accepted-transaction events.
	Transactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filtersink_transactions_total",
		Help: "Accepted-transaction events processed.",
	})

	// ActionsPersisted counts filter-matched action documents written.
	ActionsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filtersink_actions_persisted_total",
		Help: "Filtered action documents written to the store.",
	})

	// DecodeFallbacks counts actions that fell through to the hex tier.
	DecodeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filtersink_decode_fallbacks_total",
		Help: "Actions persisted as raw hex after all decode tiers failed.",
	})

	// BulkWriteErrors counts failed per-transaction bulk inserts.
	BulkWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filtersink_bulk_write_errors_total",
		Help: "Bulk filter inserts that failed (logged, not retried).",
	})
)

// Serve exposes /metrics on addr in the background. Listener failures are
// logged, never fatal.
func Serve(addr string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", "addr", addr, "error", err)
		}
	}()
}

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "predex_messages_total", Help: "Venue messages received"},
		[]string{"feed", "event_type"},
	)
	MalformedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "predex_malformed_messages_total", Help: "Frames or messages dropped as undecodable"},
		[]string{"feed"},
	)
	RecordsFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "predex_records_flushed_total", Help: "Raw records appended to the event log"},
	)
	FlushErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "predex_flush_errors_total", Help: "Failed event log flushes"},
	)
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "predex_reconnects_total", Help: "Transport failures followed by a reconnect attempt"},
		[]string{"feed"},
	)
	FeedState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "predex_feed_state", Help: "Connection lifecycle state (0 disconnected, 1 connecting, 2 subscribed, 3 streaming, 4 stopped)"},
		[]string{"feed"},
	)
	BookDiagnostics = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "predex_book_diagnostics_total", Help: "Order-book inputs dropped or flagged"},
		[]string{"reason"},
	)
	InconsistentBooks = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "predex_inconsistent_books", Help: "Live books currently flagged inconsistent"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		MalformedTotal,
		RecordsFlushed,
		FlushErrors,
		ReconnectsTotal,
		FeedState,
		BookDiagnostics,
		InconsistentBooks,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

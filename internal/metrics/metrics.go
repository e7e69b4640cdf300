// Package metrics exposes Prometheus counters for the process lifecycle
// and an optional HTTP listener for scraping them.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/malyn/groundcontrol/internal/events"
)

var (
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundcontrol_process_state_transitions_total",
		Help: "Lifecycle state transitions, partitioned by process and new state",
	}, []string{"process", "state"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundcontrol_process_exits_total",
		Help: "Daemon exits, partitioned by process and outcome",
	}, []string{"process", "outcome"})

	shutdowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundcontrol_shutdowns_total",
		Help: "Shutdown sequences, partitioned by trigger source",
	}, []string{"source"})
)

// Observe subscribes the lifecycle counters to the event bus. The
// returned function unsubscribes them.
func Observe(bus *events.Bus) func() {
	unsubState := bus.Subscribe(func(e events.ProcessStateChangedEvent) {
		stateTransitions.WithLabelValues(e.Process, e.To).Inc()
	})
	unsubExit := bus.Subscribe(func(e events.ProcessExitedEvent) {
		processExits.WithLabelValues(e.Process, e.Outcome).Inc()
	})
	unsubShutdown := bus.Subscribe(func(e events.ShutdownInitiatedEvent) {
		shutdowns.WithLabelValues(e.Source).Inc()
	})

	return func() {
		unsubState()
		unsubExit()
		unsubShutdown()
	}
}

// Handler returns the Prometheus metrics HTTP handler. This collects
// all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string, logger *slog.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())
		logger.Info("Metrics server starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
}

package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	monitorTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Number of completed monitor ticks.",
		}, []string{"target"},
	)
	failuresDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "failures_detected_total",
			Help:      "Number of failures observed, by detection kind (liveness, log, sleep).",
		}, []string{"target", "kind"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "restarts_total",
			Help:      "Number of restart attempts, by result (success, failure).",
		}, []string{"target", "result"},
	)
	restartDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "restart_denials_total",
			Help:      "Number of restart attempts denied by policy, by reason.",
		}, []string{"target", "reason"},
	)
	targetUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "target_up",
			Help:      "Whether the target was alive at the last completed tick.",
		}, []string{"target"},
	)
	ledgerCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "ledger_restart_count",
			Help:      "Restart count in the current rate-limit window.",
		}, []string{"target"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{monitorTicks, failuresDetected, restarts, restartDenials, targetUp, ledgerCount}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register
// has been called.

func IncTick(target string) {
	if regOK.Load() {
		monitorTicks.WithLabelValues(target).Inc()
	}
}

func IncFailure(target, kind string) {
	if regOK.Load() {
		failuresDetected.WithLabelValues(target, kind).Inc()
	}
}

func IncRestart(target string, success bool) {
	if regOK.Load() {
		result := "failure"
		if success {
			result = "success"
		}
		restarts.WithLabelValues(target, result).Inc()
	}
}

func IncDenial(target, reason string) {
	if regOK.Load() {
		restartDenials.WithLabelValues(target, reason).Inc()
	}
}

func SetTargetUp(target string, up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1.0
		}
		targetUp.WithLabelValues(target).Set(v)
	}
}

func SetLedgerCount(target string, n uint32) {
	if regOK.Load() {
		ledgerCount.WithLabelValues(target).Set(float64(n))
	}
}

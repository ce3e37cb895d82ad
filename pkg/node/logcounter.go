package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap/zapcore"
)

var logEntries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "xerc_log_entries_total",
		Help: "Total number of log entries written, by level",
	}, []string{"level"})

// CountLogEntries is a zap hook (see zap.Hooks) counting the entries the logger writes.
func CountLogEntries(e zapcore.Entry) error {
	logEntries.WithLabelValues(e.Level.String()).Inc()
	return nil
}

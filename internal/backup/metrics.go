package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matapouri_backup_operations_total",
		Help: "Backup operations by type and outcome",
	}, []string{"operation", "status"})

	writeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matapouri_backup_write_duration_seconds",
		Help:    "Time to write a snapshot and its latest pointer",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	lastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matapouri_backup_last_success_timestamp_seconds",
		Help: "Unix time of the last successful snapshot per category",
	}, []string{"category"})
)

func observeWrite(category string, res WriteResult, elapsed time.Duration) {
	writeDuration.Observe(elapsed.Seconds())
	if !res.OK() {
		operationsTotal.WithLabelValues("write", "error").Inc()
		return
	}
	operationsTotal.WithLabelValues("write", "success").Inc()
	lastSuccess.WithLabelValues(category).SetToCurrentTime()
}

func observeRead(res ReadResult) {
	switch {
	case res.Found():
		operationsTotal.WithLabelValues("read", "success").Inc()
	case res.Absent():
		operationsTotal.WithLabelValues("read", "absent").Inc()
	default:
		operationsTotal.WithLabelValues("read", "error").Inc()
	}
}

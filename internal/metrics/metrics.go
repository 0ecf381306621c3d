// Package metrics exports statement and key-value call counters to
// Prometheus. A Collector is an engine.Listener.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
)

// Collector holds the adapter's metrics on its own registry.
type Collector struct {
	reg *prometheus.Registry

	// OperationsTotal counts statements and key-value calls by operation
	// and outcome ("ok" or the lower-case error code).
	OperationsTotal *prometheus.CounterVec

	// OperationDuration is the latency of each operation in seconds.
	OperationDuration *prometheus.HistogramVec

	// RowsTotal counts rows returned or documents touched.
	RowsTotal *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		reg: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "n1qlorm_operations_total",
				Help: "Total number of statements and key-value calls",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "n1qlorm_operation_duration_seconds",
				Help:    "Statement and key-value call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "n1qlorm_rows_total",
				Help: "Rows returned or documents touched",
			},
			[]string{"operation"},
		),
	}
}

var _ engine.Listener = (*Collector)(nil)

// QueryFired implements engine.Listener.
func (c *Collector) QueryFired(_ context.Context, ev engine.QueryEvent) {
	c.OperationsTotal.WithLabelValues(ev.Operation, status(ev)).Inc()
	c.OperationDuration.WithLabelValues(ev.Operation).Observe(ev.Duration.Seconds())
	if ev.RowCount > 0 {
		c.RowsTotal.WithLabelValues(ev.Operation).Add(float64(ev.RowCount))
	}
}

func status(ev engine.QueryEvent) string {
	if ev.Success {
		return "ok"
	}
	code := dberr.CodeOf(ev.Err)
	if code == "" {
		return "error"
	}
	return strings.ToLower(string(code))
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels used in metric names.
const (
	opIndex   = "index"
	opQuery   = "query"
	opUpdate  = "update"
	opDelete  = "delete"
	opList    = "list"
	opPersist = "persist"
	opLoad    = "load"
)

var operations = []string{opIndex, opQuery, opUpdate, opDelete, opList, opPersist, opLoad}

// metrics exposes one counter and latency histogram family per operation:
// rag_<op>_requests_total{status} and rag_<op>_latency.
type metrics struct {
	requests map[string]*prometheus.CounterVec
	latency  map[string]prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: make(map[string]*prometheus.CounterVec, len(operations)),
		latency:  make(map[string]prometheus.Histogram, len(operations)),
	}
	for _, op := range operations {
		m.requests[op] = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("rag_%s_requests_total", op),
			Help: fmt.Sprintf("Total %s requests by status.", op),
		}, []string{"status"})
		m.latency[op] = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("rag_%s_latency", op),
			Help:    fmt.Sprintf("Latency of %s requests in seconds.", op),
			Buckets: prometheus.DefBuckets,
		})
	}
	return m
}

// observe records one request's outcome and duration.
func (m *metrics) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.requests[op].WithLabelValues(status).Inc()
	m.latency[op].Observe(time.Since(start).Seconds())
}

// Package metrics exposes Prometheus counters for chain and store activity.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "airdrop"

// Metrics holds the collectors used across the resolver and classifier.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RPCCalls        *prometheus.CounterVec
	RPCRetries      *prometheus.CounterVec
	RPCLatency      *prometheus.HistogramVec
	WindowsScanned  prometheus.Counter
	PairsResolved   *prometheus.CounterVec
	Classifications *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RPCCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_calls_total",
			Help:      "RPC calls by method and outcome",
		}, []string{"method", "status"}),
		RPCRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_retries_total",
			Help:      "Retried chain queries by operation",
		}, []string{"op"}),
		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_latency_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WindowsScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "creation",
			Name:      "windows_scanned_total",
			Help:      "PairCreated log windows queried",
		}),
		PairsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "creation",
			Name:      "pairs_resolved_total",
			Help:      "Creation block resolutions by outcome",
		}, []string{"status"}),
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "classifications_total",
			Help:      "Address classifications by source (cache, chain) and kind",
		}, []string{"source", "kind"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRPC records one RPC call.
func (m *Metrics) ObserveRPC(method string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RPCCalls.WithLabelValues(method, status).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

// IncRetry records a retried chain query.
func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.RPCRetries.WithLabelValues(op).Inc()
}

// IncWindow records a scanned window.
func (m *Metrics) IncWindow() {
	if m == nil {
		return
	}
	m.WindowsScanned.Inc()
}

// IncResolved records a resolution outcome.
func (m *Metrics) IncResolved(status string) {
	if m == nil {
		return
	}
	m.PairsResolved.WithLabelValues(status).Inc()
}

// IncClassification records a classification answer.
func (m *Metrics) IncClassification(source string, isContract bool) {
	if m == nil {
		return
	}
	kind := "eoa"
	if isContract {
		kind = "contract"
	}
	m.Classifications.WithLabelValues(source, kind).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsCollector wraps the Prometheus registry shared by the gRPC server
// metrics and the upload pipeline metrics.
type MetricsCollector struct {
	registry      *prometheus.Registry
	serverMetrics *grpcprom.ServerMetrics
	uploads       *UploadMetrics
}

// InitMetrics registers gRPC server and upload metrics on a fresh registry.
func InitMetrics() (*MetricsCollector, error) {
	registry := prometheus.NewRegistry()

	// Create server metrics with default buckets
	serverMetrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}),
		),
	)
	if err := registry.Register(serverMetrics); err != nil {
		return nil, err
	}

	uploads, err := NewUploadMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &MetricsCollector{
		registry:      registry,
		serverMetrics: serverMetrics,
		uploads:       uploads,
	}, nil
}

// GetServerMetrics returns the gRPC server metrics
func (mc *MetricsCollector) GetServerMetrics() *grpcprom.ServerMetrics {
	return mc.serverMetrics
}

func (mc *MetricsCollector) Uploads() *UploadMetrics {
	return mc.uploads
}

// GetHandler returns the HTTP handler for /metrics endpoint
func (mc *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}

// NewMetricsServer serves /metrics and /health on port.
func (mc *MetricsCollector) NewMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", mc.GetHandler())

	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// RunMetricsServer blocks serving srv until ctx is cancelled.
func RunMetricsServer(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting metrics server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// UploadMetrics counts pipeline outcomes. A nil *UploadMetrics is a no-op.
type UploadMetrics struct {
	uploads  *prometheus.CounterVec
	bytes    prometheus.Counter
	saved    prometheus.Counter
	orphaned prometheus.Counter
	duration prometheus.Histogram
}

func NewUploadMetrics(reg prometheus.Registerer) (*UploadMetrics, error) {
	m := &UploadMetrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clouddrive_uploads_total",
			Help: "Uploads by outcome: instant, full or failed.",
		}, []string{"mode"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clouddrive_uploaded_bytes_total",
			Help: "Bytes written to the object store.",
		}),
		saved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clouddrive_dedup_saved_bytes_total",
			Help: "Bytes not written because an identical object was reused.",
		}),
		orphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clouddrive_orphaned_objects_total",
			Help: "Objects stored without a referencing file record.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clouddrive_upload_duration_seconds",
			Help:    "Wall time of successful uploads.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
		}),
	}

	for _, c := range []prometheus.Collector{m.uploads, m.bytes, m.saved, m.orphaned, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *UploadMetrics) ObserveInstant(size int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("instant").Inc()
	m.saved.Add(float64(size))
	m.duration.Observe(elapsed.Seconds())
}

func (m *UploadMetrics) ObserveFull(size int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("full").Inc()
	m.bytes.Add(float64(size))
	m.duration.Observe(elapsed.Seconds())
}

func (m *UploadMetrics) ObserveFailed() {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("failed").Inc()
}

func (m *UploadMetrics) ObserveOrphaned() {
	if m == nil {
		return
	}
	m.orphaned.Inc()
}

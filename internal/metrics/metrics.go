package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 运行指标
type Metrics struct {
	registry *prometheus.Registry

	Iterations        prometheus.Counter
	FetchErrors       prometheus.Counter
	Signals           *prometheus.CounterVec // labels: direction
	SuppressedSignals prometheus.Counter
	NotificationsSent prometheus.Counter
	NotificationsFail prometheus.Counter
	IterationDuration prometheus.Histogram
}

// New 创建并注册全部指标，每个实例使用独立的Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macd_sentry_iterations_total",
			Help: "Total driver loop iterations",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macd_sentry_fetch_errors_total",
			Help: "Candle fetch failures after retries",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macd_sentry_signals_total",
			Help: "Detected crossover signals",
		}, []string{"direction"}),
		SuppressedSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macd_sentry_signals_suppressed_total",
			Help: "Signals skipped because they were already notified",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macd_sentry_notifications_sent_total",
			Help: "Signals delivered to every configured notifier",
		}),
		NotificationsFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macd_sentry_notifications_failed_total",
			Help: "Signals that failed on at least one notifier",
		}),
		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "macd_sentry_iteration_duration_seconds",
			Help:    "Driver loop iteration latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.Iterations,
		m.FetchErrors,
		m.Signals,
		m.SuppressedSignals,
		m.NotificationsSent,
		m.NotificationsFail,
		m.IterationDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveIteration 记录一次迭代
func (m *Metrics) ObserveIteration(started time.Time) {
	m.Iterations.Inc()
	m.IterationDuration.Observe(time.Since(started).Seconds())
}

// Router /metrics 与 /healthz 路由
func (m *Metrics) Router(health func() error) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// Serve 启动指标HTTP服务，ctx取消后关闭
func (m *Metrics) Serve(ctx context.Context, listen string, health func() error) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           m.Router(health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("📊 指标服务已启动", zap.String("listen", listen))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

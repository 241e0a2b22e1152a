package monitor

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Metrics is the Prometheus view of one analysis process. It implements
// manager.Observer.
type Metrics struct {
	registry *prometheus.Registry
	proc     *process.Process

	memUsage          prometheus.Gauge
	cpuUsage          prometheus.Gauge
	requests          *prometheus.CounterVec
	frames            prometheus.Counter
	frameLatency      prometheus.Histogram
	adapterFailures   *prometheus.CounterVec
	classifierRuns    *prometheus.CounterVec
	classifierLatency prometheus.Histogram
	playConfidence    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_Megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of analysis requests processed",
		}, []string{"surface"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frames_analyzed_total",
			Help: "Frames fused into a result",
		}),
		frameLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frame_analysis_seconds",
			Help:    "Time to analyze one frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		adapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapter_failures_total",
			Help: "Detection adapter failures by adapter and reason",
		}, []string{"adapter", "reason"}),
		classifierRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classifier_runs_total",
			Help: "Game state classifier invocations by outcome",
		}, []string{"outcome"}),
		classifierLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classifier_seconds",
			Help:    "Time for one clip classification",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		playConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "game_state_play",
			Help: "1 when the last classification was play, 0 for no-play",
		}),
	}
	m.registry.MustRegister(m.memUsage, m.cpuUsage, m.requests, m.frames, m.frameLatency,
		m.adapterFailures, m.classifierRuns, m.classifierLatency, m.playConfidence)
	return m
}

func (m *Metrics) FrameAnalyzed(elapsed time.Duration) {
	m.frames.Inc()
	m.frameLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) AdapterFailed(adapter string, err error) {
	m.adapterFailures.WithLabelValues(adapter, reason(err)).Inc()
}

func (m *Metrics) ClassifierRun(result iface.ClassificationResult, elapsed time.Duration, err error) {
	m.classifierLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.classifierRuns.WithLabelValues(reason(err)).Inc()
		return
	}
	m.classifierRuns.WithLabelValues("ok").Inc()
	if result.State == iface.StatePlay {
		m.playConfidence.Set(1)
	} else {
		m.playConfidence.Set(0)
	}
}

// RequestServed counts one request on an outer surface (grpc, http).
func (m *Metrics) RequestServed(surface string) {
	m.requests.WithLabelValues(surface).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, iface.ErrModelUnavailable):
		return "unavailable"
	case errors.Is(err, iface.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, iface.ErrInference):
		return "inference"
	default:
		return "other"
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CheckProcessInfo samples memory and CPU of the current process.
func (m *Metrics) CheckProcessInfo() error {
	if m.proc == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}
		m.proc = p
	}
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		return err
	}
	cpuPercent, err := m.proc.CPUPercent()
	if err != nil {
		return err
	}
	m.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	m.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	return nil
}

// StartMon serves /metrics on port and samples process stats until ctx is
// done.
func StartMon(ctx context.Context, port int, m *Metrics) {
	log := logger.Named("monitor")
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Int("port", port), zap.Error(err))
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			if err := m.CheckProcessInfo(); err != nil {
				log.Debug("process sample failed", zap.Error(err))
			}
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown", zap.Error(err))
	}
}

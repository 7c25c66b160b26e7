// Package metrics exposes Prometheus metrics for the streaming pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds all Prometheus metrics for one pipeline run.
type Metrics struct {
	registry *prometheus.Registry

	// Frame metrics
	FramesCaptured prometheus.Counter
	FramesMissed   prometheus.Counter
	FramesEncoded  prometheus.Counter

	// Audio metrics
	AudioSamples prometheus.Counter

	// Supervision metrics
	RetryAttempts prometheus.Counter
	Reloads       prometheus.Counter
	PipelineState prometheus.Gauge
}

// New creates and registers all metrics on a private registry, so repeated
// construction (as in tests) never collides.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_stream_frames_captured_total",
			Help: "Total number of frames captured from the browser",
		}),
		FramesMissed: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_stream_frames_missed_total",
			Help: "Total number of cadence ticks without a captured frame",
		}),
		FramesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_stream_frames_encoded_total",
			Help: "Total number of frames written to the encoder",
		}),
		AudioSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_stream_audio_samples_total",
			Help: "Total number of silence samples written to the encoder",
		}),
		RetryAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_stream_retry_attempts_total",
			Help: "Total number of pipeline restart attempts",
		}),
		Reloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_stream_reloads_total",
			Help: "Total number of operator-requested page reloads",
		}),
		PipelineState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browser_stream_pipeline_state",
			Help: "Current pipeline state (0=starting 1=streaming 2=reloading 3=retrying 4=failed)",
		}),
	}
}

// Serve starts the metrics HTTP listener on addr in a background goroutine.
// A listen failure is logged, not fatal: metrics are an observation surface,
// losing them must not take the stream down.
func (m *Metrics) Serve(addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.WithField("addr", addr).Info("Starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()
}

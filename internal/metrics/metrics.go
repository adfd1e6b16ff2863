// Package metrics exposes acquisition counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	NotificationsTotal  prometheus.Counter
	DecodeErrorsTotal   prometheus.Counter
	MeasurementsTotal   prometheus.Counter
	ReconnectsTotal     prometheus.Counter
	LastValueMM         prometheus.Gauge
	AcquisitionDuration prometheus.Histogram
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		NotificationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sylvac_notifications_total",
			Help: "Total number of measurement notifications received",
		}),
		DecodeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sylvac_decode_errors_total",
			Help: "Total number of notifications that could not be decoded",
		}),
		MeasurementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sylvac_measurements_total",
			Help: "Total number of samples recorded",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sylvac_reconnects_total",
			Help: "Total number of successful reconnections",
		}),
		LastValueMM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sylvac_last_value_mm",
			Help: "Most recent reading in millimetres",
		}),
		AcquisitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sylvac_acquisition_duration_seconds",
			Help:    "Duration of complete acquisition runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.NotificationsTotal,
		m.DecodeErrorsTotal,
		m.MeasurementsTotal,
		m.ReconnectsTotal,
		m.LastValueMM,
		m.AcquisitionDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveReading counts a decoded notification.
func (m *Metrics) ObserveReading(r sylvac.Reading) {
	m.NotificationsTotal.Inc()
	m.LastValueMM.Set(r.Value)
}

// ObserveDecodeError counts a notification that failed to decode.
func (m *Metrics) ObserveDecodeError(error) {
	m.NotificationsTotal.Inc()
	m.DecodeErrorsTotal.Inc()
}

// ObserveMeasurement counts a recorded sample.
func (m *Metrics) ObserveMeasurement(sylvac.Measurement) {
	m.MeasurementsTotal.Inc()
}

// ObserveReconnect counts a successful reconnection.
func (m *Metrics) ObserveReconnect() {
	m.ReconnectsTotal.Inc()
}

// ObserveAcquisition records the duration of a finished run.
func (m *Metrics) ObserveAcquisition(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.AcquisitionDuration.Observe(d.Seconds())
}

// Handler returns an HTTP handler that exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

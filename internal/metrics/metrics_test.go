package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

func TestObserve(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.ObserveReading(sylvac.NewReading(12345, time.Now()))
	m.ObserveReading(sylvac.NewReading(-500, time.Now()))
	m.ObserveDecodeError(errors.New("short"))
	m.ObserveMeasurement(sylvac.Measurement{Number: 1})
	m.ObserveReconnect()
	m.ObserveAcquisition(3 * time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MeasurementsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectsTotal))
	assert.Equal(t, -0.5, testutil.ToFloat64(m.LastValueMM))

	count, err := testutil.GatherAndCount(reg, "sylvac_acquisition_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegister_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New().Register(reg))
	assert.Error(t, New().Register(reg))
}

func TestHandler(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	m.ObserveMeasurement(sylvac.Measurement{})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sylvac_measurements_total 1")
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, prometheus.NewRegistry(), slog.New(slog.DiscardHandler))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

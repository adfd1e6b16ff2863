package sylvac

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Source supplies decoded readings to a Recorder.
// The channel is closed when no more readings will arrive.
type Source interface {
	Readings() <-chan Reading
}

// ChanSource adapts a plain channel to a Source.
type ChanSource <-chan Reading

// Readings implements Source.
func (s ChanSource) Readings() <-chan Reading {
	return s
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the time source used to stamp measurements.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSink sets a function called synchronously for every recorded sample.
// An error from the sink aborts the acquisition.
func WithSink(sink func(Measurement, Reading) error) RecorderOption {
	return func(r *Recorder) {
		r.sink = sink
	}
}

// Recorder collects measurements from a Source.
// It owns the measurement list of the current (or last) acquisition.
type Recorder struct {
	now  func() time.Time
	sink func(Measurement, Reading) error

	mu            sync.RWMutex
	measurements  []Measurement
	running       bool
	onMeasurement func(Measurement)
}

// NewRecorder creates an empty Recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnMeasurement sets a callback that fires after each sample is recorded.
func (r *Recorder) OnMeasurement(cb func(Measurement)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMeasurement = cb
}

// Acquire records count samples from src, waiting interval between them.
//
// Each sample is the newest reading available once the previous interval has
// elapsed; if none has arrived yet, Acquire blocks until one does. Readings
// that queue up in the meantime are coalesced, only the latest is kept.
// Samples are numbered from 1.
//
// The measurement list is reset when Acquire starts. If ctx is cancelled or
// the source closes early, the samples recorded so far are kept and
// ctx.Err() or ErrSourceClosed is returned.
func (r *Recorder) Acquire(ctx context.Context, src Source, count int, interval time.Duration) error {
	if count <= 0 {
		return ErrInvalidCount
	}
	if interval < 0 {
		return ErrInvalidInterval
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAcquiring
	}
	r.running = true
	r.measurements = make([]Measurement, 0, count)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	readings := src.Readings()

	for n := 1; n <= count; n++ {
		reading, err := awaitLatest(ctx, readings)
		if err != nil {
			return err
		}

		m := NewMeasurement(n, reading, r.now())

		r.mu.Lock()
		r.measurements = append(r.measurements, m)
		cb := r.onMeasurement
		r.mu.Unlock()

		if r.sink != nil {
			if err := r.sink(m, reading); err != nil {
				return fmt.Errorf("sylvac: record sample %d: %w", n, err)
			}
		}
		if cb != nil {
			cb(m)
		}

		if n < count {
			if err := sleep(ctx, interval); err != nil {
				return err
			}
		}
	}

	return nil
}

// awaitLatest blocks for one reading, then drains anything already queued
// and returns the newest.
func awaitLatest(ctx context.Context, ch <-chan Reading) (Reading, error) {
	var latest Reading

	select {
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return Reading{}, ErrSourceClosed
		}
		latest = r
	}

	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return latest, nil
			}
			latest = r
		default:
			return latest, nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Running reports whether an acquisition is in progress.
func (r *Recorder) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Measurements returns a copy of the recorded samples in acquisition order.
func (r *Recorder) Measurements() []Measurement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Measurement, len(r.measurements))
	copy(result, r.measurements)
	return result
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.measurements)
}

// Add appends a measurement recorded elsewhere, e.g. loaded from storage.
func (r *Recorder) Add(m Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measurements = append(r.measurements, m)
}

// Reset clears the recorded samples.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measurements = nil
}

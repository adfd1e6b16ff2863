// Package analysis computes statistics over recorded measurements.
package analysis

import (
	"math"
	"time"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/protocol"
)

// RunSummary contains statistics for a single acquisition.
type RunSummary struct {
	Count     int     `json:"count"`
	Requested int     `json:"requested,omitempty"`
	MinMM     float64 `json:"min_mm"`
	MaxMM     float64 `json:"max_mm"`
	RangeMM   float64 `json:"range_mm"`
	MeanMM    float64 `json:"mean_mm"`
	StdDevMM  float64 `json:"std_dev_mm"`

	DurationMs      int64   `json:"duration_ms"`
	AvgIntervalMs   float64 `json:"avg_interval_ms"`
	LongestGapMs    int64   `json:"longest_gap_ms"`
	LateSampleCount int     `json:"late_sample_count"`
}

// GapInfo represents a gap between two consecutive samples that was longer
// than the configured interval, usually because the caliper sent nothing.
type GapInfo struct {
	AfterNumber int   `json:"after_number"`
	DurationMs  int64 `json:"duration_ms"`
}

// Summarize computes value and timing statistics for ms. The interval is the
// one the acquisition was configured with; a gap counts as late when it
// exceeds interval by more than tolerance. Timestamps have one-second
// resolution, so tolerance should be at least a second.
func Summarize(ms []sylvac.Measurement, requested int, interval, tolerance time.Duration) RunSummary {
	s := RunSummary{Count: len(ms), Requested: requested}
	if len(ms) == 0 {
		return s
	}

	s.MinMM, s.MaxMM = ms[0].Value, ms[0].Value
	var sum float64
	for _, m := range ms {
		sum += m.Value
		s.MinMM = math.Min(s.MinMM, m.Value)
		s.MaxMM = math.Max(s.MaxMM, m.Value)
	}
	s.MeanMM = protocol.Round3(sum / float64(len(ms)))
	s.RangeMM = protocol.Round3(s.MaxMM - s.MinMM)
	s.StdDevMM = protocol.Round3(StdDev(ms))

	gaps := sampleGaps(ms)
	if len(gaps) > 0 {
		var total int64
		for _, g := range gaps {
			total += g
			if g > s.LongestGapMs {
				s.LongestGapMs = g
			}
		}
		s.DurationMs = total
		s.AvgIntervalMs = float64(total) / float64(len(gaps))
	}
	s.LateSampleCount = len(FindLateSamples(ms, interval, tolerance))

	return s
}

// StdDev returns the sample standard deviation of the values.
func StdDev(ms []sylvac.Measurement) float64 {
	if len(ms) < 2 {
		return 0
	}

	var mean float64
	for _, m := range ms {
		mean += m.Value
	}
	mean /= float64(len(ms))

	var sq float64
	for _, m := range ms {
		d := m.Value - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(ms)-1))
}

// FindLateSamples finds samples that arrived more than tolerance after the
// configured interval.
func FindLateSamples(ms []sylvac.Measurement, interval, tolerance time.Duration) []GapInfo {
	var late []GapInfo

	threshold := (interval + tolerance).Milliseconds()
	for i, g := range sampleGaps(ms) {
		if g > threshold {
			late = append(late, GapInfo{
				AfterNumber: ms[i].Number,
				DurationMs:  g,
			})
		}
	}

	return late
}

// sampleGaps returns the time between consecutive samples in milliseconds.
// Samples whose timestamp cannot be parsed are skipped.
func sampleGaps(ms []sylvac.Measurement) []int64 {
	if len(ms) < 2 {
		return nil
	}

	times := make([]time.Time, len(ms))
	for i, m := range ms {
		t, err := m.Time()
		if err != nil {
			return nil
		}
		times[i] = t
	}

	gaps := make([]int64, 0, len(ms)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Milliseconds())
	}
	return gaps
}

package rawlog

import (
	"context"
	"time"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

// ReplaySource is a sylvac.Source that feeds logged readings back.
//
// With a positive speed the original spacing between notifications is
// reproduced, divided by speed. With speed <= 0 readings are delivered as
// fast as they are consumed, which makes a Recorder coalesce them.
type ReplaySource struct {
	ch chan sylvac.Reading
}

// NewReplaySource starts feeding readings. The channel is closed after the
// last reading or when ctx is cancelled.
func NewReplaySource(ctx context.Context, readings []sylvac.Reading, speed float64) *ReplaySource {
	s := &ReplaySource{ch: make(chan sylvac.Reading)}
	go s.run(ctx, readings, speed)
	return s
}

// Readings implements sylvac.Source.
func (s *ReplaySource) Readings() <-chan sylvac.Reading {
	return s.ch
}

func (s *ReplaySource) run(ctx context.Context, readings []sylvac.Reading, speed float64) {
	defer close(s.ch)

	for i, r := range readings {
		if speed > 0 && i > 0 {
			gap := r.ReceivedAt.Sub(readings[i-1].ReceivedAt)
			if gap > 0 {
				t := time.NewTimer(time.Duration(float64(gap) / speed))
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case s.ch <- r:
		}
	}
}

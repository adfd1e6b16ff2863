package sylvac

import (
	"fmt"
	"time"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/protocol"
)

// TimestampLayout is the layout of Measurement.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Reading is a single decoded measurement notification.
type Reading struct {
	Micrometres int32     // Raw device value
	Value       float64   // Millimetres, unrounded
	ReceivedAt  time.Time // When the notification arrived
}

// NewReading builds a Reading from a raw micrometre value.
func NewReading(micrometres int32, at time.Time) Reading {
	return Reading{
		Micrometres: micrometres,
		Value:       protocol.MicrometresToMillimetres(micrometres),
		ReceivedAt:  at,
	}
}

// DecodeReading decodes a raw measurement notification payload.
func DecodeReading(data []byte, at time.Time) (Reading, error) {
	um, err := protocol.DecodeMeasurement(data)
	if err != nil {
		return Reading{}, fmt.Errorf("sylvac: decode reading: %w", err)
	}
	return NewReading(um, at), nil
}

// Measurement is one recorded sample of an acquisition.
type Measurement struct {
	Number    int     // 1-based ordinal within the acquisition
	Timestamp string  // Local time formatted with TimestampLayout
	Value     float64 // Millimetres, rounded to three decimals
}

// NewMeasurement stamps a reading as sample number n taken at t.
func NewMeasurement(n int, r Reading, t time.Time) Measurement {
	return Measurement{
		Number:    n,
		Timestamp: t.Format(TimestampLayout),
		Value:     protocol.Round3(r.Value),
	}
}

// Time parses the timestamp back in the local time zone.
func (m Measurement) Time() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, m.Timestamp, time.Local)
}

// String returns the display form used in listings, e.g. "Medición 3: 12.345 mm".
func (m Measurement) String() string {
	return fmt.Sprintf("Medición %d: %.3f mm", m.Number, m.Value)
}

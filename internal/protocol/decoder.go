// Package protocol implements the Sylvac simple-data BLE profile used by the
// SY289 caliper.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Sylvac simple-data service and characteristic UUIDs
const (
	ServiceUUID         = "00005000-0000-1000-8000-00805f9b34fb"
	MeasurementCharUUID = "00005020-0000-1000-8000-00805f9b34fb" // Notify, Read
)

// DefaultNamePattern is matched against the advertised local name.
const DefaultNamePattern = "SY289"

// MeasurementSize is the payload length of a measurement notification.
const MeasurementSize = 4

// Errors
var (
	ErrInvalidLength = errors.New("invalid measurement length")
)

// DecodeMeasurement decodes a measurement notification.
// The payload is a signed 32-bit little-endian value in micrometres.
func DecodeMeasurement(data []byte) (int32, error) {
	if len(data) != MeasurementSize {
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidLength, MeasurementSize, len(data))
	}
	return int32(binary.LittleEndian.Uint32(data)), nil
}

// EncodeMeasurement builds a measurement payload. Used by simulators and tests.
func EncodeMeasurement(micrometres int32) []byte {
	buf := make([]byte, MeasurementSize)
	binary.LittleEndian.PutUint32(buf, uint32(micrometres))
	return buf
}

// MicrometresToMillimetres converts a raw device value to millimetres.
func MicrometresToMillimetres(um int32) float64 {
	return float64(um) / 1000.0
}

// Round3 rounds to three decimal places, half away from zero.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

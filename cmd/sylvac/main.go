// SY289 Caliper Recorder - CLI application for collecting and exporting
// Sylvac caliper measurements.
package main

import (
	"github.com/SeamusWaldron/sylvac_ble_library/internal/cli"
)

func main() {
	cli.Execute()
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby calipers",
	Long:  `List nearby BLE devices whose advertised name matches the configured pattern (default "SY289").`,
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

// scanForCalipers scans using the configured pattern and timeout.
func scanForCalipers(ctx context.Context) ([]sylvac.Device, error) {
	fmt.Println("Escaneando dispositivos BLE cercanos...")

	devices, err := sylvac.Scan(ctx, caliperOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	log.Debug("scan finished", "found", len(devices), "pattern", cfg.Device.NamePattern)
	return devices, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	devices, err := scanForCalipers(cmd.Context())
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		printNotFoundTips()
		return sylvac.ErrDeviceNotFound
	}

	fmt.Printf("Found %d device(s):\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  - %s (Address: %s, RSSI: %d)\n", d.Name, d.Address, d.RSSI)
	}

	return nil
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorder state and nearby calipers",
	Long:  `Display the database in use, recorded runs, any interrupted run, the last connected caliper and the calipers currently in range.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	stateFile, err := openStateFile(db)
	if err != nil {
		return err
	}
	state := stateFile.State()

	fmt.Println("SY289 Caliper Recorder Status")
	fmt.Println("=============================")
	fmt.Println()

	fmt.Printf("Database: %s\n", db.Path())

	runRepo := storage.NewRunRepository(db)
	runs, err := runRepo.List(10000)
	if err == nil {
		if len(runs) > 0 {
			fmt.Printf("Last run: %s\n", runs[0].StartedAt.Local().Format(time.RFC3339))
		}
		fmt.Printf("Total runs: %d\n", len(runs))
	}

	fmt.Println()

	if state.ActiveRunID != "" {
		fmt.Printf("Interrupted run: %s\n", state.ActiveRunID)
		fmt.Println("  (It will be closed by the next 'sylvac measure'; export it with 'sylvac export --id')")
	} else {
		fmt.Println("No active run")
	}

	fmt.Println()

	if state.LastDeviceAddress != "" {
		fmt.Printf("Last device: %s (%s)\n", state.LastDeviceName, state.LastDeviceAddress)
	} else {
		fmt.Println("No device history")
	}

	fmt.Println()

	devices, err := scanForCalipers(cmd.Context())
	if err != nil {
		fmt.Printf("Scan error: %v\n", err)
		return nil
	}

	if len(devices) == 0 {
		printNotFoundTips()
	} else {
		fmt.Printf("Found %d device(s):\n", len(devices))
		for _, d := range devices {
			fmt.Printf("  - %s (Address: %s, RSSI: %d)\n", d.Name, d.Address, d.RSSI)
		}
	}

	return nil
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/storage"
)

var (
	listLimit int
	showLast  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored acquisition runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run_id]",
	Short: "Show the measurements of a run",
	Long: `Show the details and measurements of a stored run.

Examples:
  sylvac runs show --last
  sylvac runs show <run_id>`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run_id>",
	Short: "Delete a run and its measurements",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	runsCmd.Flags().IntVar(&listLimit, "limit", 10, "Number of runs to show")
	runsShowCmd.Flags().BoolVar(&showLast, "last", false, "Show the last run")
}

func runRunsList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runRepo := storage.NewRunRepository(db)
	runs, err := runRepo.List(listLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		fmt.Println("Start a new run with: sylvac measure -n 10 -i 1")
		return nil
	}

	fmt.Printf("Recent runs (showing %d):\n", len(runs))
	fmt.Println()
	fmt.Printf("%-36s  %-19s  %-9s  %-8s  %-16s  %s\n", "ID", "Started", "Samples", "Interval", "Device", "Notes")
	fmt.Println("------------------------------------  -------------------  ---------  --------  ----------------  -----")

	for _, r := range runs {
		count, _ := runRepo.MeasurementCount(r.RunID)

		device := "-"
		if r.DeviceName != nil {
			device = *r.DeviceName
		}

		notes := ""
		if r.Notes != nil {
			notes = *r.Notes
			if len(notes) > 30 {
				notes = notes[:27] + "..."
			}
		}

		status := ""
		if r.EndedAt == nil {
			status = " (active)"
		}

		fmt.Printf("%-36s  %-19s  %-9s  %-8s  %-16s  %s%s\n",
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d/%d", count, r.Requested),
			formatInterval(r.Interval()),
			device,
			notes,
			status,
		)
	}

	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	}

	run, err := resolveRun(db, runID, showLast)
	if err != nil {
		return err
	}

	records, err := storage.NewMeasurementRepository(db).GetRecordsByRun(run.RunID)
	if err != nil {
		return fmt.Errorf("failed to get measurements: %w", err)
	}

	fmt.Println("Run Details")
	fmt.Println("===========")
	fmt.Println()

	fmt.Printf("ID:       %s\n", run.RunID)
	fmt.Printf("Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.EndedAt != nil {
		fmt.Printf("Ended:    %s\n", run.EndedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Duration: %s\n", formatDuration(run.EndedAt.Sub(run.StartedAt)))
	}
	if run.DeviceName != nil {
		addr := ""
		if run.DeviceAddress != nil {
			addr = *run.DeviceAddress
		}
		fmt.Printf("Device:   %s - %s\n", *run.DeviceName, addr)
	}
	fmt.Printf("Samples:  %d of %d every %s\n", len(records), run.Requested, formatInterval(run.Interval()))
	if run.Notes != nil && *run.Notes != "" {
		fmt.Printf("Notes:    %s\n", *run.Notes)
	}
	fmt.Println()

	if len(records) == 0 {
		return nil
	}

	ms := make([]sylvac.Measurement, len(records))
	for i, rec := range records {
		ms[i] = rec.Measurement
	}
	printRunSummary(ms, run.Requested, run.Interval())

	fmt.Println("Measurements")
	fmt.Println("------------")
	for _, rec := range records {
		fmt.Printf("  %4d  %s  %10.3f mm  (%d µm)\n", rec.Number, rec.Timestamp, rec.Value, rec.Micrometres)
	}

	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.NewRunRepository(db).Delete(args[0]); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	fmt.Printf("Deleted run %s\n", args[0])
	return nil
}

// formatInterval renders an interval the way it is entered on the command line.
func formatInterval(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return d.String()
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/export"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/storage"
)

var (
	exportRunID  string
	exportFormat string
	exportOutput string
	exportFrom   string
	exportLast   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded measurements",
	Long: `Export the measurements of a stored run, or convert an existing export.

Examples:
  sylvac export --last
  sylvac export --id <run_id> -o pieza_a.csv
  sylvac export --id <run_id> --format json -o pieza_a.json
  sylvac export --from mediciones.csv -o mediciones.json`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportRunID, "id", "", "Run ID to export")
	exportCmd.Flags().BoolVar(&exportLast, "last", false, "Export the last run")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Read measurements from an existing CSV export")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Export format (csv, json); default from the file extension")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", export.DefaultFileName, "Output file")
	exportCmd.MarkFlagsMutuallyExclusive("id", "last", "from")
}

func runExport(cmd *cobra.Command, args []string) error {
	var (
		ms  []sylvac.Measurement
		err error
	)

	switch {
	case exportFrom != "":
		ms, err = readExport(exportFrom)
	case exportRunID != "" || exportLast:
		ms, err = loadRunMeasurements(exportRunID, exportLast)
	default:
		return fmt.Errorf("specify --id, --last or --from")
	}
	if err != nil {
		return err
	}

	format := exportFormat
	if format == "" {
		format = export.FormatFromPath(exportOutput)
	}

	if err := export.WriteFile(exportOutput, format, ms); err != nil {
		return err
	}

	fmt.Printf("Mediciones guardadas en '%s'.\n", exportOutput)
	return nil
}

func readExport(path string) ([]sylvac.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ms, err := export.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ms, nil
}

func loadRunMeasurements(runID string, last bool) ([]sylvac.Measurement, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	run, err := resolveRun(db, runID, last)
	if err != nil {
		return nil, err
	}

	ms, err := storage.NewMeasurementRepository(db).GetByRun(run.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to get measurements: %w", err)
	}
	if len(ms) == 0 {
		return nil, fmt.Errorf("no measurements found for run %s", run.RunID)
	}
	return ms, nil
}

// resolveRun returns the run named by runID, or the most recent one when
// last is set.
func resolveRun(db *storage.DB, runID string, last bool) (*storage.Run, error) {
	runRepo := storage.NewRunRepository(db)

	if last {
		run, err := runRepo.GetLast()
		if err != nil {
			return nil, fmt.Errorf("failed to get last run: %w", err)
		}
		if run == nil {
			return nil, fmt.Errorf("no runs found")
		}
		return run, nil
	}

	if runID == "" {
		return nil, fmt.Errorf("please provide a run ID or use --last")
	}

	run, err := runRepo.Get(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return run, nil
}

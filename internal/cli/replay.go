package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/export"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/rawlog"
)

var replayCmd = &cobra.Command{
	Use:   "replay [log-file]",
	Short: "Rebuild measurements from a raw notification log",
	Long: `Decode a raw log written by 'sylvac measure --raw-log' and export the values
without the caliper.

By default every logged value becomes one sample. With --interval the log is
played back with its original timing (scaled by --speed) and sampled exactly
as a live run would be.

If no log file is specified, lists available log files.

Usage:
  sylvac replay                              # List available logs
  sylvac replay <log-file> -o valores.csv    # One sample per logged value
  sylvac replay <log-file> -n 10 -i 1s       # Re-run a 10 x 1s acquisition`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

var (
	replayCount    int
	replayInterval string
	replaySpeed    float64
	replayOutput   string
	replayFormat   string
	replayLogDir   string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().IntVarP(&replayCount, "count", "n", 0, "Number of samples (default: all logged values)")
	replayCmd.Flags().StringVarP(&replayInterval, "interval", "i", "", "Sample the playback at this interval instead of taking every value")
	replayCmd.Flags().Float64VarP(&replaySpeed, "speed", "s", 1.0, "Playback speed multiplier used with --interval")
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", export.DefaultFileName, "Output file")
	replayCmd.Flags().StringVar(&replayFormat, "format", "", "Output format (csv, json); default from the file extension")
	replayCmd.Flags().StringVar(&replayLogDir, "log-dir", "", "Raw log directory (default: ~/.sylvac_recorder/logs)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	dir := logDir(replayLogDir)

	if len(args) == 0 {
		return listLogs(dir)
	}

	logPath := args[0]
	if _, err := os.Stat(logPath); err != nil && !filepath.IsAbs(logPath) {
		logPath = filepath.Join(dir, logPath)
	}

	rlog, err := rawlog.Load(logPath)
	if err != nil {
		return fmt.Errorf("failed to load log: %w", err)
	}

	readings := rlog.Readings()

	fmt.Printf("Loaded log: %s\n", logPath)
	fmt.Printf("Created: %s\n", rlog.CreatedAt.Format(time.RFC3339))
	if rlog.DeviceName != "" {
		fmt.Printf("Device: %s (%s)\n", rlog.DeviceName, rlog.DeviceAddress)
	}
	fmt.Printf("Events: %d, values: %d\n", len(rlog.Events), len(readings))
	fmt.Println()

	if len(readings) == 0 {
		return fmt.Errorf("no measurement values in %s", logPath)
	}

	var ms []sylvac.Measurement
	if cmd.Flags().Changed("interval") {
		ms, err = replayPaced(cmd, readings)
		if err != nil {
			return err
		}
	} else {
		ms = measurementsFromReadings(readings, replayCount)
	}

	format := replayFormat
	if format == "" {
		format = export.FormatFromPath(replayOutput)
	}
	if err := export.WriteFile(replayOutput, format, ms); err != nil {
		return err
	}

	fmt.Printf("Mediciones guardadas en '%s' (%d).\n", replayOutput, len(ms))
	return nil
}

// measurementsFromReadings turns the first n readings (all when n <= 0)
// into samples stamped with the time they were received.
func measurementsFromReadings(readings []sylvac.Reading, n int) []sylvac.Measurement {
	if n <= 0 || n > len(readings) {
		n = len(readings)
	}

	ms := make([]sylvac.Measurement, n)
	for i := 0; i < n; i++ {
		ms[i] = sylvac.NewMeasurement(i+1, readings[i], readings[i].ReceivedAt)
	}
	return ms
}

func replayPaced(cmd *cobra.Command, readings []sylvac.Reading) ([]sylvac.Measurement, error) {
	interval, err := parseInterval(replayInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", replayInterval, err)
	}
	count := replayCount
	if count <= 0 {
		count = cfg.Acquisition.Count
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := sylvac.NewRecorder()
	rec.OnMeasurement(func(m sylvac.Measurement) {
		fmt.Println(m.String())
	})

	src := rawlog.NewReplaySource(ctx, readings, replaySpeed)
	err = rec.Acquire(ctx, src, count, interval)
	switch {
	case err == nil:
	case errors.Is(err, sylvac.ErrSourceClosed):
		fmt.Printf("Log exhausted after %d of %d samples\n", rec.Len(), count)
	case errors.Is(err, context.Canceled):
		fmt.Printf("Replay interrupted after %d of %d samples\n", rec.Len(), count)
	default:
		return nil, err
	}

	return rec.Measurements(), nil
}

func listLogs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No log files found. Record one with: sylvac measure --raw-log")
			return nil
		}
		return err
	}

	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			logs = append(logs, e.Name())
		}
	}

	if len(logs) == 0 {
		fmt.Println("No log files found. Record one with: sylvac measure --raw-log")
		return nil
	}

	// Names embed the start time, so this is chronological.
	sort.Strings(logs)

	fmt.Println("Available log files:")
	fmt.Println()
	for _, name := range logs {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println()
	fmt.Println("Usage: sylvac replay <filename>")

	return nil
}

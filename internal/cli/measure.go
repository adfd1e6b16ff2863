package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/export"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/metrics"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/rawlog"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/recorder"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/storage"
)

var (
	measureCount    int
	measureInterval string
	measureOutput   string
	measureFormat   string
	measureTUI      bool
	measureRawLog   bool
	measureLogDir   string
	measureMetrics  string
	measureNotes    string
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Collect measurements from the caliper and export them",
	Long: `Scan for the caliper, connect, take COUNT samples INTERVAL apart and export
them to a file.

Each sample is the newest value the caliper has sent once the interval has
elapsed; if nothing has arrived yet the recorder waits for the next value.
Press Ctrl+C to stop early: the samples taken so far are still exported.

Examples:
  sylvac measure -n 10 -i 1s
  sylvac measure -n 5 -i 0.5 -o out/pieza.csv
  sylvac measure -n 20 -i 2s --format json -o pieza.json --tui`,
	RunE: runMeasure,
}

func init() {
	rootCmd.AddCommand(measureCmd)

	f := measureCmd.Flags()
	f.IntVarP(&measureCount, "count", "n", 0, "Number of samples (default from config)")
	f.StringVarP(&measureInterval, "interval", "i", "", "Interval between samples: seconds (1.5) or a duration (500ms)")
	f.StringVarP(&measureOutput, "output", "o", "", "Output file (default from config: mediciones.csv)")
	f.StringVar(&measureFormat, "format", "", "Output format (csv, json)")
	f.BoolVar(&measureTUI, "tui", false, "Show a live terminal view")
	f.BoolVar(&measureRawLog, "raw-log", false, "Write every raw notification to a JSONL log for later replay")
	f.StringVar(&measureLogDir, "log-dir", "", "Raw log directory (default: ~/.sylvac_recorder/logs)")
	f.StringVar(&measureMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9289")
	f.StringVar(&measureNotes, "notes", "", "Notes stored with the run")
}

// acquisitionPlan is the resolved set of acquisition parameters.
type acquisitionPlan struct {
	count    int
	interval time.Duration
	output   string
	format   string
}

// parseInterval accepts plain seconds ("2", "0.5") or a Go duration ("500ms").
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// resolvePlan merges the command flags over the configured defaults.
func resolvePlan(cmd *cobra.Command) (acquisitionPlan, error) {
	plan := acquisitionPlan{
		count:    cfg.Acquisition.Count,
		interval: cfg.Acquisition.Interval,
		output:   cfg.Acquisition.Output,
		format:   cfg.Acquisition.Format,
	}

	flags := cmd.Flags()
	if flags.Changed("count") {
		plan.count = measureCount
	}
	if flags.Changed("interval") {
		d, err := parseInterval(measureInterval)
		if err != nil {
			return plan, fmt.Errorf("invalid interval %q: %w", measureInterval, err)
		}
		plan.interval = d
	}
	if flags.Changed("output") {
		plan.output = measureOutput
		if !flags.Changed("format") {
			plan.format = export.FormatFromPath(measureOutput)
		}
	}
	if flags.Changed("format") {
		plan.format = strings.ToLower(measureFormat)
	}

	if plan.count <= 0 {
		return plan, fmt.Errorf("%w: got %d", sylvac.ErrInvalidCount, plan.count)
	}
	if plan.interval < 0 {
		return plan, fmt.Errorf("%w: got %s", sylvac.ErrInvalidInterval, plan.interval)
	}
	switch plan.format {
	case export.FormatCSV, export.FormatJSON:
	default:
		return plan, fmt.Errorf("%w: %q", export.ErrUnknownFormat, plan.format)
	}

	return plan, nil
}

func runMeasure(cmd *cobra.Command, args []string) error {
	plan, err := resolvePlan(cmd)
	if err != nil {
		fmt.Println("Por favor, ingresa valores válidos.")
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	reg := prometheus.NewRegistry()
	if err := met.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if addr := firstNonEmpty(measureMetrics, cfg.Metrics.Addr); addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, reg, log); err != nil {
				log.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	var db *storage.DB
	var stateFile *recorder.StateFile
	if cfg.Storage.Persist {
		db, err = openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stateFile, err = openStateFile(db)
		if err != nil {
			return err
		}
	}

	lastDevice := ""
	if stateFile != nil {
		lastDevice = stateFile.LastDeviceAddress()
	}

	caliper, err := connectCaliper(ctx, lastDevice)
	if err != nil {
		if errors.Is(err, sylvac.ErrDeviceNotFound) {
			printNotFoundTips()
		}
		return err
	}
	defer caliper.Close()

	fmt.Printf("Conectado a %s - %s\n", caliper.DeviceName(), caliper.DeviceAddress())

	var session *recorder.Session
	var recOpts []sylvac.RecorderOption
	runID := ""
	if db != nil {
		session = recorder.NewSession(db, stateFile, log)
		closeStaleRun(session, stateFile)

		runID, err = session.Start(storage.RunParams{
			Requested:     plan.count,
			Interval:      plan.interval,
			DeviceName:    caliper.DeviceName(),
			DeviceAddress: caliper.DeviceAddress(),
			Notes:         measureNotes,
			AppVersion:    version,
		})
		if err != nil {
			return err
		}
		recOpts = append(recOpts, sylvac.WithSink(session.Sink()))
	}

	raw := rawlog.NewLogger()
	if measureRawLog {
		raw.SetDeviceInfo(caliper.DeviceName(), caliper.DeviceAddress(), runID)
		if err := raw.Start(logDir(measureLogDir)); err != nil {
			log.Warn("could not start raw log", "error", err)
		}
	}
	defer raw.Close()

	caliper.OnNotification(raw.Log)
	caliper.OnDecodeError(met.ObserveDecodeError)

	rec := sylvac.NewRecorder(recOpts...)

	start := time.Now()
	if measureTUI {
		err = runMeasureTUI(ctx, caliper, rec, plan, met, raw)
	} else {
		err = acquirePlain(ctx, caliper, rec, plan, met, raw)
	}
	met.ObserveAcquisition(time.Since(start))

	if path := raw.Path(); path != "" {
		fmt.Printf("Raw log saved to: %s\n", path)
	}

	return finishRun(err, rec, session, plan)
}

// connectCaliper scans and connects to the preferred caliper.
func connectCaliper(ctx context.Context, lastDevice string) (*sylvac.Caliper, error) {
	devices, err := scanForCalipers(ctx)
	if err != nil {
		return nil, err
	}

	device, ok := selectDevice(devices, cfg.Device.Address, lastDevice)
	if !ok {
		return nil, sylvac.ErrDeviceNotFound
	}

	return sylvac.Connect(ctx, device, caliperOptions(cfg)...)
}

// closeStaleRun ends a run left active by a previous process.
func closeStaleRun(session *recorder.Session, stateFile *recorder.StateFile) {
	if stateFile == nil || !stateFile.HasActiveRun() {
		return
	}

	stale := stateFile.ActiveRunID()
	if err := session.Resume(stale); err != nil {
		log.Warn("dropping stale active run", "run_id", stale, "error", err)
		if err := stateFile.ClearActiveRun(); err != nil {
			log.Warn("failed to update state file", "error", err)
		}
		return
	}
	if err := session.End(); err != nil {
		log.Warn("failed to close interrupted run", "run_id", stale, "error", err)
		return
	}
	fmt.Printf("Closed interrupted run %s (%d samples)\n", stale, session.Count())
}

func acquirePlain(ctx context.Context, caliper *sylvac.Caliper, rec *sylvac.Recorder, plan acquisitionPlan, met *metrics.Metrics, raw *rawlog.Logger) error {
	caliper.OnReading(func(r sylvac.Reading) {
		met.ObserveReading(r)
		log.Debug("reading", "value_mm", r.Value)
	})
	caliper.OnReconnect(func() {
		met.ObserveReconnect()
		raw.LogConnection("reconnected")
		fmt.Println("Reconectado")
	})
	caliper.OnDisconnect(func(err error) {
		raw.LogConnection(err.Error())
		fmt.Printf("Conexión perdida: %v\n", err)
	})

	rec.OnMeasurement(func(m sylvac.Measurement) {
		met.ObserveMeasurement(m)
		fmt.Println(m.String())
	})

	fmt.Printf("Tomando %d mediciones cada %s (Ctrl+C para detener)...\n", plan.count, plan.interval)
	return rec.Acquire(ctx, caliper, plan.count, plan.interval)
}

// finishRun ends the stored run and exports whatever was collected.
// Cancellation is not an error: the partial result is exported.
func finishRun(acqErr error, rec *sylvac.Recorder, session *recorder.Session, plan acquisitionPlan) error {
	ms := rec.Measurements()

	switch {
	case acqErr == nil:
	case errors.Is(acqErr, context.Canceled):
		fmt.Printf("Adquisición interrumpida: %d de %d mediciones\n", len(ms), plan.count)
		acqErr = nil
	case errors.Is(acqErr, sylvac.ErrSourceClosed):
		fmt.Printf("Conexión perdida: %d de %d mediciones\n", len(ms), plan.count)
	default:
		log.Error("acquisition failed", "error", acqErr, "samples", len(ms))
	}

	if session != nil && session.State() == recorder.StateRecording {
		if err := session.End(); err != nil {
			log.Warn("failed to end run", "run_id", session.RunID(), "error", err)
		}
	}

	if err := export.WriteFile(plan.output, plan.format, ms); err != nil {
		return err
	}
	fmt.Println()
	printRunSummary(ms, plan.count, plan.interval)
	fmt.Printf("Mediciones guardadas en '%s'.\n", plan.output)
	if session != nil {
		fmt.Printf("Run ID: %s\n", session.RunID())
	}

	return acqErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

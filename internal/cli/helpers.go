package cli

import (
	"fmt"
	"path/filepath"
	"time"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/analysis"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/config"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/recorder"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/storage"
)

// openDB opens the configured database and applies migrations.
func openDB() (*storage.DB, error) {
	var db *storage.DB
	var err error

	if cfg.Storage.DBPath == "" {
		db, err = storage.OpenDefault()
	} else {
		db, err = storage.Open(cfg.Storage.DBPath)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// openStateFile loads the state file and records the database in use.
func openStateFile(db *storage.DB) (*recorder.StateFile, error) {
	sf, err := recorder.NewDefaultStateFile()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if db != nil && sf.DBPath() != db.Path() {
		if err := sf.SetDBPath(db.Path()); err != nil {
			log.Warn("failed to update state file", "error", err)
		}
	}
	return sf, nil
}

// caliperOptions maps the configuration onto library options.
func caliperOptions(c *config.Config) []sylvac.Option {
	return []sylvac.Option{
		sylvac.WithNamePattern(c.Device.NamePattern),
		sylvac.WithScanTimeout(c.Device.ScanTimeout),
		sylvac.WithAutoReconnect(c.Reconnect.Enabled),
		sylvac.WithReconnectInterval(c.Reconnect.Interval),
		sylvac.WithMaxReconnectFailures(c.Reconnect.MaxFailures),
		sylvac.WithLogger(log),
	}
}

// selectDevice picks the device to connect to: the pinned address if
// present, then the last used device, then the strongest signal.
func selectDevice(devices []sylvac.Device, pinned, last string) (sylvac.Device, bool) {
	if len(devices) == 0 {
		return sylvac.Device{}, false
	}

	for _, want := range []string{pinned, last} {
		if want == "" {
			continue
		}
		for _, d := range devices {
			if d.Address == want {
				return d, true
			}
		}
		if want == pinned {
			return sylvac.Device{}, false
		}
	}

	best := devices[0]
	for _, d := range devices[1:] {
		if d.RSSI > best.RSSI {
			best = d
		}
	}
	return best, true
}

// logDir returns dir, or the default raw log directory when dir is empty.
func logDir(dir string) string {
	if dir != "" {
		return dir
	}
	base, err := storage.DefaultDir()
	if err != nil {
		return "logs"
	}
	return filepath.Join(base, "logs")
}

func printNotFoundTips() {
	fmt.Printf("Dispositivo %s no encontrado.\n", cfg.Device.NamePattern)
	fmt.Println()
	fmt.Println("Tips:")
	fmt.Println("  - Ensure the caliper is powered on and Bluetooth is enabled on it")
	fmt.Println("  - Move the slider to wake it up")
	fmt.Println("  - Make sure it is not connected to another host")
	fmt.Println("  - Check that Bluetooth is enabled on this computer")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := d.Seconds() - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// lateTolerance is how far past the interval a sample may land before it is
// reported as late. Timestamps only have one-second resolution.
const lateTolerance = time.Second

// printRunSummary prints value statistics for a set of samples.
func printRunSummary(ms []sylvac.Measurement, requested int, interval time.Duration) {
	if len(ms) == 0 {
		return
	}
	s := analysis.Summarize(ms, requested, interval, lateTolerance)

	fmt.Println("Statistics")
	fmt.Println("----------")
	fmt.Printf("Samples: %d of %d\n", s.Count, s.Requested)
	fmt.Printf("Min:     %.3f mm\n", s.MinMM)
	fmt.Printf("Max:     %.3f mm\n", s.MaxMM)
	fmt.Printf("Range:   %.3f mm\n", s.RangeMM)
	fmt.Printf("Mean:    %.3f mm\n", s.MeanMM)
	if s.Count > 1 {
		fmt.Printf("StdDev:  %.3f mm\n", s.StdDevMM)
	}
	if s.LateSampleCount > 0 {
		fmt.Printf("Late:    %d sample(s), longest gap %s\n",
			s.LateSampleCount, formatDuration(time.Duration(s.LongestGapMs)*time.Millisecond))
	}
	fmt.Println()
}

// Package cli implements the command-line interface for the SY289 recorder.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/config"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/logger"
)

const version = "0.1.0"

var (
	// Global flags
	configPath string
	dbPath     string
	verbose    bool
	logLevel   string

	// Set up by PersistentPreRunE
	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "sylvac",
	Short: "SY289 Caliper Recorder",
	Long: `SY289 Caliper Recorder - A CLI tool for collecting measurements from a
Sylvac SY289 Bluetooth caliper.

Connect to the caliper over Bluetooth Low Energy, take a fixed number of
samples at a fixed interval and export them to a semicolon-delimited file
(Número de medición;Timestamp;Valor (mm)).`,
	Version:            version,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.sylvac_recorder/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database file path (default: ~/.sylvac_recorder/sylvac.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// setup loads the configuration and builds the logger. Flags take
// precedence over the config file and environment.
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}

	if dbPath != "" {
		c.Storage.DBPath = dbPath
	}
	if logLevel != "" {
		c.Logger.Level = logLevel
	}
	if verbose {
		c.Logger.Level = "debug"
	}

	l, closer, err := logger.New(c.Logger)
	if err != nil {
		return err
	}

	cfg = c
	log = l.With("cmd", cmd.Name())
	closeLog = closer

	log.Debug("config loaded", "path", path)
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if closeLog != nil {
		return closeLog()
	}
	return nil
}

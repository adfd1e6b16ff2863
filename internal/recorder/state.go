// Package recorder manages acquisition runs and the persistent app state.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/storage"
)

// AppState represents the persistent application state.
type AppState struct {
	DBPath            string `json:"db_path"`
	ActiveRunID       string `json:"active_run_id,omitempty"`
	LastDeviceAddress string `json:"last_device_address,omitempty"`
	LastDeviceName    string `json:"last_device_name,omitempty"`
}

// StateFile manages the application state file.
type StateFile struct {
	path  string
	state AppState
}

// DefaultStatePath returns the default state file path.
func DefaultStatePath() (string, error) {
	dir, err := storage.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}

// NewStateFile creates a new state file manager, loading any existing state.
func NewStateFile(path string) (*StateFile, error) {
	sf := &StateFile{path: path}

	if err := sf.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return sf, nil
}

// NewDefaultStateFile creates a state file manager with the default path.
func NewDefaultStateFile() (*StateFile, error) {
	path, err := DefaultStatePath()
	if err != nil {
		return nil, err
	}
	return NewStateFile(path)
}

// Path returns the location of the state file.
func (sf *StateFile) Path() string {
	return sf.path
}

// Load loads the state from disk.
func (sf *StateFile) Load() error {
	data, err := os.ReadFile(sf.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &sf.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	return nil
}

// Save saves the state to disk.
func (sf *StateFile) Save() error {
	data, err := json.MarshalIndent(sf.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(sf.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := os.WriteFile(sf.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// State returns the current state.
func (sf *StateFile) State() AppState {
	return sf.state
}

// SetDBPath sets the database path.
func (sf *StateFile) SetDBPath(path string) error {
	sf.state.DBPath = path
	return sf.Save()
}

// SetActiveRun sets the active run ID.
func (sf *StateFile) SetActiveRun(runID string) error {
	sf.state.ActiveRunID = runID
	return sf.Save()
}

// ClearActiveRun clears the active run ID.
func (sf *StateFile) ClearActiveRun() error {
	sf.state.ActiveRunID = ""
	return sf.Save()
}

// SetLastDevice records the last connected caliper.
func (sf *StateFile) SetLastDevice(address, name string) error {
	sf.state.LastDeviceAddress = address
	sf.state.LastDeviceName = name
	return sf.Save()
}

// HasActiveRun returns true if a run was started and never ended.
func (sf *StateFile) HasActiveRun() bool {
	return sf.state.ActiveRunID != ""
}

// ActiveRunID returns the active run ID.
func (sf *StateFile) ActiveRunID() string {
	return sf.state.ActiveRunID
}

// LastDeviceAddress returns the last connected device address.
func (sf *StateFile) LastDeviceAddress() string {
	return sf.state.LastDeviceAddress
}

// LastDeviceName returns the last connected device name.
func (sf *StateFile) LastDeviceName() string {
	return sf.state.LastDeviceName
}

// DBPath returns the database path.
func (sf *StateFile) DBPath() string {
	return sf.state.DBPath
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run represents one acquisition session in the database.
type Run struct {
	RunID         string
	StartedAt     time.Time
	EndedAt       *time.Time
	Requested     int
	IntervalMs    int64
	DeviceName    *string
	DeviceAddress *string
	Notes         *string
	AppVersion    *string
}

// Interval returns the configured spacing between samples.
func (r Run) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// RunParams describes a run being started.
type RunParams struct {
	Requested     int
	Interval      time.Duration
	DeviceName    string
	DeviceAddress string
	Notes         string
	AppVersion    string
}

// RunRepository provides CRUD operations for runs.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create creates a new run and returns its ID.
func (r *RunRepository) Create(p RunParams) (string, error) {
	id := uuid.New().String()
	startedAt := time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO runs (run_id, started_at, requested, interval_ms, device_name, device_address, notes, app_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, startedAt.Format(timeLayout), p.Requested, p.Interval.Milliseconds(),
		optional(p.DeviceName), optional(p.DeviceAddress), optional(p.Notes), optional(p.AppVersion))

	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	return id, nil
}

// End marks a run as complete.
func (r *RunRepository) End(runID string) error {
	endedAt := time.Now().UTC()

	result, err := r.db.Exec(`
		UPDATE runs SET ended_at = ? WHERE run_id = ?
	`, endedAt.Format(timeLayout), runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

const runColumns = `run_id, started_at, ended_at, requested, interval_ms, device_name, device_address, notes, app_version`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAtStr string
	var endedAtStr sql.NullString

	err := row.Scan(
		&run.RunID, &startedAtStr, &endedAtStr,
		&run.Requested, &run.IntervalMs,
		&run.DeviceName, &run.DeviceAddress, &run.Notes, &run.AppVersion,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt, _ = time.Parse(timeLayout, startedAtStr)
	if endedAtStr.Valid {
		t, _ := time.Parse(timeLayout, endedAtStr.String)
		run.EndedAt = &t
	}

	return &run, nil
}

// Get retrieves a run by ID. It returns nil if the run does not exist.
func (r *RunRepository) Get(runID string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetLast retrieves the most recent run.
func (r *RunRepository) GetLast() (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	return run, nil
}

// List retrieves recent runs, newest first.
func (r *RunRepository) List(limit int) ([]Run, error) {
	rows, err := r.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// Delete deletes a run and its measurements.
func (r *RunRepository) Delete(runID string) error {
	_, err := r.db.Exec("DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// MeasurementCount returns the number of samples stored for a run.
func (r *RunRepository) MeasurementCount(runID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM measurements WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get measurement count: %w", err)
	}
	return count, nil
}

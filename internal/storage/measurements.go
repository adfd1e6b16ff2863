package storage

import (
	"database/sql"
	"fmt"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

// MeasurementRecord is a stored sample together with its raw device value.
type MeasurementRecord struct {
	RunID       string
	Micrometres int32
	sylvac.Measurement
}

// MeasurementRepository provides CRUD operations for measurements.
type MeasurementRepository struct {
	db *DB
}

// NewMeasurementRepository creates a new measurement repository.
func NewMeasurementRepository(db *DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

const insertMeasurement = `
	INSERT INTO measurements (run_id, number, timestamp, value_mm, micrometres)
	VALUES (?, ?, ?, ?, ?)
`

// Create stores one sample of a run.
func (r *MeasurementRepository) Create(runID string, m sylvac.Measurement, micrometres int32) error {
	_, err := r.db.Exec(insertMeasurement, runID, m.Number, m.Timestamp, m.Value, micrometres)
	if err != nil {
		return fmt.Errorf("failed to create measurement: %w", err)
	}
	return nil
}

// CreateBatch stores several samples in a single transaction.
func (r *MeasurementRepository) CreateBatch(runID string, records []MeasurementRecord) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		for _, rec := range records {
			_, err := tx.Exec(insertMeasurement, runID, rec.Number, rec.Timestamp, rec.Value, rec.Micrometres)
			if err != nil {
				return fmt.Errorf("failed to create measurement %d: %w", rec.Number, err)
			}
		}
		return nil
	})
}

// GetByRun retrieves the samples of a run in acquisition order.
func (r *MeasurementRepository) GetByRun(runID string) ([]sylvac.Measurement, error) {
	records, err := r.GetRecordsByRun(runID)
	if err != nil {
		return nil, err
	}

	ms := make([]sylvac.Measurement, len(records))
	for i, rec := range records {
		ms[i] = rec.Measurement
	}
	return ms, nil
}

// GetRecordsByRun retrieves the samples of a run including raw values.
func (r *MeasurementRepository) GetRecordsByRun(runID string) ([]MeasurementRecord, error) {
	rows, err := r.db.Query(`
		SELECT run_id, number, timestamp, value_mm, micrometres
		FROM measurements
		WHERE run_id = ?
		ORDER BY number
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get measurements: %w", err)
	}
	defer rows.Close()

	var records []MeasurementRecord
	for rows.Next() {
		var rec MeasurementRecord
		err := rows.Scan(&rec.RunID, &rec.Number, &rec.Timestamp, &rec.Value, &rec.Micrometres)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Count returns the number of samples stored for a run.
func (r *MeasurementRepository) Count(runID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM measurements WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return count, nil
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp(t *testing.T) {
	db := openTestDB(t)

	v, err := db.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Applying again is a no-op.
	require.NoError(t, db.MigrateUp())
	v, err = db.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCurrentVersion_Fresh(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	v, err := db.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, "fresh.db", filepath.Base(db.Path()))
}

func TestRunRepository(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunRepository(db)

	id, err := runs.Create(RunParams{
		Requested:     5,
		Interval:      1500 * time.Millisecond,
		DeviceName:    "SY289 0042",
		DeviceAddress: "AA:BB:CC:DD:EE:FF",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := runs.Get(id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 5, run.Requested)
	assert.Equal(t, 1500*time.Millisecond, run.Interval())
	require.NotNil(t, run.DeviceName)
	assert.Equal(t, "SY289 0042", *run.DeviceName)
	assert.Nil(t, run.Notes)
	assert.Nil(t, run.EndedAt)
	assert.WithinDuration(t, time.Now(), run.StartedAt, time.Minute)

	require.NoError(t, runs.End(id))
	run, err = runs.Get(id)
	require.NoError(t, err)
	require.NotNil(t, run.EndedAt)

	assert.Error(t, runs.End("missing"))

	missing, err := runs.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRunRepository_ListAndLast(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunRepository(db)

	last, err := runs.GetLast()
	require.NoError(t, err)
	assert.Nil(t, last)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := runs.Create(RunParams{Requested: i + 1, Interval: time.Second})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	last, err = runs.GetLast()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, ids[2], last.RunID)

	list, err := runs.List(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].RunID)
	assert.Equal(t, ids[1], list[1].RunID)
}

func TestMeasurementRepository(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunRepository(db)
	meas := NewMeasurementRepository(db)

	id, err := runs.Create(RunParams{Requested: 3, Interval: time.Second})
	require.NoError(t, err)

	require.NoError(t, meas.Create(id, sylvac.Measurement{Number: 1, Timestamp: "2024-10-03 14:05:10", Value: 12.345}, 12345))
	require.NoError(t, meas.CreateBatch(id, []MeasurementRecord{
		{Micrometres: -500, Measurement: sylvac.Measurement{Number: 3, Timestamp: "2024-10-03 14:05:12", Value: -0.5}},
		{Micrometres: 0, Measurement: sylvac.Measurement{Number: 2, Timestamp: "2024-10-03 14:05:11", Value: 0}},
	}))

	ms, err := meas.GetByRun(id)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	for i, m := range ms {
		assert.Equal(t, i+1, m.Number)
	}
	assert.Equal(t, 12.345, ms[0].Value)
	assert.Equal(t, -0.5, ms[2].Value)

	records, err := meas.GetRecordsByRun(id)
	require.NoError(t, err)
	assert.Equal(t, int32(-500), records[2].Micrometres)

	n, err := meas.Count(id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = runs.MeasurementCount(id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Duplicate numbers are rejected.
	assert.Error(t, meas.Create(id, sylvac.Measurement{Number: 1}, 0))
}

func TestCreateBatch_RollsBack(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunRepository(db)
	meas := NewMeasurementRepository(db)

	id, err := runs.Create(RunParams{Requested: 2})
	require.NoError(t, err)

	err = meas.CreateBatch(id, []MeasurementRecord{
		{Measurement: sylvac.Measurement{Number: 1}},
		{Measurement: sylvac.Measurement{Number: 1}},
	})
	assert.Error(t, err)

	n, err := meas.Count(id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunRepository(db)
	meas := NewMeasurementRepository(db)

	id, err := runs.Create(RunParams{Requested: 1})
	require.NoError(t, err)
	require.NoError(t, meas.Create(id, sylvac.Measurement{Number: 1, Value: 1}, 1000))

	require.NoError(t, runs.Delete(id))

	n, err := meas.Count(id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

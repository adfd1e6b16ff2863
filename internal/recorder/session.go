package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/storage"
)

var (
	ErrRunInProgress = errors.New("recorder: run already in progress")
	ErrNoActiveRun   = errors.New("recorder: no run in progress")
)

// SessionState represents the current state of a recording session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRecording
	StateEnded
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Session persists the samples of one acquisition run.
//
// Plug it into a sylvac.Recorder with sylvac.WithSink(session.Sink()):
// every sample is written to the database as it is taken, so an interrupted
// run still has its partial results stored.
type Session struct {
	db        *storage.DB
	stateFile *StateFile
	log       *slog.Logger

	mu        sync.RWMutex
	state     SessionState
	runID     string
	startTime time.Time
	count     int

	runRepo         *storage.RunRepository
	measurementRepo *storage.MeasurementRepository
}

// NewSession creates a new session manager. stateFile may be nil.
func NewSession(db *storage.DB, stateFile *StateFile, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		db:              db,
		stateFile:       stateFile,
		log:             logger.With("component", "session"),
		state:           StateIdle,
		runRepo:         storage.NewRunRepository(db),
		measurementRepo: storage.NewMeasurementRepository(db),
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RunID returns the current (or last) run ID.
func (s *Session) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// Count returns the number of samples stored in the current run.
func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// ElapsedMs returns the elapsed time since the run started in milliseconds.
func (s *Session) ElapsedMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRecording {
		return 0
	}
	return time.Since(s.startTime).Milliseconds()
}

// Start creates a new run and marks it active.
func (s *Session) Start(p storage.RunParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return "", ErrRunInProgress
	}

	runID, err := s.runRepo.Create(p)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	s.runID = runID
	s.startTime = time.Now()
	s.count = 0
	s.state = StateRecording

	if s.stateFile != nil {
		if err := s.stateFile.SetActiveRun(runID); err != nil {
			s.log.Warn("failed to update state file", "error", err)
		}
		if p.DeviceAddress != "" {
			if err := s.stateFile.SetLastDevice(p.DeviceAddress, p.DeviceName); err != nil {
				s.log.Warn("failed to update state file", "error", err)
			}
		}
	}

	s.log.Info("run started", "run_id", runID, "requested", p.Requested, "interval", p.Interval)
	return runID, nil
}

// Record stores one sample of the active run.
func (s *Session) Record(m sylvac.Measurement, r sylvac.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return ErrNoActiveRun
	}

	if err := s.measurementRepo.Create(s.runID, m, r.Micrometres); err != nil {
		return err
	}
	s.count++

	return nil
}

// Sink returns Record as a sylvac.Recorder sink.
func (s *Session) Sink() func(sylvac.Measurement, sylvac.Reading) error {
	return s.Record
}

// End closes the active run and clears it from the state file.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return ErrNoActiveRun
	}

	if err := s.runRepo.End(s.runID); err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}

	s.state = StateEnded

	if s.stateFile != nil {
		if err := s.stateFile.ClearActiveRun(); err != nil {
			s.log.Warn("failed to update state file", "error", err)
		}
	}

	s.log.Info("run ended", "run_id", s.runID, "samples", s.count,
		"duration", time.Since(s.startTime).Round(time.Millisecond))
	return nil
}

// Resume reattaches to a run that was started but never ended, e.g. after a
// crash, so that it can be ended.
func (s *Session) Resume(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.runRepo.Get(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}
	if run.EndedAt != nil {
		return fmt.Errorf("run already ended")
	}

	count, err := s.measurementRepo.Count(runID)
	if err != nil {
		return err
	}

	s.runID = runID
	s.startTime = run.StartedAt
	s.count = count
	s.state = StateRecording

	return nil
}

// Package rawlog records raw caliper notifications to a JSONL file and
// replays them later.
//
// The first line of a log is a header; every following line is one event:
//
//	{"type":"header","version":"1.0","created_at":"...","device_name":"SY289 0042"}
//	{"timestamp":"...","elapsed_ms":12,"event_type":"notification","payload":"OTAAAA==","micrometres":12345,"value_mm":12.345}
package rawlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

// Version is written into the header of every log.
const Version = "1.0"

var ErrNoHeader = errors.New("rawlog: missing header")

// EventType identifies the type of logged event.
type EventType string

const (
	EventNotification EventType = "notification"
	EventDecodeError  EventType = "decode_error"
	EventConnection   EventType = "connection"
)

// Event is a single logged line.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	EventType   EventType `json:"event_type"`
	Payload     []byte    `json:"payload,omitempty"`
	Micrometres *int32    `json:"micrometres,omitempty"`
	ValueMM     *float64  `json:"value_mm,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Header is the first line of a log.
type Header struct {
	Type          string    `json:"type"`
	Version       string    `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	DeviceName    string    `json:"device_name,omitempty"`
	DeviceAddress string    `json:"device_address,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
}

// Log is a parsed notification log.
type Log struct {
	Header
	Events []Event
}

// Logger appends events to a log file. It is safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	header    Header
	startTime time.Time
	file      *os.File
	enc       *json.Encoder
}

// NewLogger creates a logger. Nothing is written until Start is called.
func NewLogger() *Logger {
	return &Logger{}
}

// SetDeviceInfo sets the device and run recorded in the header.
// It must be called before Start.
func (l *Logger) SetDeviceInfo(name, address, runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.header.DeviceName = name
	l.header.DeviceAddress = address
	l.header.RunID = runID
}

// Start creates a timestamped log file in dir and writes the header.
func (l *Logger) Start(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	l.startTime = time.Now()
	filename := fmt.Sprintf("sylvac_%s.jsonl", l.startTime.Format("20060102_150405"))

	file, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	l.file = file
	l.enc = json.NewEncoder(file)

	l.header.Type = "header"
	l.header.Version = Version
	l.header.CreatedAt = l.startTime

	return l.enc.Encode(l.header)
}

// Log records a raw notification payload, decoding it when possible.
// It is a no-op before Start.
func (l *Logger) Log(data []byte) {
	event := Event{
		EventType: EventNotification,
		Payload:   append([]byte(nil), data...),
	}

	r, err := sylvac.DecodeReading(data, time.Now())
	if err != nil {
		event.EventType = EventDecodeError
		event.Description = err.Error()
	} else {
		event.Micrometres = &r.Micrometres
		event.ValueMM = &r.Value
	}

	l.write(event)
}

// LogConnection records a link event such as a disconnect or reconnect.
func (l *Logger) LogConnection(description string) {
	l.write(Event{EventType: EventConnection, Description: description})
}

func (l *Logger) write(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enc == nil {
		return
	}

	event.Timestamp = time.Now()
	event.ElapsedMs = event.Timestamp.Sub(l.startTime).Milliseconds()
	l.enc.Encode(event)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.enc = nil
	return err
}

// Path returns the current log file path.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Name()
	}
	return ""
}

// Load reads a log from a JSONL file.
func Load(path string) (*Log, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a log from r.
func Parse(r io.Reader) (*Log, error) {
	log := &Log{}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			if err := json.Unmarshal(line, &log.Header); err != nil {
				return nil, fmt.Errorf("failed to parse header: %w", err)
			}
			if log.Header.Type != "header" {
				return nil, ErrNoHeader
			}
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse event at line %d: %w", lineNum, err)
		}
		log.Events = append(log.Events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	if lineNum == 0 {
		return nil, ErrNoHeader
	}

	return log, nil
}

// Readings decodes the notification events of the log in order.
// Payloads that fail to decode are skipped.
func (l *Log) Readings() []sylvac.Reading {
	var readings []sylvac.Reading
	for _, e := range l.Events {
		if e.EventType != EventNotification {
			continue
		}
		r, err := sylvac.DecodeReading(e.Payload, e.Timestamp)
		if err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// Replay parses a log from r and returns its decoded readings.
func Replay(r io.Reader) ([]sylvac.Reading, error) {
	log, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return log.Readings(), nil
}

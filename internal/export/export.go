// Package export writes recorded measurements to files.
//
// The CSV layout is fixed: a header row followed by one row per sample,
// fields separated by ';':
//
//	Número de medición;Timestamp;Valor (mm)
//	1;2024-10-03 14:05:10;12.345
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
)

const (
	// Delimiter separates CSV fields.
	Delimiter = ';'

	// DefaultFileName is used when no output path is given.
	DefaultFileName = "mediciones.csv"

	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Header is the first row of every CSV export.
var Header = []string{"Número de medición", "Timestamp", "Valor (mm)"}

var (
	ErrBadHeader     = errors.New("export: unexpected header")
	ErrUnknownFormat = errors.New("export: unknown format")
)

// WriteCSV writes the header and one row per measurement.
func WriteCSV(w io.Writer, ms []sylvac.Measurement) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	for _, m := range ms {
		row := []string{
			strconv.Itoa(m.Number),
			m.Timestamp,
			fmt.Sprintf("%.3f", m.Value),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write row %d: %w", m.Number, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file written by WriteCSV.
func ReadCSV(r io.Reader) ([]sylvac.Measurement, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrBadHeader
	}
	if err != nil {
		return nil, fmt.Errorf("export: read header: %w", err)
	}
	for i := range Header {
		if strings.TrimPrefix(header[i], "\ufeff") != Header[i] {
			return nil, fmt.Errorf("%w: %q", ErrBadHeader, strings.Join(header, string(Delimiter)))
		}
	}

	var ms []sylvac.Measurement
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("export: read row: %w", err)
		}

		n, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("export: bad number %q: %w", row[0], err)
		}
		v, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("export: bad value %q: %w", row[2], err)
		}

		ms = append(ms, sylvac.Measurement{Number: n, Timestamp: row[1], Value: v})
	}

	return ms, nil
}

type jsonMeasurement struct {
	Number    int     `json:"number"`
	Timestamp string  `json:"timestamp"`
	ValueMM   float64 `json:"value_mm"`
}

// WriteJSON writes the measurements as an indented JSON array.
func WriteJSON(w io.Writer, ms []sylvac.Measurement) error {
	out := make([]jsonMeasurement, len(ms))
	for i, m := range ms {
		out[i] = jsonMeasurement{Number: m.Number, Timestamp: m.Timestamp, ValueMM: m.Value}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// FormatFromPath guesses the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

// WriteFile writes the measurements to path in the given format,
// creating parent directories as needed. An existing file is replaced.
func WriteFile(path, format string, ms []sylvac.Measurement) error {
	var write func(io.Writer, []sylvac.Measurement) error
	switch strings.ToLower(format) {
	case FormatCSV, "":
		write = WriteCSV
	case FormatJSON:
		write = WriteJSON
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("export: create directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create file: %w", err)
	}

	if err := write(f, ms); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

package logsink

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// fileMode is applied when the log file is created.
const fileMode = 0o644

// ErrNoPath is returned by New when the log file path is empty.
var ErrNoPath = errors.New("logsink: log file path is empty")

// FormatLine renders one decoded payload as a log line, without the newline.
//
//	raw:      RAW: {payload}
//	extended: {timestamp} - Device {device_id}: {sensor_type}={value} {unit}
//	legacy:   {timestamp} - Device {device_id}: Temp={temperature}°C, Hum={humidity}%
func FormatLine(d telemetry.Decoded) string {
	switch d.Shape() {
	case telemetry.ShapeRaw:
		return "RAW: " + d.Payload
	case telemetry.ShapeExtended:
		return fmt.Sprintf("%s - Device %s: %s=%s %s",
			d.Get("timestamp"),
			d.Get("device_id"),
			d.Get("sensor_type"),
			d.Get("value"),
			d.Get("unit"),
		)
	default:
		return fmt.Sprintf("%s - Device %s: Temp=%s°C, Hum=%s%%",
			d.Get("timestamp"),
			d.Get("device_id"),
			d.Get("temperature"),
			d.Get("humidity"),
		)
	}
}

// Sink appends lines to a text file.
//
// The file is opened, written and closed for every line, so no handle is
// held between messages and each line is on disk once Append returns.
type Sink struct {
	path string
}

// New returns a sink writing to path. The file is created on first Append.
func New(path string) (*Sink, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	return &Sink{path: path}, nil
}

// Path returns the log file path.
func (s *Sink) Path() string {
	return s.path
}

// Append writes line followed by a newline. Lines that are not valid
// UTF-8 are rejected with telemetry.ErrInvalidUTF8 and nothing is written.
func (s *Sink) Append(line string) (err error) {
	if !utf8.ValidString(line) {
		return telemetry.ErrInvalidUTF8
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing log file: %w", cerr)
		}
	}()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing log file: %w", err)
	}
	return nil
}

// AppendDecoded formats d and appends it. It returns the line written.
func (s *Sink) AppendDecoded(d telemetry.Decoded) (string, error) {
	line := FormatLine(d)
	return line, s.Append(line)
}

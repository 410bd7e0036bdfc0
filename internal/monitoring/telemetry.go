// Package monitoring - telemetry.go appends intervention entries to a JSONL file.
//
// DESIGN: One JSON object per line, appended immediately after each
// intervention so the file can be tailed. Implements AuditSink.
package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// JSONLSink writes audit entries to an append-only JSONL file.
type JSONLSink struct {
	path  string
	count int
	mu    sync.Mutex
}

// NewJSONLSink ensures the parent directory and file exist.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl sink: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating jsonl directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("opening jsonl file: %w", err)
	}
	_ = f.Close()
	return &JSONLSink{path: path}, nil
}

// Record appends one entry.
func (s *JSONLSink) Record(entry InterventionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendJSONL(s.path, entry); err != nil {
		return err
	}
	s.count++
	return nil
}

// Path returns the file being written.
func (s *JSONLSink) Path() string { return s.path }

// Close logs a summary line. The file is opened per write, so nothing is held.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count > 0 {
		log.Info().
			Str("path", s.path).
			Int("entries", s.count).
			Msg("audit jsonl: session complete")
	}
	return nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- operator-supplied path
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// Package resultlog persists historical results as one JSON array file.
package resultlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/metrics"
	"github.com/factcheck-pro/backend/pkg/logger"
)

// Log appends records to a JSON array file. Appends are serialized within the
// process and each write replaces the file by rename, so readers never see a
// half-written array.
type Log struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string {
	return l.path
}

// Append adds record to the end of the array.
func (l *Log) Append(record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readLocked()
	if err != nil {
		return err
	}
	records = append(records, encoded)

	if err := l.writeLocked(records); err != nil {
		return err
	}

	metrics.ResultLogAppends.Inc()
	logger.Debug("Result appended to log", zap.String("path", l.path), zap.Int("records", len(records)))
	return nil
}

// ReadAll returns every stored record in append order.
func (l *Log) ReadAll() ([]json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

// readLocked treats a missing, empty or corrupt file as an empty log.
func (l *Log) readLocked() ([]json.RawMessage, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []json.RawMessage{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("Result log is not a JSON array, starting over",
			zap.String("path", l.path),
			zap.Error(err),
		)
		return []json.RawMessage{}, nil
	}
	return records, nil
}

func (l *Log) writeLocked(records []json.RawMessage) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create result log directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result log: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary result log: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write result log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync result log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close result log: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("failed to replace result log: %w", err)
	}
	return nil
}

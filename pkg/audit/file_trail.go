package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileTrail appends audit entries as JSON lines to a file. Intended for
// deployments without a database sink, or as the second leg of a MultiTrail.
type FileTrail struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileTrail creates a file-backed audit trail, creating the parent
// directory if needed
func NewFileTrail(path string) (*FileTrail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileTrail{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Record appends one entry as a JSON line
func (t *FileTrail) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return fmt.Errorf("audit trail is closed")
	}
	if err := t.encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close syncs and closes the underlying file
func (t *FileTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	if err := t.file.Sync(); err != nil {
		t.file.Close()
		t.file = nil
		return fmt.Errorf("failed to sync audit log file: %w", err)
	}
	err := t.file.Close()
	t.file = nil
	return err
}

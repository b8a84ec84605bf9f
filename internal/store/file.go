package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ragconsole/internal/conversation"
)

// Transcript is a saved conversation from the CLI.
type Transcript struct {
	TenantID string                 `json:"tenant_id"`
	SavedAt  time.Time              `json:"saved_at"`
	Messages []conversation.Message `json:"messages"`
}

// FileTranscriptStore writes one transcript as JSON, replacing the file
// atomically so a crash never leaves half a transcript behind.
type FileTranscriptStore struct {
	path string
}

func NewFileTranscriptStore(path string) *FileTranscriptStore {
	return &FileTranscriptStore{path: path}
}

// Read returns nil, nil when nothing has been saved yet.
func (f *FileTranscriptStore) Read() (*Transcript, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("corrupt transcript %s: %w", f.path, err)
	}
	return &t, nil
}

func (f *FileTranscriptStore) Write(t *Transcript) error {
	if t == nil {
		return fmt.Errorf("invalid transcript")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileTranscriptStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

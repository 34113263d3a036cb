package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeSessionID produces a filesystem-safe name. The session ID is
// the single source of truth for the filename.
func sanitizeSessionID(sessionID string) string {
	id := strings.TrimSpace(sessionID)
	id = strings.ReplaceAll(id, string(os.PathSeparator), "-")
	id = nonAlnum.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-")
	if id == "" {
		id = fmt.Sprintf("session-%d", time.Now().Unix())
	}
	return id
}

// FileSink stores one gob-encoded checkpoint file per session under a
// base directory.
type FileSink struct {
	baseDir string
}

// NewFileSink creates the base directory if needed.
func NewFileSink(baseDir string) (*FileSink, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileSink{baseDir: baseDir}, nil
}

func (s *FileSink) path(sessionID string) string {
	return filepath.Join(s.baseDir, sanitizeSessionID(sessionID)+".gob")
}

// Save writes the checkpoint atomically: encode to a temp file, then
// rename over the final path.
func (s *FileSink) Save(cp *Checkpoint) error {
	cp.Version = Version
	cp.SavedAt = time.Now()

	finalPath := s.path(cp.SessionID)
	tempPath := finalPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp checkpoint file: %w", err)
	}
	return nil
}

// Load reads and decodes the checkpoint for a session.
func (s *FileSink) Load(sessionID string) (*Checkpoint, error) {
	file, err := os.Open(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	if cp.Version != Version {
		return nil, fmt.Errorf("checkpoint version mismatch: expected %d, got %d", Version, cp.Version)
	}
	return &cp, nil
}

// List returns the session IDs with a stored checkpoint.
func (s *FileSink) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".gob") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".gob"))
	}
	return ids, nil
}

// Delete removes a session's checkpoint. Deleting a missing checkpoint is
// not an error.
func (s *FileSink) Delete(sessionID string) error {
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

var _ Sink = (*FileSink)(nil)

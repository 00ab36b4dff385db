package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// HistoryEntry records one started recording in the history sidecar.
type HistoryEntry struct {
	ID              string `json:"id" yaml:"id"`
	File            string `json:"file" yaml:"file"`
	DurationSeconds int    `json:"duration_seconds" yaml:"duration_seconds"`
	StartedAt       string `json:"started_at" yaml:"started_at"`
}

// historyFile is the on-disk shape of recordings.yaml.
type historyFile struct {
	Recordings []HistoryEntry `yaml:"recordings"`
}

func (s *CamwireService) historyPath() string {
	return filepath.Join(s.cfg.Output.Directory, "recordings.yaml")
}

// History returns the recording history, newest first.
func (s *CamwireService) History() ([]HistoryEntry, error) {
	s.historyMutex.RLock()
	defer s.historyMutex.RUnlock()

	entries, err := s.loadHistory()
	if err != nil {
		return nil, err
	}

	reversed := make([]HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		reversed = append(reversed, entries[i])
	}
	return reversed, nil
}

// appendHistory adds an entry for a recording that just started.
func (s *CamwireService) appendHistory(file string, duration time.Duration) error {
	s.historyMutex.Lock()
	defer s.historyMutex.Unlock()

	entries, err := s.loadHistory()
	if err != nil {
		return err
	}

	entries = append(entries, HistoryEntry{
		ID:              uuid.New().String(),
		File:            file,
		DurationSeconds: int(duration.Seconds()),
		StartedAt:       time.Now().Format(time.RFC3339),
	})

	return s.saveHistory(entries)
}

func (s *CamwireService) loadHistory() ([]HistoryEntry, error) {
	data, err := os.ReadFile(s.historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recording history: %w", err)
	}

	var file historyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse recording history: %w", err)
	}
	return file.Recordings, nil
}

func (s *CamwireService) saveHistory(entries []HistoryEntry) error {
	path := s.historyPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := yaml.Marshal(historyFile{Recordings: entries})
	if err != nil {
		return fmt.Errorf("failed to marshal recording history: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write recording history: %w", err)
	}
	return nil
}

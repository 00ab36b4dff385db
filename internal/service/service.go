package service

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/camwirelab/camwire/internal/camera"
	"github.com/camwirelab/camwire/internal/config"
	"github.com/camwirelab/camwire/internal/session"
)

// Service is the camwire service surface consumed by the command router,
// the HTTP server and the CLI entry points.
type Service interface {
	// Session operations
	Init() error
	StartStream(destination string, timeout time.Duration) error
	StopStream() error
	StartRecording(filename string, duration time.Duration) error
	StopRecording() error
	StopAll() error
	Status() session.Status
	Shutdown() error

	// Recording inventory
	ListRecordings() ([]RecordingInfo, error)
	History() ([]HistoryEntry, error)

	// Camera enumeration
	ListCameras() ([]string, error)

	// Information operations
	GetLastError() string
	GetConfig() *config.Config
}

// RecordingInfo describes one finished recording on disk.
type RecordingInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Extension    string    `json:"extension"`
	DownloadURL  string    `json:"download_url"`
}

// CamwireService is the main service implementation.
type CamwireService struct {
	cfg  *config.Config
	ctrl *session.Controller

	historyMutex sync.RWMutex

	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service around the given device.
func New(cfg *config.Config, dev camera.Device) *CamwireService {
	return &CamwireService{
		cfg:  cfg,
		ctrl: session.New(dev, cfg),
	}
}

// Init opens and configures the camera up front so the first command does
// not pay the initialization cost.
func (s *CamwireService) Init() error {
	return s.ctrl.Init()
}

// StartStream starts streaming to the destination.
func (s *CamwireService) StartStream(destination string, timeout time.Duration) error {
	s.clearLastError()
	if err := s.ctrl.StartStream(destination, timeout); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start stream: %v", err))
		return err
	}
	return nil
}

// StopStream stops the active stream.
func (s *CamwireService) StopStream() error {
	if err := s.ctrl.StopStream(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop stream: %v", err))
		return err
	}
	return nil
}

// StartRecording starts a recording. Relative filenames land in the
// configured output directory; the directory is created on demand.
func (s *CamwireService) StartRecording(filename string, duration time.Duration) error {
	s.clearLastError()

	resolved := filename
	if filename != "" && !filepath.IsAbs(filename) {
		if err := os.MkdirAll(s.cfg.Output.Directory, 0755); err != nil {
			s.setLastError(fmt.Sprintf("Failed to create output directory: %v", err))
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		resolved = filepath.Join(s.cfg.Output.Directory, filename)
	}

	final, err := s.ctrl.StartRecording(resolved, duration)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}

	if herr := s.appendHistory(final, duration); herr != nil {
		slog.Warn("Failed to record history entry", "file", final, "error", herr)
	}
	return nil
}

// StopRecording stops the active recording.
func (s *CamwireService) StopRecording() error {
	if err := s.ctrl.StopRecording(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
		return err
	}
	return nil
}

// StopAll stops the stream and the recording.
func (s *CamwireService) StopAll() error {
	if err := s.ctrl.StopAll(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop all components: %v", err))
		return err
	}
	return nil
}

// Status returns the session snapshot.
func (s *CamwireService) Status() session.Status {
	return s.ctrl.Status()
}

// Shutdown stops everything and releases the camera.
func (s *CamwireService) Shutdown() error {
	return s.ctrl.Shutdown()
}

// ListCameras asks the capture stack which cameras it can see.
func (s *CamwireService) ListCameras() ([]string, error) {
	return camera.ListCameras(s.cfg.Camera.Command)
}

// ListRecordings returns the recordings in the output directory, newest
// first.
func (s *CamwireService) ListRecordings() ([]RecordingInfo, error) {
	outputDir := s.cfg.Output.Directory

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	supportedExts := map[string]bool{
		".mp4":  true,
		".mkv":  true,
		".h264": true,
	}

	var recordings []RecordingInfo
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Name()))
		if !supportedExts[ext] {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		recordings = append(recordings, RecordingInfo{
			Name:         file.Name(),
			Path:         filepath.Join(outputDir, file.Name()),
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			Extension:    strings.TrimPrefix(ext, "."),
			DownloadURL:  fmt.Sprintf("/api/recordings/download/%s", file.Name()),
		})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModTime.After(recordings[j].ModTime)
	})

	return recordings, nil
}

// GetLastError returns the last error message (thread-safe).
func (s *CamwireService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// GetConfig returns the current configuration.
func (s *CamwireService) GetConfig() *config.Config {
	return s.cfg
}

func (s *CamwireService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

func (s *CamwireService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camwirelab/camwire/internal/command"
	"github.com/camwirelab/camwire/internal/config"
	"github.com/camwirelab/camwire/internal/metrics"
	"github.com/camwirelab/camwire/internal/service"
	"github.com/camwirelab/camwire/internal/session"
)

// Server exposes the camera session over HTTP. Control endpoints return
// the same JSON envelope as the line protocol, so clients can switch
// between the two surfaces without reparsing.
type Server struct {
	service    service.Service
	cfg        *config.Config
	met        *metrics.Metrics
	router     *command.Router
	httpServer *http.Server
}

// StreamRequest is the JSON body for POST /api/stream.
type StreamRequest struct {
	Destination string `json:"destination"`
	Timeout     int    `json:"timeout,omitempty"`
}

// RecordRequest is the JSON body for POST /api/record.
type RecordRequest struct {
	Filename string `json:"filename"`
	Duration int    `json:"duration"`
}

// StopRequest is the JSON body for POST /api/stop. An empty body or an
// empty target stops all components.
type StopRequest struct {
	Target string `json:"target,omitempty"`
}

// CommandRequest is the JSON body for POST /api/command. Line carries a
// raw protocol command such as "stream:destination=10.0.0.5:5000".
type CommandRequest struct {
	Line string `json:"line"`
}

// RecordingsResponse is the data payload for GET /api/recordings.
type RecordingsResponse struct {
	Recordings      []service.RecordingInfo `json:"recordings"`
	TotalCount      int                     `json:"total_count"`
	OutputDirectory string                  `json:"output_directory"`
}

// HistoryResponse is the data payload for GET /api/history.
type HistoryResponse struct {
	Recordings []service.HistoryEntry `json:"recordings"`
	TotalCount int                    `json:"total_count"`
}

// CamerasResponse is the data payload for GET /api/cameras.
type CamerasResponse struct {
	Cameras []string `json:"cameras"`
}

// New creates a web server around an existing service. The metrics
// registry may be nil, in which case /metrics is not registered.
func New(svc service.Service, met *metrics.Metrics) *Server {
	cfg := svc.GetConfig()
	timeout := time.Duration(cfg.Stream.DefaultTimeout) * time.Second
	return &Server{
		service: svc,
		cfg:     cfg,
		met:     met,
		router:  command.NewRouter(svc, timeout),
	}
}

// Handler builds the route tree. Exposed separately from Start so tests
// can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	if s.met != nil {
		r.Use(requestMetrics(s.met))
	}

	r.Get("/healthz", s.handleHealth)
	if s.met != nil {
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			s.met.Handler(s.updateGauges).ServeHTTP(w, req)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/stream", s.handleStartStream)
		r.Post("/record", s.handleStartRecording)
		r.Post("/stop", s.handleStop)
		r.Post("/command", s.handleCommand)
		r.Get("/status", s.handleStatus)
		r.Get("/recordings", s.handleRecordings)
		r.Get("/recordings/download/{filename}", s.handleDownload)
		r.Get("/history", s.handleHistory)
		r.Get("/cameras", s.handleCameras)
	})

	return r
}

// Start begins serving on the configured port and blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    ":" + s.cfg.Server.Port,
		Handler: s.Handler(),
	}

	localIP := getLocalIP()
	slog.Info("Starting Camwire web server",
		"port", s.cfg.Server.Port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.cfg.Server.Port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests. The camera session itself is shut
// down by the caller, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) updateGauges() {
	st := s.service.Status()
	s.met.SetStreamActive(st.Streaming.Active)
	s.met.SetRecordingActive(st.Recording.Active)
}

// handleStartStream starts UDP streaming to the requested destination.
func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, command.Failure("Invalid JSON payload"))
		return
	}

	if strings.TrimSpace(req.Destination) == "" {
		writeJSON(w, http.StatusBadRequest, command.Failure("Missing required parameter: destination"))
		return
	}
	if req.Timeout < 0 {
		writeJSON(w, http.StatusBadRequest, command.Failure("Timeout must be positive"))
		return
	}

	timeout := time.Duration(s.cfg.Stream.DefaultTimeout) * time.Second
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	if err := s.service.StartStream(req.Destination, timeout); err != nil {
		slog.Error("Stream start failed", "destination", req.Destination, "error", err)
		writeJSON(w, statusForError(err), command.Failure("Streaming failed"))
		return
	}

	writeJSON(w, http.StatusOK, command.Success("Streaming started", nil))
}

// handleStartRecording starts a fixed-duration recording.
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, command.Failure("Invalid JSON payload"))
		return
	}

	if strings.TrimSpace(req.Filename) == "" {
		writeJSON(w, http.StatusBadRequest, command.Failure("Missing required parameter: filename"))
		return
	}
	if req.Duration <= 0 {
		writeJSON(w, http.StatusBadRequest, command.Failure("Duration must be positive"))
		return
	}

	duration := time.Duration(req.Duration) * time.Second
	if err := s.service.StartRecording(req.Filename, duration); err != nil {
		slog.Error("Recording start failed", "filename", req.Filename, "error", err)
		writeJSON(w, statusForError(err), command.Failure("Recording failed"))
		return
	}

	if s.met != nil {
		s.met.IncRecordings()
	}
	writeJSON(w, http.StatusOK, command.Success("Recording started", nil))
}

// handleStop stops the stream, the recording, or both.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, command.Failure("Invalid JSON payload"))
		return
	}

	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}

	var component string
	var err error
	switch target {
	case "stream":
		component = "stream"
		err = s.service.StopStream()
	case "record":
		component = "recording"
		err = s.service.StopRecording()
	case "all":
		component = "all components"
		err = s.service.StopAll()
	default:
		writeJSON(w, http.StatusBadRequest, command.Failure("Invalid stop target: "+target))
		return
	}

	if err != nil {
		slog.Error("Stop failed", "target", target, "error", err)
		writeJSON(w, statusForError(err), command.Failure("Failed to stop "+component))
		return
	}

	writeJSON(w, http.StatusOK, command.Success("Stopped "+component, nil))
}

// handleCommand bridges the raw line protocol onto HTTP. The response
// is always 200 with the protocol envelope carrying the outcome, the
// same as a serial client would see.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, command.Failure("Invalid JSON payload"))
		return
	}
	if strings.TrimSpace(req.Line) == "" {
		writeJSON(w, http.StatusBadRequest, command.Failure("Command line is required"))
		return
	}

	resp := s.router.Execute(req.Line)
	if s.met != nil {
		s.met.IncCommands()
		if !resp.Success {
			s.met.IncErrors()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, command.Success("Status retrieved", s.service.Status()))
}

// handleRecordings lists recording files in the output directory.
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recordings, err := s.service.ListRecordings()
	if err != nil {
		slog.Error("Failed to list recordings", "error", err)
		writeJSON(w, http.StatusInternalServerError, command.Failure("Failed to list recordings"))
		return
	}

	writeJSON(w, http.StatusOK, command.Success("Recordings retrieved", RecordingsResponse{
		Recordings:      recordings,
		TotalCount:      len(recordings),
		OutputDirectory: s.cfg.Output.Directory,
	}))
}

// handleDownload serves a recording file for download.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		writeJSON(w, http.StatusBadRequest, command.Failure("Filename is required"))
		return
	}

	// Validate filename (prevent path traversal)
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		writeJSON(w, http.StatusBadRequest, command.Failure("Invalid filename"))
		return
	}

	filePath := filepath.Join(s.cfg.Output.Directory, filename)
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusNotFound, command.Failure("Recording not found"))
		} else {
			writeJSON(w, http.StatusInternalServerError, command.Failure("Error accessing recording"))
		}
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))

	file, err := os.Open(filePath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, command.Failure("Error opening recording"))
		return
	}
	defer file.Close()

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("Error serving recording download", "file", filename, "error", err)
	}
}

// handleHistory returns logged recording sessions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.History()
	if err != nil {
		slog.Error("Failed to load recording history", "error", err)
		writeJSON(w, http.StatusInternalServerError, command.Failure("Failed to load history"))
		return
	}

	writeJSON(w, http.StatusOK, command.Success("History retrieved", HistoryResponse{
		Recordings: entries,
		TotalCount: len(entries),
	}))
}

// handleCameras lists cameras detected by the capture tool.
func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.service.ListCameras()
	if err != nil {
		slog.Error("Failed to list cameras", "error", err)
		writeJSON(w, http.StatusInternalServerError, command.Failure("Failed to list cameras"))
		return
	}

	writeJSON(w, http.StatusOK, command.Success("Cameras retrieved", CamerasResponse{Cameras: cameras}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError maps session error kinds onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, session.ErrInitialization):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".h264":
		return "video/h264"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// getLocalIP returns the local IP address for network access.
func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

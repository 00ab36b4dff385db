package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camwirelab/camwire/internal/camera"
	"github.com/camwirelab/camwire/internal/command"
	"github.com/camwirelab/camwire/internal/config"
	"github.com/camwirelab/camwire/internal/metrics"
	"github.com/camwirelab/camwire/internal/service"
	"github.com/camwirelab/camwire/internal/session"
)

func newTestServer(t *testing.T) (*Server, *camera.FakeDevice) {
	t.Helper()

	cfg := &config.Config{
		Camera: config.CameraConfig{
			Width:   640,
			Height:  480,
			Format:  "yuv420",
			Command: "/nonexistent/rpicam-vid",
		},
		Encoder: config.EncoderConfig{
			FFmpeg:        "ffmpeg",
			RecordBitrate: 10000000,
			IntraPeriod:   15,
			InlineHeaders: true,
		},
		Stream: config.StreamConfig{DefaultTimeout: 300},
		Output: config.OutputConfig{Directory: t.TempDir()},
		Server: config.ServerConfig{Port: "8080"},
	}

	dev := camera.NewFakeDevice()
	return New(service.New(cfg, dev), metrics.New()), dev
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) command.Response {
	t.Helper()

	var resp command.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestStartStream_OK(t *testing.T) {
	s, dev := newTestServer(t)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/stream", `{"destination":"239.0.0.1:5000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if !resp.Success || resp.Message != "Streaming started" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if !dev.IsRunning() {
		t.Error("Expected camera to be running after stream start")
	}
}

func TestStartStream_MissingDestination(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/stream", `{"timeout":30}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if resp.Message != "Missing required parameter: destination" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestStartStream_InvalidJSON(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/stream", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if resp.Message != "Invalid JSON payload" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestStartStream_NegativeTimeout(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/stream", `{"destination":"239.0.0.1:5000","timeout":-5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if resp.Message != "Timeout must be positive" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestStartStream_DeviceFailure(t *testing.T) {
	s, dev := newTestServer(t)
	dev.SetFailStart(true)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/stream", `{"destination":"239.0.0.1:5000"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if resp.Success || resp.Message != "Streaming failed" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestStartRecording_OK(t *testing.T) {
	s, dev := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/record", `{"filename":"clip.mp4","duration":60}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if !resp.Success || resp.Message != "Recording started" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if got := dev.EncoderStarts(); got != 1 {
		t.Errorf("Expected 1 encoder start, got %d", got)
	}
}

func TestStartRecording_Conflict(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/record", `{"filename":"first.mp4","duration":60}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("First recording failed: %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/record", `{"filename":"second.mp4","duration":60}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for concurrent recording, got %d", rec.Code)
	}
}

func TestStartRecording_Validation(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing filename", `{"duration":60}`, "Missing required parameter: filename"},
		{"zero duration", `{"filename":"clip.mp4"}`, "Duration must be positive"},
		{"negative duration", `{"filename":"clip.mp4","duration":-1}`, "Duration must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/record", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			if resp := decodeResponse(t, rec); resp.Message != tt.message {
				t.Errorf("Expected %q, got %q", tt.message, resp.Message)
			}
		})
	}
}

func TestStop_Targets(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	doRequest(t, h, http.MethodPost, "/api/stream", `{"destination":"239.0.0.1:5000"}`)

	rec := doRequest(t, h, http.MethodPost, "/api/stop", `{"target":"stream"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "Stopped stream" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}

	// An empty body stops everything.
	rec = doRequest(t, h, http.MethodPost, "/api/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for empty stop body, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "Stopped all components" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestStop_InvalidTarget(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/stop", `{"target":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	if resp := decodeResponse(t, rec); resp.Message != "Invalid stop target: bogus" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestStatus_ReflectsActiveStream(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	doRequest(t, h, http.MethodPost, "/api/stream", `{"destination":"239.0.0.1:5000","timeout":30}`)

	rec := doRequest(t, h, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    session.Status `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode status response: %v", err)
	}

	if resp.Message != "Status retrieved" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
	if !resp.Data.Streaming.Active || !resp.Data.CameraRunning {
		t.Errorf("Expected active stream in status, got: %+v", resp.Data)
	}
	if resp.Data.Streaming.Destination == nil || *resp.Data.Streaming.Destination != "239.0.0.1:5000" {
		t.Errorf("Unexpected destination: %v", resp.Data.Streaming.Destination)
	}
	if resp.Data.Resolution != "640x480" {
		t.Errorf("Unexpected resolution: %q", resp.Data.Resolution)
	}
}

func TestCommandBridge(t *testing.T) {
	s, dev := newTestServer(t)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/command", `{"line":"stream:destination=239.0.0.1:5000,timeout=30"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); !resp.Success || resp.Message != "Streaming started" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if !dev.IsRunning() {
		t.Error("Expected camera running after bridged stream command")
	}

	// Protocol failures still ride on a 200; the envelope carries the outcome.
	rec = doRequest(t, h, http.MethodPost, "/api/command", `{"line":"bogus"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for protocol-level failure, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Success || resp.Message != "Unknown command: bogus" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestCommandBridge_EmptyLine(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/command", `{"line":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestDownload_ServesRecording(t *testing.T) {
	s, _ := newTestServer(t)

	content := []byte("fake h264 payload")
	path := filepath.Join(s.cfg.Output.Directory, "clip.mp4")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write recording: %v", err)
	}

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/recordings/download/clip.mp4", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != string(content) {
		t.Errorf("Body mismatch: %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Unexpected content type: %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "clip.mp4") {
		t.Errorf("Unexpected content disposition: %q", cd)
	}
}

func TestDownload_RejectsTraversal(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/recordings/download/secret..mp4", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for filename with dots, got %d", rec.Code)
	}

	if resp := decodeResponse(t, rec); resp.Message != "Invalid filename" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestDownload_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/recordings/download/missing.mp4", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestRecordings_ListsOutputDirectory(t *testing.T) {
	s, _ := newTestServer(t)

	path := filepath.Join(s.cfg.Output.Directory, "session.mkv")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("Failed to write recording: %v", err)
	}

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/recordings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success bool               `json:"success"`
		Data    RecordingsResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode recordings response: %v", err)
	}

	if resp.Data.TotalCount != 1 || len(resp.Data.Recordings) != 1 {
		t.Fatalf("Expected 1 recording, got: %+v", resp.Data)
	}
	if resp.Data.Recordings[0].Name != "session.mkv" {
		t.Errorf("Unexpected recording name: %q", resp.Data.Recordings[0].Name)
	}
}

func TestHistory_ReturnsLoggedRecordings(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	doRequest(t, h, http.MethodPost, "/api/record", `{"filename":"clip.mp4","duration":60}`)
	doRequest(t, h, http.MethodPost, "/api/stop", `{"target":"record"}`)

	rec := doRequest(t, h, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success bool            `json:"success"`
		Data    HistoryResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode history response: %v", err)
	}

	if resp.Data.TotalCount != 1 {
		t.Fatalf("Expected 1 history entry, got %d", resp.Data.TotalCount)
	}
	if resp.Data.Recordings[0].DurationSeconds != 60 {
		t.Errorf("Unexpected duration: %d", resp.Data.Recordings[0].DurationSeconds)
	}
}

func TestCameras_ReportsToolFailure(t *testing.T) {
	s, _ := newTestServer(t)

	// The test config points at a capture binary that does not exist.
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/cameras", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}

	if resp := decodeResponse(t, rec); resp.Message != "Failed to list cameras" {
		t.Errorf("Unexpected message: %q", resp.Message)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected health body: %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	doRequest(t, h, http.MethodPost, "/api/stream", `{"destination":"239.0.0.1:5000"}`)

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "camwire_stream_active 1") {
		t.Errorf("Expected stream gauge set in metrics output:\n%s", body)
	}
	if !strings.Contains(body, "camwire_requests_total") {
		t.Error("Expected request counter in metrics output")
	}
}

func TestShutdown_WithoutStart(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown before Start should be a no-op, got: %v", err)
	}
}

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/camwirelab/camwire/internal/camera"
	"github.com/camwirelab/camwire/internal/config"
)

// Controller owns the camera session: at most one stream and at most one
// recording at a time, both backed by the same device. All state lives
// behind a single mutex; timer callbacks re-enter through methods that
// take the mutex fresh.
type Controller struct {
	mu  sync.Mutex
	dev camera.Device
	cfg *config.Config

	initialized bool

	streamActive bool
	streamDest   string
	streamEnc    camera.Encoder
	streamTask   *task
	streamGen    uint64

	recordActive bool
	recordFile   string
	recordEnc    camera.Encoder
	recordTask   *task
	recordGen    uint64
}

// New creates a Controller for the given device. The camera is not opened
// until Init or the first operation.
func New(dev camera.Device, cfg *config.Config) *Controller {
	return &Controller{dev: dev, cfg: cfg}
}

// Init opens and configures the camera. Operations retry initialization
// themselves, so a failure here is not fatal for later calls.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked()
}

func (c *Controller) initLocked() error {
	if c.initialized {
		return nil
	}

	if err := c.dev.Open(); err != nil {
		return fmt.Errorf("%w: opening camera: %v", ErrInitialization, err)
	}
	if err := c.dev.Configure(c.cfg.Camera.Width, c.cfg.Camera.Height, c.cfg.Camera.Format); err != nil {
		if cerr := c.dev.Close(); cerr != nil {
			slog.Warn("Failed to close camera after configure error", "error", cerr)
		}
		return fmt.Errorf("%w: configuring camera: %v", ErrInitialization, err)
	}

	c.initialized = true
	slog.Info("Camera initialized",
		"width", c.cfg.Camera.Width,
		"height", c.cfg.Camera.Height,
		"format", c.cfg.Camera.Format)
	return nil
}

// StartStream starts streaming to destination, stopping any stream to a
// different destination first. Starting again with the same destination
// only pushes the timeout out; the encoder keeps running.
func (c *Controller) StartStream(destination string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if destination == "" {
		return fmt.Errorf("%w: destination must not be empty", ErrValidation)
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrValidation)
	}
	if err := c.initLocked(); err != nil {
		return err
	}

	if c.streamActive && c.streamDest == destination {
		if c.streamTask != nil {
			c.streamTask.cancel()
		}
		c.streamGen++
		gen := c.streamGen
		c.streamTask = schedule(timeout, func() { c.streamExpired(gen) })
		slog.Info("Stream timeout refreshed", "destination", destination, "timeout", timeout)
		return nil
	}

	if c.streamActive {
		slog.Info("Switching stream destination", "from", c.streamDest, "to", destination)
		if err := c.stopStreamLocked(); err != nil {
			slog.Warn("Failed to stop previous stream", "error", err)
		}
	}

	startedCamera := false
	if !c.dev.IsRunning() {
		if err := c.dev.Start(); err != nil {
			return fmt.Errorf("%w: starting camera: %v", ErrDevice, err)
		}
		startedCamera = true
	}

	enc, err := c.dev.StartEncoder(camera.EncoderStream, camera.EncoderParams{
		Destination:   destination,
		IntraPeriod:   c.cfg.Encoder.IntraPeriod,
		RepeatHeaders: true,
	})
	if err != nil {
		if startedCamera {
			if serr := c.dev.Stop(); serr != nil {
				slog.Warn("Failed to stop camera after encoder error", "error", serr)
			}
		}
		return fmt.Errorf("%w: starting stream encoder: %v", ErrDevice, err)
	}

	c.streamActive = true
	c.streamDest = destination
	c.streamEnc = enc
	c.streamGen++
	gen := c.streamGen
	c.streamTask = schedule(timeout, func() { c.streamExpired(gen) })

	slog.Info("Streaming started", "destination", destination, "timeout", timeout)
	return nil
}

// streamExpired runs on the timer goroutine when a stream timeout fires.
// The generation check drops callbacks made stale by a refresh or switch.
func (c *Controller) streamExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.streamActive || c.streamGen != gen {
		return
	}
	slog.Info("Stream timeout reached", "destination", c.streamDest)
	if err := c.stopStreamLocked(); err != nil {
		slog.Error("Failed to stop expired stream", "error", err)
	}
}

// StopStream stops the active stream. Calling it without an active stream
// is a no-op.
func (c *Controller) StopStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopStreamLocked()
}

func (c *Controller) stopStreamLocked() error {
	if !c.streamActive {
		return nil
	}

	if c.streamTask != nil {
		c.streamTask.cancel()
		c.streamTask = nil
	}
	enc := c.streamEnc
	dest := c.streamDest

	// Clear state before touching the device so a failed device stop
	// cannot leave a phantom active stream behind.
	c.streamActive = false
	c.streamDest = ""
	c.streamEnc = nil
	c.streamGen++

	var firstErr error
	if enc != nil {
		if err := c.dev.StopEncoder(enc); err != nil {
			firstErr = fmt.Errorf("%w: stopping stream encoder: %v", ErrDevice, err)
		}
	}
	if !c.recordActive {
		if err := c.dev.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: stopping camera: %v", ErrDevice, err)
		}
	}

	if firstErr == nil {
		slog.Info("Streaming stopped", "destination", dest)
	}
	return firstErr
}

// StartRecording starts recording to filename for the given duration and
// returns the path actually recorded to. Filenames without a known
// container extension get ".h264" appended and are written as raw H.264.
// Only one recording may run at a time.
func (c *Controller) StartRecording(filename string, duration time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if filename == "" {
		return "", fmt.Errorf("%w: filename must not be empty", ErrValidation)
	}
	if duration <= 0 {
		return "", fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if c.recordActive {
		return "", fmt.Errorf("%w: recording already in progress", ErrConflict)
	}
	if err := c.initLocked(); err != nil {
		return "", err
	}

	filename, container := resolveRecordingTarget(filename)

	startedCamera := false
	if !c.dev.IsRunning() {
		if err := c.dev.Start(); err != nil {
			return "", fmt.Errorf("%w: starting camera: %v", ErrDevice, err)
		}
		startedCamera = true
	}

	enc, err := c.dev.StartEncoder(camera.EncoderRecord, camera.EncoderParams{
		Filename:  filename,
		Container: container,
		Bitrate:   c.cfg.Encoder.RecordBitrate,
	})
	if err != nil {
		if startedCamera {
			if serr := c.dev.Stop(); serr != nil {
				slog.Warn("Failed to stop camera after encoder error", "error", serr)
			}
		}
		return "", fmt.Errorf("%w: starting record encoder: %v", ErrDevice, err)
	}

	c.recordActive = true
	c.recordFile = filename
	c.recordEnc = enc
	c.recordGen++
	gen := c.recordGen
	c.recordTask = schedule(duration, func() { c.recordExpired(gen) })

	slog.Info("Recording started", "file", filename, "duration", duration)
	return filename, nil
}

// resolveRecordingTarget maps a requested filename to the final path and
// container format.
func resolveRecordingTarget(filename string) (string, string) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return filename, "mp4"
	case ".mkv":
		return filename, "mkv"
	case ".h264":
		return filename, ""
	default:
		return filename + ".h264", ""
	}
}

func (c *Controller) recordExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recordActive || c.recordGen != gen {
		return
	}
	slog.Info("Recording duration reached", "file", c.recordFile)
	if err := c.stopRecordingLocked(); err != nil {
		slog.Error("Failed to stop expired recording", "error", err)
	}
}

// StopRecording stops the active recording. Calling it without an active
// recording is a no-op.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRecordingLocked()
}

func (c *Controller) stopRecordingLocked() error {
	if !c.recordActive {
		return nil
	}

	if c.recordTask != nil {
		c.recordTask.cancel()
		c.recordTask = nil
	}
	enc := c.recordEnc
	file := c.recordFile

	c.recordActive = false
	c.recordFile = ""
	c.recordEnc = nil
	c.recordGen++

	var firstErr error
	if enc != nil {
		if err := c.dev.StopEncoder(enc); err != nil {
			firstErr = fmt.Errorf("%w: stopping record encoder: %v", ErrDevice, err)
		}
	}
	if !c.streamActive {
		if err := c.dev.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: stopping camera: %v", ErrDevice, err)
		}
	}

	if firstErr == nil {
		slog.Info("Recording stopped", "file", file)
	}
	return firstErr
}

// StopAll stops the stream and the recording and forces the camera down
// even when the individual stops fail. The returned error joins every
// failure encountered.
func (c *Controller) StopAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopAllLocked()
}

func (c *Controller) stopAllLocked() error {
	streamErr := c.stopStreamLocked()
	recordErr := c.stopRecordingLocked()

	var deviceErr error
	if c.dev.IsRunning() {
		if err := c.dev.Stop(); err != nil {
			deviceErr = fmt.Errorf("%w: stopping camera: %v", ErrDevice, err)
		}
	}

	return errors.Join(streamErr, recordErr, deviceErr)
}

// Status returns a snapshot of the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Initialized:   c.initialized,
		CameraRunning: c.dev.IsRunning(),
		Streaming:     StreamStatus{Active: c.streamActive},
		Recording:     RecordStatus{Active: c.recordActive},
		Resolution:    fmt.Sprintf("%dx%d", c.cfg.Camera.Width, c.cfg.Camera.Height),
		Format:        c.cfg.Camera.Format,
	}
	if c.streamActive {
		dest := c.streamDest
		st.Streaming.Destination = &dest
		if c.streamTask != nil {
			rem := int(c.streamTask.remaining().Seconds())
			st.Streaming.TimeoutRemaining = &rem
		}
	}
	return st
}

// Shutdown stops everything and closes the camera. Safe to call more
// than once.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.stopAllLocked()
	if c.initialized {
		if cerr := c.dev.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: closing camera: %v", ErrDevice, cerr))
		}
		c.initialized = false
		slog.Info("Camera session shut down")
	}
	return err
}

package camera

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options configures the process-backed capture device.
type Options struct {
	CaptureCommand string // rpicam-vid compatible binary
	FFmpegCommand  string
	CameraIndex    int
	Bitrate        int
	IntraPeriod    int
	InlineHeaders  bool
}

// CaptureDevice implements Device on top of an external capture process that
// writes an H.264 elementary stream to stdout. The stream is fanned out to
// the sinks attached by StartEncoder: a UDP/MPEG-TS relay for streaming, an
// ffmpeg mux child or a plain file for recording. Encoding happens entirely
// in the child processes.
type CaptureDevice struct {
	opts Options

	mu      sync.Mutex
	opened  bool
	running bool
	width   int
	height  int
	format  string

	captureCmd *exec.Cmd
	readerDone chan struct{}

	sinkMu sync.RWMutex
	sinks  map[*sinkEncoder]struct{}
}

// NewCaptureDevice creates a capture device. Zero-value options fall back to
// rpicam-vid and ffmpeg on PATH.
func NewCaptureDevice(opts Options) *CaptureDevice {
	if opts.CaptureCommand == "" {
		opts.CaptureCommand = "rpicam-vid"
	}
	if opts.FFmpegCommand == "" {
		opts.FFmpegCommand = "ffmpeg"
	}
	return &CaptureDevice{
		opts:  opts,
		sinks: make(map[*sinkEncoder]struct{}),
	}
}

// Open verifies that the capture and ffmpeg binaries are resolvable.
func (d *CaptureDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		return nil
	}

	if _, err := exec.LookPath(d.opts.CaptureCommand); err != nil {
		return fmt.Errorf("capture command %q not found: %w", d.opts.CaptureCommand, err)
	}
	if _, err := exec.LookPath(d.opts.FFmpegCommand); err != nil {
		return fmt.Errorf("ffmpeg command %q not found: %w", d.opts.FFmpegCommand, err)
	}

	d.opened = true
	return nil
}

// Configure sets the capture geometry and pixel format for the next Start.
func (d *CaptureDevice) Configure(width, height int, format string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("cannot configure while capture is running")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid capture geometry %dx%d", width, height)
	}

	d.width = width
	d.height = height
	d.format = format
	return nil
}

// IsRunning reports whether the capture process is alive.
func (d *CaptureDevice) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start spawns the capture process and the fan-out reader. No-op when
// already running.
func (d *CaptureDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	if !d.opened {
		return fmt.Errorf("camera is not open")
	}
	if d.width == 0 || d.height == 0 {
		return fmt.Errorf("camera is not configured")
	}

	args := buildCaptureArgs(d.opts, d.width, d.height)
	cmd := exec.Command(args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting capture process: %w", err)
	}

	d.captureCmd = cmd
	d.readerDone = make(chan struct{})
	d.running = true

	go d.fanOut(stdout)
	go logProcessOutput(d.opts.CaptureCommand, stderr)

	slog.Info("capture started", "command", strings.Join(args, " "))
	return nil
}

// buildCaptureArgs assembles the capture command line for an unbounded
// H.264 run written to stdout.
func buildCaptureArgs(opts Options, width, height int) []string {
	args := []string{
		opts.CaptureCommand,
		"-t", "0",
		"--width", strconv.Itoa(width),
		"--height", strconv.Itoa(height),
		"--codec", "h264",
		"--nopreview",
	}
	if opts.InlineHeaders {
		args = append(args, "--inline")
	}
	if opts.IntraPeriod > 0 {
		args = append(args, "--intra", strconv.Itoa(opts.IntraPeriod))
	}
	if opts.Bitrate > 0 {
		args = append(args, "--bitrate", strconv.Itoa(opts.Bitrate))
	}
	if opts.CameraIndex > 0 {
		args = append(args, "--camera", strconv.Itoa(opts.CameraIndex))
	}
	return append(args, "-o", "-")
}

// fanOut copies capture output to every attached sink. A failing sink is
// detached so one dead encoder child cannot stall the others.
func (d *CaptureDevice) fanOut(r io.ReadCloser) {
	defer close(d.readerDone)

	buf := make([]byte, 256*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.broadcast(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("capture stream ended", "error", err)
			}
			return
		}
	}
}

func (d *CaptureDevice) broadcast(chunk []byte) {
	d.sinkMu.RLock()
	sinks := make([]*sinkEncoder, 0, len(d.sinks))
	for s := range d.sinks {
		sinks = append(sinks, s)
	}
	d.sinkMu.RUnlock()

	for _, s := range sinks {
		if err := s.write(chunk); err != nil {
			slog.Error("sink write failed, detaching", "kind", s.Kind(), "target", s.Target(), "error", err)
			d.detach(s)
		}
	}
}

func (d *CaptureDevice) attach(s *sinkEncoder) {
	d.sinkMu.Lock()
	d.sinks[s] = struct{}{}
	d.sinkMu.Unlock()
}

func (d *CaptureDevice) detach(s *sinkEncoder) {
	d.sinkMu.Lock()
	delete(d.sinks, s)
	d.sinkMu.Unlock()
}

// Stop terminates the capture process and closes any sinks still attached.
// No-op when not running.
func (d *CaptureDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	return d.stopLocked()
}

func (d *CaptureDevice) stopLocked() error {
	cmd := d.captureCmd

	if cmd != nil && cmd.Process != nil {
		slog.Debug("sending interrupt to capture process")
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("interrupt failed, killing capture process", "error", err)
			cmd.Process.Kill()
		}
	}

	// The reader exits on EOF once the process dies. Escalate to SIGKILL if
	// the process ignores the interrupt.
	if d.readerDone != nil {
		select {
		case <-d.readerDone:
		case <-time.After(3 * time.Second):
			slog.Warn("capture process did not exit in time, killing")
			if cmd != nil && cmd.Process != nil {
				cmd.Process.Kill()
			}
			<-d.readerDone
		}
	}

	var waitErr error
	if cmd != nil {
		if err := cmd.Wait(); err != nil && !isSignalExit(err) {
			waitErr = fmt.Errorf("capture process exited: %w", err)
		}
	}

	// Close leftover sinks after the stream ends so mux children can
	// finalize their containers.
	d.sinkMu.Lock()
	remaining := make([]*sinkEncoder, 0, len(d.sinks))
	for s := range d.sinks {
		remaining = append(remaining, s)
	}
	d.sinks = make(map[*sinkEncoder]struct{})
	d.sinkMu.Unlock()
	for _, s := range remaining {
		if err := s.close(); err != nil {
			slog.Error("closing sink during stop", "target", s.Target(), "error", err)
		}
	}

	d.running = false
	d.captureCmd = nil
	d.readerDone = nil
	return waitErr
}

// StartEncoder attaches a new sink for the given kind. The capture must be
// running; the controller guarantees that ordering.
func (d *CaptureDevice) StartEncoder(kind EncoderKind, params EncoderParams) (Encoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil, fmt.Errorf("camera is not started")
	}

	var (
		s   *sinkEncoder
		err error
	)
	switch kind {
	case EncoderStream:
		s, err = newStreamSink(d.opts.FFmpegCommand, params)
	case EncoderRecord:
		s, err = newRecordSink(d.opts.FFmpegCommand, params)
	default:
		return nil, fmt.Errorf("unknown encoder kind: %s", kind)
	}
	if err != nil {
		return nil, err
	}

	d.attach(s)
	return s, nil
}

// StopEncoder detaches the sink and shuts its child process down.
func (d *CaptureDevice) StopEncoder(enc Encoder) error {
	s, ok := enc.(*sinkEncoder)
	if !ok || s == nil {
		return fmt.Errorf("foreign encoder handle")
	}
	d.detach(s)
	return s.close()
}

// Close stops the capture if needed and releases the device.
func (d *CaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.running {
		err = d.stopLocked()
	}
	d.opened = false
	return err
}

// isSignalExit reports whether the process died from the interrupt or kill
// we sent, which is the expected shutdown path for capture and ffmpeg
// children.
func isSignalExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt" || state == "signal: killed"
	}
	return false
}

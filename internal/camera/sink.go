package camera

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var errSinkClosed = errors.New("sink is closed")

// sinkEncoder is the Encoder handle returned by CaptureDevice. It is either
// backed by an ffmpeg child fed through stdin (stream relay, container mux)
// or by a plain file for raw H.264 output.
type sinkEncoder struct {
	kind   EncoderKind
	target string

	mu     sync.Mutex
	closed bool

	cmd   *exec.Cmd
	stdin io.WriteCloser

	file *os.File
}

func (s *sinkEncoder) Kind() EncoderKind { return s.kind }

func (s *sinkEncoder) Target() string { return s.target }

// newStreamSink starts an ffmpeg child that remuxes the H.264 feed into
// MPEG-TS over UDP.
func newStreamSink(ffmpeg string, params EncoderParams) (*sinkEncoder, error) {
	if params.Destination == "" {
		return nil, fmt.Errorf("stream sink requires a destination")
	}

	args := buildStreamSinkArgs(ffmpeg, params.Destination)
	cmd, stdin, err := startSinkProcess(args)
	if err != nil {
		return nil, fmt.Errorf("starting stream sink: %w", err)
	}

	slog.Info("stream sink started", "destination", params.Destination, "command", strings.Join(args, " "))
	return &sinkEncoder{kind: EncoderStream, target: params.Destination, cmd: cmd, stdin: stdin}, nil
}

func buildStreamSinkArgs(ffmpeg, destination string) []string {
	return []string{
		ffmpeg,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "-",
		"-c:v", "copy",
		"-f", "mpegts",
		"udp://" + destination,
	}
}

// newRecordSink opens the recording output: an ffmpeg mux child for
// container formats, a direct file for raw H.264.
func newRecordSink(ffmpeg string, params EncoderParams) (*sinkEncoder, error) {
	if params.Filename == "" {
		return nil, fmt.Errorf("record sink requires a filename")
	}

	if params.Container == "" {
		f, err := os.Create(params.Filename)
		if err != nil {
			return nil, fmt.Errorf("creating recording file: %w", err)
		}
		slog.Info("raw record sink started", "file", params.Filename)
		return &sinkEncoder{kind: EncoderRecord, target: params.Filename, file: f}, nil
	}

	args := buildRecordSinkArgs(ffmpeg, params)
	cmd, stdin, err := startSinkProcess(args)
	if err != nil {
		return nil, fmt.Errorf("starting record sink: %w", err)
	}

	slog.Info("record sink started", "file", params.Filename, "container", params.Container)
	return &sinkEncoder{kind: EncoderRecord, target: params.Filename, cmd: cmd, stdin: stdin}, nil
}

func buildRecordSinkArgs(ffmpeg string, params EncoderParams) []string {
	args := []string{
		ffmpeg,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "-",
		"-c:v", "copy",
	}
	if params.Container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-y", params.Filename)
}

func startSinkProcess(args []string) (*exec.Cmd, io.WriteCloser, error) {
	cmd := exec.Command(args[0], args[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", args[0], err)
	}

	go logProcessOutput(args[0], stderr)
	return cmd, stdin, nil
}

// logProcessOutput drains a child's stderr into debug logs.
func logProcessOutput(name string, r io.ReadCloser) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		slog.Debug("child process output", "process", name, "line", scanner.Text())
	}
	r.Close()
}

func (s *sinkEncoder) write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed
	}
	if s.file != nil {
		_, err := s.file.Write(chunk)
		return err
	}
	_, err := s.stdin.Write(chunk)
	return err
}

// close releases the sink. For ffmpeg-backed sinks the stdin close signals
// end of stream so the child can finalize its container; the wait is
// bounded with a kill fallback. Safe to call more than once.
func (s *sinkEncoder) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("closing recording file: %w", err)
		}
		return nil
	}

	s.stdin.Close()

	done := make(chan error, 1)
	go func() {
		done <- s.cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && !isSignalExit(err) {
			return fmt.Errorf("encoder process failed: %w", err)
		}
		return nil
	case <-time.After(5 * time.Second):
		slog.Warn("encoder did not exit in time, killing", "target", s.target)
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		<-done
		return nil
	}
}

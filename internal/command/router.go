package command

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/camwirelab/camwire/internal/session"
)

// Session is the controller surface the router drives. Implemented by
// service.Service in production and by stubs in tests.
type Session interface {
	StartStream(destination string, timeout time.Duration) error
	StopStream() error
	StartRecording(filename string, duration time.Duration) error
	StopRecording() error
	StopAll() error
	Status() session.Status
}

// Request is one parsed protocol line.
type Request struct {
	Command string
	Params  map[string]string
}

// Parse splits a protocol line into command and parameters. The command
// ends at the first colon; parameters are comma-separated key=value pairs
// split on the first equals sign, so values may contain both separators.
// Pairs without an equals sign are ignored. Parse never fails; unknown
// commands are rejected at dispatch.
func Parse(line string) Request {
	parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
	command := strings.ToLower(strings.TrimSpace(parts[0]))

	params := make(map[string]string)
	if len(parts) > 1 {
		for _, pair := range strings.Split(parts[1], ",") {
			if !strings.Contains(pair, "=") {
				continue
			}
			kv := strings.SplitN(pair, "=", 2)
			params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return Request{Command: command, Params: params}
}

// Router maps protocol requests onto session operations.
type Router struct {
	session              Session
	defaultStreamTimeout time.Duration
}

// NewRouter creates a Router. defaultStreamTimeout applies when a stream
// command carries no timeout parameter.
func NewRouter(s Session, defaultStreamTimeout time.Duration) *Router {
	if defaultStreamTimeout <= 0 {
		defaultStreamTimeout = 300 * time.Second
	}
	return &Router{session: s, defaultStreamTimeout: defaultStreamTimeout}
}

// Execute parses and dispatches one protocol line.
func (r *Router) Execute(line string) Response {
	return r.Dispatch(Parse(line))
}

// Dispatch validates the request and runs it. A panic anywhere below is
// turned into a failure response so one bad command cannot take the
// process down.
func (r *Router) Dispatch(req Request) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Command processing panicked", "command", req.Command, "panic", rec)
			resp = Failure(fmt.Sprintf("Error processing command: %v", rec))
		}
	}()

	specs, known := schemas[req.Command]
	if !known {
		return Failure(fmt.Sprintf("Unknown command: %s", req.Command))
	}
	if msg, ok := validateParams(specs, req.Params); !ok {
		return Failure(msg)
	}

	switch req.Command {
	case "stream":
		return r.handleStream(req.Params)
	case "record":
		return r.handleRecord(req.Params)
	case "stop":
		return r.handleStop(req.Params)
	default:
		return r.handleStatus()
	}
}

func (r *Router) handleStream(params map[string]string) Response {
	destination := params["destination"]

	timeout := r.defaultStreamTimeout
	if raw := params["timeout"]; raw != "" {
		secs, _ := strconv.Atoi(raw)
		timeout = time.Duration(secs) * time.Second
	}

	if err := r.session.StartStream(destination, timeout); err != nil {
		slog.Error("Failed to start stream", "destination", destination, "error", err)
		return Failure("Streaming failed")
	}
	return Success("Streaming started", nil)
}

func (r *Router) handleRecord(params map[string]string) Response {
	filename := params["filename"]
	secs, _ := strconv.Atoi(params["duration"])
	duration := time.Duration(secs) * time.Second

	if err := r.session.StartRecording(filename, duration); err != nil {
		slog.Error("Failed to start recording", "filename", filename, "error", err)
		return Failure("Recording failed")
	}
	return Success("Recording started", nil)
}

func (r *Router) handleStop(params map[string]string) Response {
	target := strings.ToLower(params["target"])
	if target == "" {
		target = "all"
	}

	var err error
	var component string
	switch target {
	case "stream":
		err = r.session.StopStream()
		component = "stream"
	case "record":
		err = r.session.StopRecording()
		component = "recording"
	case "all":
		err = r.session.StopAll()
		component = "all components"
	default:
		return Failure(fmt.Sprintf("Invalid stop target: %s", target))
	}

	if err != nil {
		slog.Error("Failed to stop", "target", target, "error", err)
		return Failure("Failed to stop " + component)
	}
	return Success("Stopped "+component, nil)
}

func (r *Router) handleStatus() Response {
	return Success("Status retrieved", r.session.Status())
}

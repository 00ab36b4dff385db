package camera

import (
	"fmt"
	"sync"
)

// FakeDevice is an in-memory Device implementation for tests. Failures can
// be injected per call site, and every state transition is appended to an
// event log so tests can assert call ordering.
type FakeDevice struct {
	mu sync.Mutex

	opened  bool
	running bool
	width   int
	height  int
	format  string

	encoders map[*FakeEncoder]struct{}

	failOpen         bool
	failConfigure    bool
	failStart        bool
	failStop         bool
	failStartEncoder bool
	failStopEncoder  bool

	starts        int
	stops         int
	encoderStarts int
	encoderStops  int

	events []string
}

// FakeEncoder is the encoder handle handed out by FakeDevice.
type FakeEncoder struct {
	kind    EncoderKind
	target  string
	params  EncoderParams
	stopped bool
}

// Kind reports whether the encoder streams or records.
func (e *FakeEncoder) Kind() EncoderKind { return e.kind }

// Target returns the destination or filename the encoder was started with.
func (e *FakeEncoder) Target() string { return e.target }

// Params returns the parameters the encoder was started with.
func (e *FakeEncoder) Params() EncoderParams { return e.params }

// NewFakeDevice returns a FakeDevice with no failures armed.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		encoders: make(map[*FakeEncoder]struct{}),
	}
}

// SetFailOpen arms or disarms an Open failure.
func (d *FakeDevice) SetFailOpen(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOpen = fail
}

// SetFailConfigure arms or disarms a Configure failure.
func (d *FakeDevice) SetFailConfigure(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failConfigure = fail
}

// SetFailStart arms or disarms a Start failure.
func (d *FakeDevice) SetFailStart(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStart = fail
}

// SetFailStop arms or disarms a Stop failure.
func (d *FakeDevice) SetFailStop(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStop = fail
}

// SetFailStartEncoder arms or disarms a StartEncoder failure.
func (d *FakeDevice) SetFailStartEncoder(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStartEncoder = fail
}

// SetFailStopEncoder arms or disarms a StopEncoder failure.
func (d *FakeDevice) SetFailStopEncoder(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStopEncoder = fail
}

func (d *FakeDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failOpen {
		d.events = append(d.events, "open-failed")
		return fmt.Errorf("fake device: open failed")
	}
	d.opened = true
	d.events = append(d.events, "open")
	return nil
}

func (d *FakeDevice) Configure(width, height int, format string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failConfigure {
		return fmt.Errorf("fake device: configure failed")
	}
	d.width = width
	d.height = height
	d.format = format
	d.events = append(d.events, fmt.Sprintf("configure %dx%d %s", width, height, format))
	return nil
}

func (d *FakeDevice) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *FakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	if d.failStart {
		d.events = append(d.events, "start-failed")
		return fmt.Errorf("fake device: start failed")
	}
	d.running = true
	d.starts++
	d.events = append(d.events, "start")
	return nil
}

func (d *FakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	if d.failStop {
		d.events = append(d.events, "stop-failed")
		return fmt.Errorf("fake device: stop failed")
	}
	d.running = false
	d.stops++
	d.events = append(d.events, "stop")
	return nil
}

func (d *FakeDevice) StartEncoder(kind EncoderKind, params EncoderParams) (Encoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failStartEncoder {
		d.events = append(d.events, fmt.Sprintf("start-encoder-failed %s", kind))
		return nil, fmt.Errorf("fake device: start encoder failed")
	}
	if !d.running {
		return nil, fmt.Errorf("fake device: camera not running")
	}

	target := params.Destination
	if kind == EncoderRecord {
		target = params.Filename
	}
	enc := &FakeEncoder{kind: kind, target: target, params: params}
	d.encoders[enc] = struct{}{}
	d.encoderStarts++
	d.events = append(d.events, fmt.Sprintf("start-encoder %s %s", kind, target))
	return enc, nil
}

func (d *FakeDevice) StopEncoder(enc Encoder) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failStopEncoder {
		d.events = append(d.events, "stop-encoder-failed")
		return fmt.Errorf("fake device: stop encoder failed")
	}

	fe, ok := enc.(*FakeEncoder)
	if !ok {
		return fmt.Errorf("fake device: unknown encoder type %T", enc)
	}
	delete(d.encoders, fe)
	fe.stopped = true
	d.encoderStops++
	d.events = append(d.events, fmt.Sprintf("stop-encoder %s %s", fe.kind, fe.target))
	return nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running = false
	d.opened = false
	d.events = append(d.events, "close")
	return nil
}

// Opened reports whether Open has succeeded.
func (d *FakeDevice) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Geometry returns the configured width, height and pixel format.
func (d *FakeDevice) Geometry() (int, int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height, d.format
}

// ActiveEncoders returns the number of encoders currently attached.
func (d *FakeDevice) ActiveEncoders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.encoders)
}

// EncoderTargets returns the targets of the currently attached encoders.
func (d *FakeDevice) EncoderTargets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	targets := make([]string, 0, len(d.encoders))
	for enc := range d.encoders {
		targets = append(targets, enc.target)
	}
	return targets
}

// Starts returns how many times the camera transitioned to running.
func (d *FakeDevice) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Stops returns how many times the camera transitioned to stopped.
func (d *FakeDevice) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// EncoderStarts returns how many encoders were started.
func (d *FakeDevice) EncoderStarts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.encoderStarts
}

// EncoderStops returns how many encoders were stopped.
func (d *FakeDevice) EncoderStops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.encoderStops
}

// Events returns a copy of the recorded event log.
func (d *FakeDevice) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := make([]string, len(d.events))
	copy(events, d.events)
	return events
}

// EventIndex returns the position of the first event equal to want, or -1.
func (d *FakeDevice) EventIndex(want string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, ev := range d.events {
		if ev == want {
			return i
		}
	}
	return -1
}

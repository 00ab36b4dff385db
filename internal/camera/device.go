package camera

// EncoderKind selects which encode path an encoder serves
type EncoderKind string

const (
	EncoderStream EncoderKind = "stream"
	EncoderRecord EncoderKind = "record"
)

// EncoderParams configures a new encoder. Stream encoders use Destination,
// RepeatHeaders and IntraPeriod; record encoders use Filename, Container and
// Bitrate. Unused fields are ignored by the device.
type EncoderParams struct {
	// Stream: UDP endpoint in host:port form
	Destination string

	// Record: output path and container ("mp4", "mkv", "" for raw H.264)
	Filename  string
	Container string

	Bitrate       int
	IntraPeriod   int
	RepeatHeaders bool
}

// Encoder is an opaque handle to an active encode path bound to one sink.
type Encoder interface {
	Kind() EncoderKind

	// Target returns the destination endpoint for stream encoders and the
	// output filename for record encoders.
	Target() string
}

// Device is the abstract camera consumed by the session controller. Start
// and Stop are idempotent-safe when the device is already in the target
// state. Implementations must be safe for use by the controller's timer
// callbacks, which run on separate goroutines.
type Device interface {
	Open() error
	Configure(width, height int, format string) error
	IsRunning() bool
	Start() error
	Stop() error
	StartEncoder(kind EncoderKind, params EncoderParams) (Encoder, error)
	StopEncoder(enc Encoder) error
	Close() error
}

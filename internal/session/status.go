package session

// StreamStatus describes the streaming side of the session. Destination
// and TimeoutRemaining are nil while no stream is active so they render
// as JSON null.
type StreamStatus struct {
	Active           bool    `json:"active"`
	Destination      *string `json:"destination"`
	TimeoutRemaining *int    `json:"timeout_remaining"`
}

// RecordStatus describes the recording side of the session.
type RecordStatus struct {
	Active bool `json:"active"`
}

// Status is a point-in-time snapshot of the whole session.
type Status struct {
	Initialized   bool         `json:"initialized"`
	CameraRunning bool         `json:"camera_running"`
	Streaming     StreamStatus `json:"streaming"`
	Recording     RecordStatus `json:"recording"`
	Resolution    string       `json:"resolution"`
	Format        string       `json:"format"`
}

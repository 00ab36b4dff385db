package session

import "errors"

// Error categories for session operations. Callers classify failures with
// errors.Is against these sentinels; the wrapped message carries the cause.
var (
	// ErrInitialization marks failures while opening or configuring the camera.
	ErrInitialization = errors.New("camera initialization error")

	// ErrDevice marks camera or capture process failures after initialization.
	ErrDevice = errors.New("camera device error")

	// ErrValidation marks operations rejected because of bad parameters.
	ErrValidation = errors.New("validation error")

	// ErrConflict marks operations rejected because of current session state,
	// such as starting a recording while one is already running.
	ErrConflict = errors.New("session conflict")
)

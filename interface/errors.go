package iface

import "errors"

var (
	// ErrInvalidInput marks a malformed frame or clip. It is the only error
	// that escapes the manager's Analyze call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrModelUnavailable means no backend is loaded for an adapter. The
	// manager treats the adapter as disabled for the rest of the run.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInference is a failure of a loaded model on a specific input.
	ErrInference = errors.New("inference failed")
)

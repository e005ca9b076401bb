package workcell

import "errors"

var (
	// ErrInvalidSpeed is returned when a speed multiplier outside [0.1, 5.0] is requested.
	ErrInvalidSpeed = errors.New("speed multiplier must be between 0.1 and 5.0")

	// ErrInvalidTimeout is returned when a non-positive classification timeout is requested.
	ErrInvalidTimeout = errors.New("classification timeout must be positive")

	// ErrInvalidDuration is returned when a stage duration in the configuration is not positive.
	ErrInvalidDuration = errors.New("stage duration must be positive")

	// ErrAlreadyRunning is returned when Start is called on a running orchestrator.
	ErrAlreadyRunning = errors.New("orchestrator already running")

	// ErrNotRunning is returned when a command requires a running orchestrator.
	ErrNotRunning = errors.New("orchestrator not running")

	// ErrStageOrder is returned when a piece is asked to leave its lifecycle order.
	ErrStageOrder = errors.New("piece stage transition out of order")

	// ErrPieceNotFound is returned when a piece ID is not present in the registry.
	ErrPieceNotFound = errors.New("piece not found in registry")
)

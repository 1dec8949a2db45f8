package relay

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the launcher.
var (
	// ErrInvalidConfig is returned when a relay configuration fails validation.
	ErrInvalidConfig = errors.New("invalid relay config")

	// ErrNoStrategy is returned when every start strategy failed to spawn the relay.
	ErrNoStrategy = errors.New("no start strategy could launch the relay")

	// ErrBinaryNotFound is returned by a strategy whose executable is missing.
	ErrBinaryNotFound = errors.New("relay binary not found")

	// ErrProbeFailed is returned when the relay was spawned but did not pass
	// the liveness probe.
	ErrProbeFailed = errors.New("relay failed liveness probe")

	// ErrExitedEarly is returned when the relay exits during the settle delay.
	ErrExitedEarly = errors.New("relay exited before it could be probed")
)

// ProbeError is returned by Start when the spawned relay fails its liveness
// probe. Err is nil when the probe completed but found nothing listening.
type ProbeError struct {
	Kind string
	Port int
	Err  error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s probe on port %d: %v", ErrProbeFailed, e.Kind, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: relay not responding on port %d", ErrProbeFailed, e.Port)
}

// Unwrap returns the underlying probe error.
func (e *ProbeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProbeFailed) hold for every ProbeError.
func (e *ProbeError) Is(target error) bool { return target == ErrProbeFailed }

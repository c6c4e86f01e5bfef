package detector

// Detector is a strategy that determines whether a supervised target is
// currently running. Implementations may check a token file written by the
// worker, a bare PID number, or a custom probe command. Implementations
// must be safe for concurrent use.
//
// Alive returns an error only for transient query failures (unreadable
// process table, permission problems). Callers should treat an error as
// "unknown" and skip the current decision instead of assuming the target
// is dead.
type Detector interface {
	// Alive returns true if the target is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

package builder

import (
	"errors"
	"fmt"
)

// Sentinel errors enabling structured classification without string parsing upstream.
var (
	// ErrBuilderNotFound indicates the builder executable is not on PATH.
	ErrBuilderNotFound = errors.New("documentation builder not found")
)

// BuildError wraps a failed builder invocation together with its captured output.
type BuildError struct {
	Target string
	Binary string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s target %q failed: %v: %s", e.Binary, e.Target, e.Err, e.Output)
	}
	return fmt.Sprintf("%s target %q failed: %v", e.Binary, e.Target, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

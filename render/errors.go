package render

import (
	"errors"
	"fmt"
)

// ErrRenderEngine is returned (wrapped) for every failure of the external
// engine.
var ErrRenderEngine = errors.New("render engine failure")

// FailureKind classifies an engine failure.
type FailureKind int

const (
	// FailureExit: the engine ran and exited non-zero.
	FailureExit FailureKind = iota + 1
	// FailureTimeout: the render deadline passed.
	FailureTimeout
	// FailureEmptyOutput: the engine exited cleanly without writing output.
	FailureEmptyOutput
	// FailureLaunch: the engine could not be started.
	FailureLaunch
)

func (k FailureKind) String() string {
	switch k {
	case FailureExit:
		return "exit"
	case FailureTimeout:
		return "timeout"
	case FailureEmptyOutput:
		return "empty_output"
	case FailureLaunch:
		return "launch"
	default:
		return "unknown"
	}
}

// maxDiagnostic bounds the engine output kept on an error.
const maxDiagnostic = 4096

// EngineError carries the engine's diagnostic output.
type EngineError struct {
	Kind       FailureKind
	Output     OutputKind
	Diagnostic string
	Err        error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s (%s, %s)", ErrRenderEngine, e.Kind, e.Output)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *EngineError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRenderEngine}
	}
	return []error{ErrRenderEngine, e.Err}
}

// Temporary reports whether retrying the same render could succeed.
func (e *EngineError) Temporary() bool { return e.Kind == FailureTimeout }

// IsTimeout reports whether err is an engine timeout.
func IsTimeout(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Kind == FailureTimeout
}

func truncate(s string) string {
	if len(s) <= maxDiagnostic {
		return s
	}
	return s[:maxDiagnostic] + "..."
}

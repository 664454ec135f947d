package core

import "fmt"

// InputError indicates the payload content itself is unusable (corrupt file,
// wrong feature dimensionality, missing required columns). Non-retryable:
// the task wrapper converts it into a FAILURE state with the reason.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return e.Reason
}

func InputErrorf(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// ResourceError indicates a transient capacity failure (accelerator memory,
// weight loading under pressure). Retryable up to a bounded attempt count.
type ResourceError struct {
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource exhaustion: %v", e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

func ResourceErrorf(format string, args ...any) error {
	return &ResourceError{Err: fmt.Errorf(format, args...)}
}

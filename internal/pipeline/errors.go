package pipeline

import "fmt"

// UsageError marks an invalid invocation: unknown vendor or phase
// names, a non-contiguous phase selection, bad flags. The CLI maps it
// to exit code 2 before any side effect happens.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

func usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

package ir

import "fmt"

// Error indicates a malformed or unsupported stored IR: an unknown
// version or a meta file that fails to parse. Checking stored bytes
// against their content hash is done by Token Memory, not reported here.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("ir: %s", e.Reason) }

func newError(format string, args ...interface{}) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

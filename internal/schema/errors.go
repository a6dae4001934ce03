package schema

import "fmt"

// Error indicates misuse of the schema registry API (e.g. registering a
// non-object value).
type Error struct {
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("schema: %s", e.Reason) }

func newSchemaError(format string, args ...interface{}) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

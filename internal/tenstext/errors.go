package tenstext

import "fmt"

// FormatError reports a grammar violation in a TENS-Text document: an
// unknown directive, a malformed field-def, or an array-valued field
// whose elements are not scalars (this codec represents arrays only of
// scalar values; the binary codec is the one that supports nested object
// elements).
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return fmt.Sprintf("tenstext: %s", e.Reason) }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

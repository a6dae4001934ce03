package tens

import "fmt"

// FormatError reports a structural problem with a TENS binary payload:
// magic mismatch, unsupported version, truncation, or (during encode) an
// input the codec cannot represent.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return fmt.Sprintf("tens: %s", e.Reason) }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

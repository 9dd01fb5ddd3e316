package prompttrace

import (
	"fmt"
)

// maxErrorValueLen caps the prompt/instruction text attached to error values.
// Full bodies stay out of logs; the stated total length keeps the error
// diagnosable.
const maxErrorValueLen = 200

// TruncateForLog shortens s for inclusion in error values and log records,
// appending the total length when truncated.
func TruncateForLog(s string) string {
	if len(s) <= maxErrorValueLen {
		return s
	}
	return fmt.Sprintf("%s...(%d chars total)", s[:maxErrorValueLen], len(s))
}

// RedactTools summarizes structured tool definitions for error values
// instead of echoing them verbatim.
func RedactTools(count int) string {
	return fmt.Sprintf("[%d tool definitions redacted]", count)
}

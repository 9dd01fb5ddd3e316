package prompttrace_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/prompttrace"
)

func TestTruncateForLog(t *testing.T) {
	short := "a short prompt"
	gt.Equal(t, prompttrace.TruncateForLog(short), short)

	long := strings.Repeat("x", 500)
	truncated := prompttrace.TruncateForLog(long)
	gt.S(t, truncated).Contains("...(500 chars total)")
	gt.True(t, len(truncated) < len(long))
}

func TestRedactTools(t *testing.T) {
	gt.Equal(t, prompttrace.RedactTools(3), "[3 tool definitions redacted]")
}

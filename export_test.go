package prompttrace

import "time"

// SetTimeFunc overrides the clock used by Advance. Tests must restore with
// RestoreTimeFunc.
func SetTimeFunc(f func() time.Time) {
	timeNow = f
}

func RestoreTimeFunc() {
	timeNow = time.Now
}

var ParseToolArguments = parseToolArguments

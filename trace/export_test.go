package trace

import "time"

// SetNowFunc overrides the clock used for timestamps and durations. Tests
// must restore with RestoreNowFunc.
func SetNowFunc(f func() time.Time) {
	now = f
}

func RestoreNowFunc() {
	now = time.Now
}

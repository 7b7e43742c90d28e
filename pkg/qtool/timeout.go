package qtool

import "time"

const (
	MinTimeoutSeconds     = 1
	MaxTimeoutSeconds     = 3600
	DefaultTimeoutSeconds = 300
)

// ClampTimeout maps a requested timeout in seconds onto [1, 3600]. Zero
// means the caller did not ask for one and def applies.
func ClampTimeout(seconds int, def time.Duration) time.Duration {
	if seconds == 0 {
		seconds = DefaultTimeoutSeconds
		if def > 0 {
			seconds = int(def / time.Second)
		}
	}
	seconds = max(MinTimeoutSeconds, min(seconds, MaxTimeoutSeconds))
	return time.Duration(seconds) * time.Second
}

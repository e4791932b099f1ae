package guard

import "time"

// Delay computes the exponential backoff before retry attempt n (1-based).
// Pure function of the attempt count so retry behavior is bounded and
// testable; attempt 1 waits base, each further attempt doubles, capped at
// ceiling.
func Delay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

package strategy

import (
	"math"
	"time"
)

// Backoff defaults shared by the retrying strategies.
const (
	DefaultBackoffBase       = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffCap        = 30 * time.Second
)

// Backoff computes the delay for the given attempt:
// min(base * multiplier^attempt, cap), non-decreasing in attempt.
func Backoff(base time.Duration, multiplier float64, cap time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 0 {
		return 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(base) * math.Pow(multiplier, float64(attempt))
	if d > float64(cap) {
		return cap
	}
	return time.Duration(d)
}

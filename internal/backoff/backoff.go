// Package backoff implements the exponential-backoff-with-jitter
// schedules used by the archive client and the work queue.
package backoff

import (
	"math/rand"
	"time"
)

// Policy is base*2^(attempt-1), clamped to [0, cap], with optional jitter.
type Policy struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
	Jitter float64 // fraction, e.g. 0.25 for ±25%
}

// Archive is the archive client's retry schedule: initial 1s, factor
// 2, jitter ±25%, and a 5-minute cap per delay that the client's
// 5-attempt ceiling keeps it from reaching.
func Archive() Policy {
	return Policy{Base: 1 * time.Second, Factor: 2, Cap: 5 * time.Minute, Jitter: 0.25}
}

// Queue is the work queue's retry schedule: base 300s, cap 1h, no
// jitter (the original source does not jitter its queue retries).
func Queue() Policy {
	return Policy{Base: 300 * time.Second, Factor: 2, Cap: 1 * time.Hour, Jitter: 0}
}

// Delay returns the delay before the given attempt number (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	delay := time.Duration(d)
	if p.Cap > 0 && delay > p.Cap {
		delay = p.Cap
	}
	if p.Jitter > 0 {
		delta := float64(delay) * p.Jitter
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*delta)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

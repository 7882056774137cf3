package sync

import (
	"time"
)

const (
	backoffBase = time.Second
	backoffCap  = 60 * time.Second
)

// backoffDelay returns the wait before the next automatic retry given the
// number of attempts already made: 1s, 2s, 4s, ... capped at 60s.
func backoffDelay(priorAttempts int) time.Duration {
	if priorAttempts < 0 {
		priorAttempts = 0
	}
	d := backoffBase
	for i := 0; i < priorAttempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

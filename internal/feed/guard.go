package feed

import (
	"errors"
	"time"
)

// ErrGuardTimeout is returned when the mutation guard cannot be acquired
// within its bounded wait. Callers treat it as a transient failure.
var ErrGuardTimeout = errors.New("timed out waiting for feed mutation guard")

// DefaultGuardWait bounds how long a mutation waits for exclusive access.
const DefaultGuardWait = 3 * time.Second

// guard serializes feed mutations with a bounded wait. It replaces the
// advisory file locking the previous generation of this system relied on.
type guard struct {
	slot chan struct{}
	wait time.Duration
}

func newGuard(wait time.Duration) *guard {
	if wait <= 0 {
		wait = DefaultGuardWait
	}
	return &guard{
		slot: make(chan struct{}, 1),
		wait: wait,
	}
}

func (g *guard) acquire() error {
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-time.After(g.wait):
		return ErrGuardTimeout
	}
}

func (g *guard) release() {
	<-g.slot
}

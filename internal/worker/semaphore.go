package worker

import "context"

// Semaphore bounds the number of concurrent engine subprocesses across a
// process. A nil *Semaphore means unbounded and is always safe to use.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore with n slots. n <= 0 returns nil
// (unbounded).
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		return nil
	}
	return &Semaphore{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done. Blocked callers
// never deadlock: cancellation always releases them.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s == nil {
		return ctx.Err()
	}
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Callers must pair every successful Acquire with
// exactly one Release, typically via defer, so the bound holds even when
// the analysis is canceled or times out.
func (s *Semaphore) Release() {
	if s == nil {
		return
	}
	<-s.slots
}

package semaphore

import (
	"context"
	"fmt"
)

// Semaphore bounds the number of concurrently held slots.
type Semaphore struct {
	slots chan struct{}
}

func New(size int) *Semaphore {
	if size < 1 {
		size = 1
	}
	return &Semaphore{
		slots: make(chan struct{}, size),
	}
}

// Acquire blocks until a slot frees up or ctx is done. A done ctx always
// wins, even when a slot is free.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("semaphore acquire aborted: %w", err)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("semaphore acquire aborted: %w", ctx.Err())
	case s.slots <- struct{}{}:
		return nil
	}
}

// TryAcquire takes a slot only if one is free right now.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
		panic("semaphore: release without acquire")
	}
}

func (s *Semaphore) InUse() int {
	return len(s.slots)
}

func (s *Semaphore) Size() int {
	return cap(s.slots)
}

package session

import "context"

// pool bounds the number of submissions compiling or executing at once.
// Acquire blocks until a slot frees or the context is cancelled, so one
// stuck submission cannot starve cancellation of the ones queued behind it.
type pool struct {
	slots chan struct{}
}

func newPool(size int) *pool {
	if size <= 0 {
		size = 4
	}
	return &pool{slots: make(chan struct{}, size)}
}

func (p *pool) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pool) release() {
	<-p.slots
}

package service

import (
	"context"
	"sync"
)

// Background runs fire-and-forget work under one cancellable context so
// shutdown can stop it and wait for it.
type Background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBackground() *Background {
	ctx, cancel := context.WithCancel(context.Background())
	return &Background{ctx: ctx, cancel: cancel}
}

// Go runs fn in a new goroutine. After Close it does nothing.
func (b *Background) Go(fn func(ctx context.Context)) {
	if b.ctx.Err() != nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

// Wait blocks until every started func has returned.
func (b *Background) Wait() {
	b.wg.Wait()
}

// Close cancels running work and waits for it, or until ctx is done.
func (b *Background) Close(ctx context.Context) error {
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package requests

import (
	"context"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var ErrLoopStopped = errors.New("request loop stopped")

// Loop runs submitted functions one at a time on a single goroutine. All
// Orchestrator state is read and written from it.
type Loop struct {
	pipeline chan func()
	stopped  chan struct{}
}

func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 1024
	}
	return &Loop{
		pipeline: make(chan func(), size),
		stopped:  make(chan struct{}),
	}
}

func (in *Loop) Start(ctx context.Context) {
	go in.start(ctx)
}

func (in *Loop) start(ctx context.Context) {
	log.Info("Request loop running...")
	defer log.Info("Request loop stopped...")
	defer close(in.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-in.pipeline:
			fn()
		}
	}
}

// Stopped is closed once the loop has returned.
func (in *Loop) Stopped() <-chan struct{} {
	return in.stopped
}

// Enqueue submits fn without waiting for it to run.
func (in *Loop) Enqueue(fn func()) {
	select {
	case in.pipeline <- fn:
	case <-in.stopped:
	}
}

// Do runs fn on the loop and waits for it to finish.
func (in *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case in.pipeline <- func() { fn(); close(done) }:
	case <-in.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-in.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

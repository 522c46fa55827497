package concurrent

// Limiter bounds how many workers run at the same time.
type Limiter interface {
	// Add blocks until a working credential is available.
	Add()
	// Done releases one working credential.
	Done()
}

type limiter struct {
	working chan struct{}
}

func NewLimiter(maxConcurrency int) Limiter {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &limiter{
		working: make(chan struct{}, maxConcurrency),
	}
}

func (in *limiter) Add() {
	in.working <- struct{}{}
}

func (in *limiter) Done() {
	<-in.working
}

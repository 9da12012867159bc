package core

import (
	"sync"
	"time"
)

// Worker runs f after d, then again after the duration f returns.
// Stops when f returns zero or Stop is called.
type Worker struct {
	timer *time.Timer
	done  chan struct{}
	exit  chan struct{}
	once  sync.Once
}

// NewWorker run f after d
func NewWorker(d time.Duration, f func() time.Duration) *Worker {
	w := &Worker{
		timer: time.NewTimer(d),
		done:  make(chan struct{}),
		exit:  make(chan struct{}),
	}

	go func() {
		defer close(w.exit)
		defer w.timer.Stop()

		for {
			select {
			case <-w.timer.C:
			case <-w.done:
				return
			}

			if d = f(); d <= 0 {
				return
			}

			select {
			case <-w.done:
				return
			default:
				w.timer.Reset(d)
			}
		}
	}()

	return w
}

// Stop doesn't interrupt running f, use Done to wait for it.
func (w *Worker) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		close(w.done)
	})
}

// Done closed after worker goroutine exits
func (w *Worker) Done() <-chan struct{} {
	return w.exit
}

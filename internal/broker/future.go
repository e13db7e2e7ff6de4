package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Future is a single-assignment result cell for one scrape request.
// Any number of goroutines may wait on it.
type Future struct {
	done    chan struct{}
	once    sync.Once
	outcome models.SearchOutcome
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(outcome models.SearchOutcome, err error) *Future {
	f := newFuture()
	f.resolve(outcome, err)
	return f
}

// resolve fulfils the future; later calls are ignored
func (f *Future) resolve(outcome models.SearchOutcome, err error) {
	f.once.Do(func() {
		f.outcome = outcome
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends.
// A context that ends first yields models.ErrTimeout.
func (f *Future) Wait(ctx context.Context) (models.SearchOutcome, error) {
	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		return models.SearchOutcome{}, fmt.Errorf("waiting for scrape: %w: %v", models.ErrTimeout, ctx.Err())
	}
}

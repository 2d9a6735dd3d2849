package taskgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PanicError wraps a value recovered from a panicking item.
type PanicError struct {
	Item  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("item %s panicked: %v", e.Item, e.Value)
}

var errNilItem = errors.New("taskgroup: item has no run function")

// progress counts finished items of one run. Reports are serialized so
// the callback observes a strictly increasing sequence ending at 1.0.
type progress struct {
	done  atomic.Int64
	total int
	mu    sync.Mutex
	fn    ProgressFunc
}

func newProgress(total int, fn ProgressFunc) *progress {
	return &progress{total: total, fn: fn}
}

func (p *progress) step() {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.done.Add(1)
	if p.fn != nil && p.total > 0 {
		p.fn(float64(n) / float64(p.total))
	}
}

func (p *progress) completed() int64 { return p.done.Load() }

type run struct {
	ctx      context.Context
	log      *zap.Logger
	progress *progress
}

func invoke(ctx context.Context, it Item) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Item: it.Name, Value: v}
		}
	}()
	if it.Run == nil {
		return errNilItem
	}
	return it.Run(ctx)
}

// canceled reports whether err is the run context giving up rather than
// the item failing on its own.
func (r *run) canceled(err error) bool {
	if r.ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *run) logFailure(it Item, err error) {
	r.log.Warn("group item failed",
		zap.String("item", it.Name),
		zap.String("error_type", fmt.Sprintf("%T", err)),
		zap.Error(err),
	)
}

// attempt runs a sequential item. Failures are logged and swallowed;
// cancellation is returned.
func (r *run) attempt(it Item) error {
	err := invoke(r.ctx, it)
	if err == nil {
		return nil
	}
	if r.canceled(err) {
		return err
	}
	r.logFailure(it, err)
	return nil
}

// isolated runs a parallel item. Every failure is logged, including
// cancellation, since parallel items cannot abort their siblings.
func (r *run) isolated(it Item) {
	if err := invoke(r.ctx, it); err != nil {
		r.logFailure(it, err)
	}
}

func (r *run) sequential(items []Item) error {
	for _, it := range items {
		if err := r.ctx.Err(); err != nil {
			// The stop itself occupies the slot of the item it skipped.
			r.progress.step()
			return err
		}
		err := r.attempt(it)
		r.progress.step()
		if err != nil {
			return err
		}
	}
	return nil
}

// parallel launches every item at once and waits for all of them. The
// context is handed to items but not checked here.
func (r *run) parallel(items []Item) {
	var g errgroup.Group
	for _, it := range items {
		it := it
		g.Go(func() error {
			r.isolated(it)
			r.progress.step()
			return nil
		})
	}
	_ = g.Wait()
}

// hybrid awaits sequential item i, then launches parallel item i, for every
// index of the longer bucket. Launched items are always drained before
// returning, even when the run is canceled.
func (r *run) hybrid(seq, par []Item) error {
	var g errgroup.Group
	n := max(len(seq), len(par))
	for i := 0; i < n; i++ {
		if err := r.ctx.Err(); err != nil {
			_ = g.Wait()
			return err
		}
		if i < len(seq) {
			err := r.attempt(seq[i])
			r.progress.step()
			if err != nil {
				_ = g.Wait()
				return err
			}
		}
		if i < len(par) {
			it := par[i]
			g.Go(func() error {
				r.isolated(it)
				r.progress.step()
				return nil
			})
		}
	}
	return r.join(&g)
}

// join waits for the launched parallel items. Cancellation that arrives
// while items are still pending is reported once they have drained.
func (r *run) join(g *errgroup.Group) error {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	default:
	}
	select {
	case <-done:
		return nil
	case <-r.ctx.Done():
		<-done
		return r.ctx.Err()
	}
}

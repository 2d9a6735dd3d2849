// Package taskgroup runs named groups of deferred operations (boot, feature
// initialization, shutdown) with sequential, parallel or hybrid semantics.
//
// Item failures are isolated: they are logged and counted as done so sibling
// items keep running. Cancellation of the run context is the only condition
// returned to the caller of RunGroup.
package taskgroup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine owns the group registry.
type Engine struct {
	mu         sync.Mutex // guards groups and persistent
	groups     map[string]*group
	persistent map[string]struct{}
	log        *zap.Logger
}

func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		groups:     make(map[string]*group),
		persistent: make(map[string]struct{}),
		log:        log,
	}
}

// CreateGroup allocates an empty group. A key that already exists is left
// untouched and the call is logged, as is an unknown kind.
func (e *Engine) CreateGroup(kind Kind, key string, persistent bool) {
	if !kind.valid() {
		e.log.Error("create: unknown group kind", zap.String("group", key), zap.Stringer("kind", kind))
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.groups[key]; ok {
		e.log.Warn("group already exists", zap.String("group", key), zap.Stringer("kind", kind))
		return
	}
	e.groups[key] = &group{kind: kind}
	if persistent {
		e.persistent[key] = struct{}{}
	}
}

// AddItem appends item to the sequential or parallel bucket of the group.
// The bucket is chosen by the flag alone; the group's kind decides which
// buckets a run executes.
func (e *Engine) AddItem(key string, item Item, sequential bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[key]
	if !ok {
		e.log.Error("add item: group not found", zap.String("group", key), zap.String("item", item.Name))
		return
	}
	if sequential {
		g.sequential = append(g.sequential, item)
	} else {
		g.parallel = append(g.parallel, item)
	}
}

// RemoveGroup drops the group and its persistence flag. Runs already in
// flight keep their snapshot.
func (e *Engine) RemoveGroup(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.groups, key)
	delete(e.persistent, key)
}

// Has reports whether key is registered.
func (e *Engine) Has(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.groups[key]
	return ok
}

// Info returns the bucket sizes and flags of a registered group.
func (e *Engine) Info(key string) (Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[key]
	if !ok {
		return Info{}, false
	}
	_, persistent := e.persistent[key]
	return Info{
		Key:        key,
		Kind:       g.kind,
		Sequential: len(g.sequential),
		Parallel:   len(g.parallel),
		Persistent: persistent,
	}, true
}

// RunGroup executes a snapshot of the group using its kind's strategy and
// blocks until every started item has finished. Unless the group is
// persistent it is removed from the registry afterwards, whatever the outcome.
//
// A missing key is logged and returns nil. The returned error is non-nil
// only when ctx was canceled; it wraps ctx.Err().
func (e *Engine) RunGroup(ctx context.Context, key string, onProgress ProgressFunc) error {
	e.mu.Lock()
	g, ok := e.groups[key]
	if !ok {
		e.mu.Unlock()
		e.log.Error("run: group not found", zap.String("group", key))
		return nil
	}
	seq, par := g.snapshot()
	e.mu.Unlock()

	r := &run{
		ctx: ctx,
		log: e.log.With(
			zap.String("group", key),
			zap.Stringer("kind", g.kind),
			zap.String("run_id", uuid.NewString()),
		),
	}

	start := time.Now()
	var err error
	switch g.kind {
	case Sequential:
		if len(par) > 0 {
			r.log.Debug("parallel items ignored by sequential group", zap.Int("parallel", len(par)))
		}
		r.progress = newProgress(len(seq), onProgress)
		err = r.sequential(seq)
	case Parallel:
		if len(seq) > 0 {
			r.log.Debug("sequential items ignored by parallel group", zap.Int("sequential", len(seq)))
		}
		r.progress = newProgress(len(par), onProgress)
		r.parallel(par)
	case Hybrid:
		r.progress = newProgress(len(seq)+len(par), onProgress)
		err = r.hybrid(seq, par)
	default:
		r.log.Error("run: unsupported group kind")
		r.progress = newProgress(0, onProgress)
	}

	e.finish(key, g)

	if err != nil {
		r.log.Info("group run canceled",
			zap.Int64("completed", r.progress.completed()),
			zap.Int("total", r.progress.total),
			zap.Error(err),
		)
		return fmt.Errorf("run group %s: %w", key, err)
	}
	r.log.Debug("group run finished",
		zap.Int("total", r.progress.total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// finish deletes a non-persistent group, but only if key still maps to the
// group that was run: a RemoveGroup + CreateGroup during the run must not
// lose the new group.
func (e *Engine) finish(key string, g *group) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.persistent[key]; ok {
		return
	}
	if e.groups[key] == g {
		delete(e.groups, key)
	}
}

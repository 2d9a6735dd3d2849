// Package scene tracks the objects alive in the client's scene graph and
// loads named scenes. World is the subscriber source the frame dispatcher
// syncs against.
package scene

import (
	"github.com/l1jgo/client/internal/core/frame"
)

// Node can be embedded by scene objects. The world flags it on destroy so
// the frame dispatcher skips the object until the next scene sync drops it.
type Node struct {
	destroyed bool
}

func (n *Node) Destroyed() bool { return n.destroyed }

func (n *Node) markDestroyed() { n.destroyed = true }

type destroyMarker interface {
	markDestroyed()
}

// World owns the live objects, their ids and a deferred destruction queue
// flushed at the end of each tick. Single-goroutine access only (simulation
// loop).
type World struct {
	pool         *idPool
	objects      map[ObjectID]any
	order        []ObjectID // spawn order
	destroyQueue []ObjectID
}

var _ frame.Source = (*World)(nil)

func NewWorld() *World {
	return &World{
		pool:         newIDPool(),
		objects:      make(map[ObjectID]any, 256),
		order:        make([]ObjectID, 0, 256),
		destroyQueue: make([]ObjectID, 0, 64),
	}
}

// Spawn adds obj to the world and returns its id.
func (w *World) Spawn(obj any) ObjectID {
	id := w.pool.create()
	w.objects[id] = obj
	w.order = append(w.order, id)
	return id
}

// Get returns the object for id, or nil if it is gone.
func (w *World) Get(id ObjectID) any {
	if !w.pool.alive(id) {
		return nil
	}
	return w.objects[id]
}

func (w *World) Alive(id ObjectID) bool {
	return w.pool.alive(id)
}

// Count returns the number of live objects.
func (w *World) Count() int { return len(w.objects) }

// Destroy removes id immediately and reports whether it was alive. Objects
// embedding Node are flagged so the dispatcher skips them at once; any other
// object stays registered until the next dispatcher sync against the world.
func (w *World) Destroy(id ObjectID) bool {
	obj, ok := w.objects[id]
	if !ok || !w.pool.destroy(id) {
		return false
	}
	delete(w.objects, id)
	for i, o := range w.order {
		if o == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	if m, ok := obj.(destroyMarker); ok {
		m.markDestroyed()
	}
	return true
}

// MarkForDestruction queues an object for end-of-tick cleanup.
func (w *World) MarkForDestruction(id ObjectID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued objects and returns how many were
// still alive. Called by the loop at the end of each tick.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if w.Destroy(id) {
			n++
		}
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}

// LiveImplementing returns the live objects with the capability of p, in
// spawn order.
func (w *World) LiveImplementing(p frame.Phase) []any {
	out := make([]any, 0, len(w.order))
	for _, id := range w.order {
		if obj := w.objects[id]; p.Implements(obj) {
			out = append(out, obj)
		}
	}
	return out
}

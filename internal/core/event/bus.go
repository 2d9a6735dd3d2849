package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted in tick N are delivered
// in tick N+1, in emission order, when the loop calls SwapBuffers and then
// DispatchAll. Emit and Subscribe may be called from any goroutine;
// handlers only ever run on the goroutine calling DispatchAll.
type Bus struct {
	mu       sync.Mutex // protects back and handlers
	front    []queued
	back     []queued
	handlers map[reflect.Type][]func(any)
}

type queued struct {
	typ reflect.Type
	ev  any
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]queued, 0, 16),
		back:     make([]queued, 0, 16),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event into the back buffer (delivered next tick).
func Emit[T any](b *Bus, ev T) {
	b.mu.Lock()
	b.back = append(b.back, queued{typ: typeKey[T](), ev: ev})
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeKey[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back→front and clears the new back buffer.
// Called once at tick start.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	b.front, b.back = b.back, b.front[:0]
	b.mu.Unlock()
}

// DispatchAll delivers all front-buffer events to their subscribed handlers.
// Events emitted by handlers land in the back buffer for the next tick.
func (b *Bus) DispatchAll() {
	for i, q := range b.front {
		b.mu.Lock()
		handlers := b.handlers[q.typ]
		b.mu.Unlock()
		for _, h := range handlers {
			h(q.ev)
		}
		b.front[i] = queued{}
	}
	b.front = b.front[:0]
}

// Pending returns the number of events waiting for the next swap.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.back)
}

// Package frame invokes per-phase callbacks (awake, update, fixed update,
// late update) on every registered subscriber once per tick and keeps the
// registries in step with the objects alive in the current scene.
//
// A Dispatcher is owned by the simulation goroutine: every method must be
// called from it. Work finishing on other goroutines marshals back through
// the loop before touching a Dispatcher.
package frame

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Dispatcher holds one registry per phase plus the set of subscribers
// contributed by the last scene sync.
type Dispatcher struct {
	phases        [phaseCount]*registry
	known         [phaseCount]map[any]struct{}
	updateEnabled bool
	log           *zap.Logger
}

// NewDispatcher returns a dispatcher with empty registries. Update passes
// are disabled until EnableUpdate(true), which boot does once the
// subsystems they depend on are ready.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{log: log}
	for p := range d.phases {
		d.phases[p] = newRegistry()
		d.known[p] = make(map[any]struct{})
	}
	return d
}

// check validates phase and subscriber for a registry operation.
func (d *Dispatcher) check(op string, p Phase, sub any) bool {
	switch {
	case !p.Valid():
		d.log.Error(op+": invalid phase", zap.Int("phase", int(p)))
		return false
	case sub == nil:
		d.log.Error(op+": nil subscriber", zap.Stringer("phase", p))
		return false
	case !reflect.TypeOf(sub).Comparable():
		d.log.Error(op+": subscriber has no identity",
			zap.Stringer("phase", p), zap.String("type", typeName(sub)))
		return false
	case !p.Implements(sub):
		d.log.Error(op+": subscriber lacks phase capability",
			zap.Stringer("phase", p), zap.String("type", typeName(sub)))
		return false
	}
	return true
}

// AddToPhase registers sub for p. Registering the same subscriber twice is
// logged and ignored.
func (d *Dispatcher) AddToPhase(p Phase, sub any) {
	if !d.check("add", p, sub) {
		return
	}
	if !d.phases[p].add(sub) {
		d.log.Warn("subscriber already registered",
			zap.Stringer("phase", p), zap.String("type", typeName(sub)))
	}
}

// RemoveFromPhase unregisters sub from p. Unknown subscribers are ignored.
func (d *Dispatcher) RemoveFromPhase(p Phase, sub any) {
	if !d.check("remove", p, sub) {
		return
	}
	d.phases[p].remove(sub)
}

// EnableUpdate gates the update, fixed update and late update passes.
// Awake passes are never gated.
func (d *Dispatcher) EnableUpdate(enable bool) {
	if d.updateEnabled == enable {
		return
	}
	d.updateEnabled = enable
	d.log.Info("frame update gate changed", zap.Bool("enabled", enable))
}

func (d *Dispatcher) UpdateEnabled() bool { return d.updateEnabled }

// Len returns the number of subscribers registered for p.
func (d *Dispatcher) Len(p Phase) int {
	if !p.Valid() {
		return 0
	}
	return d.phases[p].len()
}

// RunPhase makes one pass over the registry of p. Destroyed subscribers are
// skipped and a panicking subscriber is logged without ending the pass.
func (d *Dispatcher) RunPhase(p Phase, dt time.Duration) {
	if !p.Valid() {
		d.log.Error("run: invalid phase", zap.Int("phase", int(p)))
		return
	}
	if p != PhaseAwake && !d.updateEnabled {
		return
	}
	d.phases[p].each(func(sub any) {
		if gone, ok := sub.(Destroyable); ok && gone.Destroyed() {
			return
		}
		d.call(p, sub, dt)
	})
}

func (d *Dispatcher) call(p Phase, sub any, dt time.Duration) {
	defer func() {
		if v := recover(); v != nil {
			d.log.Error("subscriber panicked",
				zap.Stringer("phase", p),
				zap.String("type", typeName(sub)),
				zap.String("panic", fmt.Sprint(v)),
			)
		}
	}()
	p.invoke(sub, dt)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

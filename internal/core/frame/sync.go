package frame

import (
	"reflect"

	"github.com/l1jgo/client/internal/core/event"
	"go.uber.org/zap"
)

// Sync reconciles every phase registry with the live set reported by src.
//
// Subscribers that were not in the known set are registered; for the awake
// phase they are also awoken right away, once. Subscribers that were known
// but are no longer live are unregistered. The known set then becomes the
// live set. Subscribers registered explicitly and never reported by src are
// left alone, and a newcomer that was already registered explicitly is not
// awoken a second time.
func (d *Dispatcher) Sync(src Source) {
	for _, p := range Phases() {
		live := src.LiveImplementing(p)
		next := make(map[any]struct{}, len(live))
		added := 0

		for _, sub := range live {
			if sub == nil || !reflect.TypeOf(sub).Comparable() || !p.Implements(sub) {
				continue
			}
			next[sub] = struct{}{}
			if _, seen := d.known[p][sub]; seen {
				continue
			}
			if !d.phases[p].add(sub) {
				continue
			}
			added++
			if p == PhaseAwake {
				d.call(p, sub, 0)
			}
		}

		removed := 0
		for sub := range d.known[p] {
			if _, ok := next[sub]; ok {
				continue
			}
			if d.phases[p].remove(sub) {
				removed++
			}
		}
		d.known[p] = next

		if added > 0 || removed > 0 {
			d.log.Debug("phase synced",
				zap.Stringer("phase", p),
				zap.Int("added", added),
				zap.Int("removed", removed),
				zap.Int("registered", d.phases[p].len()),
			)
		}
	}
}

// Attach resynchronizes against src every time a scene finishes loading.
func (d *Dispatcher) Attach(bus *event.Bus, src Source) {
	event.Subscribe(bus, func(ev event.SceneLoaded) {
		d.log.Debug("scene loaded, syncing phases", zap.String("scene", ev.Name))
		d.Sync(src)
	})
}

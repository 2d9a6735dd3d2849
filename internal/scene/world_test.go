package scene

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/l1jgo/client/internal/core/event"
	"github.com/l1jgo/client/internal/core/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type actor struct {
	Node
	name    string
	awoken  int
	updates int
}

func (a *actor) Awake()                 { a.awoken++ }
func (a *actor) Update(dt time.Duration) { a.updates++ }

type prop struct{ name string }

func TestObjectID_StaleAfterDestroy(t *testing.T) {
	w := NewWorld()
	id := w.Spawn(&prop{name: "rock"})
	require.True(t, w.Alive(id))

	w.Destroy(id)
	reused := w.Spawn(&prop{name: "tree"})

	assert.False(t, w.Alive(id))
	assert.Nil(t, w.Get(id))
	assert.Equal(t, id.Index(), reused.Index())
	assert.Equal(t, id.Generation()+1, reused.Generation())
	assert.Equal(t, "obj#0.1", reused.String())
	assert.Equal(t, "tree", w.Get(reused).(*prop).name)
}

func TestWorld_LiveImplementingInSpawnOrder(t *testing.T) {
	w := NewWorld()
	a := &actor{name: "a"}
	w.Spawn(&prop{})
	w.Spawn(a)
	b := &actor{name: "b"}
	w.Spawn(b)

	assert.Equal(t, []any{a, b}, w.LiveImplementing(frame.PhaseUpdate))
	assert.Empty(t, w.LiveImplementing(frame.PhaseLateUpdate))
	assert.Equal(t, 3, w.Count())
}

func TestWorld_DeferredDestroyMarksNode(t *testing.T) {
	w := NewWorld()
	a := &actor{}
	id := w.Spawn(a)

	w.MarkForDestruction(id)
	assert.True(t, w.Alive(id))
	assert.False(t, a.Destroyed())

	assert.Equal(t, 1, w.FlushDestroyQueue())
	assert.False(t, w.Alive(id))
	assert.True(t, a.Destroyed())
	assert.Empty(t, w.LiveImplementing(frame.PhaseUpdate))

	// Second flush and stale destroy are harmless.
	w.MarkForDestruction(id)
	assert.Equal(t, 0, w.FlushDestroyQueue())
	assert.Equal(t, 0, w.Count())
}

func TestManager_LoadReplacesScene(t *testing.T) {
	w := NewWorld()
	bus := event.NewBus()
	m := NewManager(w, bus, zap.NewNop())
	title := &actor{name: "title"}
	m.Register("title", func(ctx context.Context, spawn func(any) ObjectID) error {
		spawn(title)
		return nil
	})
	m.Register("field", func(ctx context.Context, spawn func(any) ObjectID) error {
		spawn(&actor{name: "hero"})
		spawn(&actor{name: "slime"})
		return nil
	})

	var events []string
	event.Subscribe(bus, func(ev event.SceneLoaded) { events = append(events, "loaded:"+ev.Name) })
	event.Subscribe(bus, func(ev event.SceneUnloaded) { events = append(events, "unloaded:"+ev.Name) })

	require.NoError(t, m.Load(context.Background(), "title"))
	require.NoError(t, m.Load(context.Background(), "field"))
	bus.SwapBuffers()
	bus.DispatchAll()

	assert.Equal(t, "field", m.Current())
	assert.Equal(t, 2, w.Count())
	assert.True(t, title.Destroyed())
	assert.Equal(t, []string{"loaded:title", "unloaded:title", "loaded:field"}, events)
	assert.Equal(t, []string{"field", "title"}, m.Names())
}

func TestManager_FailedBuildCleansUp(t *testing.T) {
	w := NewWorld()
	m := NewManager(w, event.NewBus(), zap.NewNop())
	boom := errors.New("asset missing")
	m.Register("broken", func(ctx context.Context, spawn func(any) ObjectID) error {
		spawn(&actor{})
		return boom
	})

	err := m.Load(context.Background(), "broken")

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, "", m.Current())

	assert.ErrorIs(t, m.Load(context.Background(), "missing"), ErrUnknownScene)
}

// Scene loads drive the dispatcher through the bus exactly as the loop does.
func TestManager_DrivesDispatcherSync(t *testing.T) {
	w := NewWorld()
	bus := event.NewBus()
	m := NewManager(w, bus, zap.NewNop())
	d := frame.NewDispatcher(zap.NewNop())
	d.EnableUpdate(true)
	d.Attach(bus, w)

	hero := &actor{name: "hero"}
	m.Register("field", func(ctx context.Context, spawn func(any) ObjectID) error {
		spawn(hero)
		return nil
	})
	m.Register("town", func(ctx context.Context, spawn func(any) ObjectID) error { return nil })

	require.NoError(t, m.Load(context.Background(), "field"))
	bus.SwapBuffers()
	bus.DispatchAll()
	d.RunPhase(frame.PhaseUpdate, 0)
	assert.Equal(t, 1, hero.awoken)
	assert.Equal(t, 1, hero.updates)

	require.NoError(t, m.Load(context.Background(), "town"))
	d.RunPhase(frame.PhaseUpdate, 0)
	assert.Equal(t, 1, hero.updates, "destroyed objects are skipped before the sync")

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, 0, d.Len(frame.PhaseUpdate))
}

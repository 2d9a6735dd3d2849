package scene

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/l1jgo/client/internal/core/event"
	"go.uber.org/zap"
)

var ErrUnknownScene = errors.New("scene: unknown scene")

// Builder populates a scene by spawning its objects.
type Builder func(ctx context.Context, spawn func(obj any) ObjectID) error

// Manager loads named scenes into a World. Exactly one scene is active at
// a time; loading another destroys the objects the previous one spawned.
// Load must run on the simulation goroutine.
type Manager struct {
	world   *World
	bus     *event.Bus
	scenes  map[string]Builder
	current string
	owned   []ObjectID
	log     *zap.Logger
}

func NewManager(world *World, bus *event.Bus, log *zap.Logger) *Manager {
	return &Manager{
		world:  world,
		bus:    bus,
		scenes: make(map[string]Builder),
		log:    log,
	}
}

// Register adds or replaces the builder for name.
func (m *Manager) Register(name string, b Builder) {
	m.scenes[name] = b
}

// Names returns the registered scene names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.scenes))
	for n := range m.scenes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Current returns the active scene name, or "" before the first load.
func (m *Manager) Current() string { return m.current }

// Load replaces the active scene with name. SceneUnloaded (when a scene was
// active) and SceneLoaded are emitted for delivery on the next tick. If the
// builder fails the objects it spawned are destroyed and no scene is active.
func (m *Manager) Load(ctx context.Context, name string) error {
	build, ok := m.scenes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScene, name)
	}

	if prev := m.current; prev != "" {
		m.unload()
		event.Emit(m.bus, event.SceneUnloaded{Name: prev})
	}

	spawned := make([]ObjectID, 0, 16)
	spawn := func(obj any) ObjectID {
		id := m.world.Spawn(obj)
		spawned = append(spawned, id)
		return id
	}
	if err := build(ctx, spawn); err != nil {
		for _, id := range spawned {
			m.world.Destroy(id)
		}
		return fmt.Errorf("build scene %s: %w", name, err)
	}

	m.current = name
	m.owned = spawned
	event.Emit(m.bus, event.SceneLoaded{Name: name})
	m.log.Info("scene loaded", zap.String("scene", name), zap.Int("objects", len(spawned)))
	return nil
}

func (m *Manager) unload() {
	for _, id := range m.owned {
		m.world.Destroy(id)
	}
	m.log.Debug("scene unloaded", zap.String("scene", m.current), zap.Int("objects", len(m.owned)))
	m.owned = nil
	m.current = ""
}

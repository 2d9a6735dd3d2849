package frame

import (
	"fmt"
	"time"
)

// Phase is a named point of the per-tick sequence. It doubles as the
// capability tag a subscriber must implement to be registered for it.
type Phase int

const (
	PhaseAwake       Phase = iota // once, at startup or on first appearance
	PhaseUpdate                   // every tick
	PhaseFixedUpdate              // every fixed step, zero or more per tick
	PhaseLateUpdate               // every tick, after Update and FixedUpdate

	phaseCount
)

var phaseNames = [phaseCount]string{"awake", "update", "fixed_update", "late_update"}

func (p Phase) String() string {
	if p.Valid() {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) Valid() bool { return p >= 0 && p < phaseCount }

// Phases returns every phase in tick order.
func Phases() []Phase {
	return []Phase{PhaseAwake, PhaseUpdate, PhaseFixedUpdate, PhaseLateUpdate}
}

// Awaker is the PhaseAwake capability.
type Awaker interface {
	Awake()
}

// Updater is the PhaseUpdate capability.
type Updater interface {
	Update(dt time.Duration)
}

// FixedUpdater is the PhaseFixedUpdate capability. dt is the fixed step.
type FixedUpdater interface {
	FixedUpdate(dt time.Duration)
}

// LateUpdater is the PhaseLateUpdate capability.
type LateUpdater interface {
	LateUpdate(dt time.Duration)
}

// Destroyable lets a subscriber report that it no longer exists. Destroyed
// subscribers stay registered until the next scene sync but are skipped.
type Destroyable interface {
	Destroyed() bool
}

// Implements reports whether sub has the capability required by p.
func (p Phase) Implements(sub any) bool {
	switch p {
	case PhaseAwake:
		_, ok := sub.(Awaker)
		return ok
	case PhaseUpdate:
		_, ok := sub.(Updater)
		return ok
	case PhaseFixedUpdate:
		_, ok := sub.(FixedUpdater)
		return ok
	case PhaseLateUpdate:
		_, ok := sub.(LateUpdater)
		return ok
	}
	return false
}

func (p Phase) invoke(sub any, dt time.Duration) {
	switch p {
	case PhaseAwake:
		sub.(Awaker).Awake()
	case PhaseUpdate:
		sub.(Updater).Update(dt)
	case PhaseFixedUpdate:
		sub.(FixedUpdater).FixedUpdate(dt)
	case PhaseLateUpdate:
		sub.(LateUpdater).LateUpdate(dt)
	}
}

// Source yields the complete set of live objects implementing a phase.
type Source interface {
	LiveImplementing(p Phase) []any
}

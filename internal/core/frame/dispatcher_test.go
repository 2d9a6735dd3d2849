package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// probe implements every phase and counts calls.
type probe struct {
	name                       string
	awake, update, fixed, late int
	lastDT                     time.Duration
	onUpdate                   func()
	gone                       bool
}

func (p *probe) Awake() { p.awake++ }
func (p *probe) Update(dt time.Duration) {
	p.update++
	p.lastDT = dt
	if p.onUpdate != nil {
		p.onUpdate()
	}
}
func (p *probe) FixedUpdate(time.Duration) { p.fixed++ }
func (p *probe) LateUpdate(time.Duration)  { p.late++ }
func (p *probe) Destroyed() bool           { return p.gone }

// lateOnly has a single capability.
type lateOnly struct{ calls int }

func (l *lateOnly) LateUpdate(time.Duration) { l.calls++ }

type panicky struct{}

func (panicky) Update(time.Duration) { panic("bad frame") }

func newTestDispatcher(t *testing.T) (*Dispatcher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewDispatcher(zap.New(core))
	d.EnableUpdate(true)
	return d, logs
}

func TestAddToPhase_DuplicateRegistersOnce(t *testing.T) {
	d, logs := newTestDispatcher(t)
	p := &probe{}

	d.AddToPhase(PhaseUpdate, p)
	d.AddToPhase(PhaseUpdate, p)
	d.RunPhase(PhaseUpdate, 16*time.Millisecond)

	assert.Equal(t, 1, p.update)
	assert.Equal(t, 16*time.Millisecond, p.lastDT)
	assert.Equal(t, 1, d.Len(PhaseUpdate))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestAddToPhase_CapabilityMismatchIsRejected(t *testing.T) {
	d, logs := newTestDispatcher(t)
	l := &lateOnly{}

	d.AddToPhase(PhaseUpdate, l)
	d.AddToPhase(PhaseLateUpdate, l)

	assert.Equal(t, 0, d.Len(PhaseUpdate))
	assert.Equal(t, 1, d.Len(PhaseLateUpdate))
	assert.Equal(t, 1, logs.FilterMessage("add: subscriber lacks phase capability").Len())
}

func TestAddToPhase_RejectsNilAndUnidentifiable(t *testing.T) {
	d, logs := newTestDispatcher(t)

	d.AddToPhase(PhaseUpdate, nil)
	d.AddToPhase(PhaseUpdate, updateFunc(func(time.Duration) {}))
	d.AddToPhase(Phase(42), &probe{})

	assert.Equal(t, 0, d.Len(PhaseUpdate))
	assert.Equal(t, 3, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

// updateFunc is a func type: it has the capability but no identity.
type updateFunc func(time.Duration)

func (f updateFunc) Update(dt time.Duration) { f(dt) }

func TestRemoveFromPhase(t *testing.T) {
	d, _ := newTestDispatcher(t)
	a, b := &probe{}, &probe{}
	d.AddToPhase(PhaseUpdate, a)
	d.AddToPhase(PhaseUpdate, b)

	d.RemoveFromPhase(PhaseUpdate, a)
	d.RemoveFromPhase(PhaseUpdate, a)
	d.RunPhase(PhaseUpdate, 0)

	assert.Equal(t, 0, a.update)
	assert.Equal(t, 1, b.update)
	assert.Equal(t, 1, d.Len(PhaseUpdate))
}

func TestRunPhase_KeepsRegistrationOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		p := &probe{name: name}
		p.onUpdate = func() { order = append(order, p.name) }
		d.AddToPhase(PhaseUpdate, p)
	}

	d.RunPhase(PhaseUpdate, 20*time.Millisecond)

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestEnableUpdate_GatesAllButAwake(t *testing.T) {
	d, _ := newTestDispatcher(t)
	p := &probe{}
	for _, ph := range Phases() {
		d.AddToPhase(ph, p)
	}

	d.EnableUpdate(false)
	for i := 0; i < 5; i++ {
		d.RunPhase(PhaseUpdate, time.Millisecond)
		d.RunPhase(PhaseFixedUpdate, time.Millisecond)
		d.RunPhase(PhaseLateUpdate, time.Millisecond)
	}
	d.RunPhase(PhaseAwake, 0)
	assert.Zero(t, p.update+p.fixed+p.late)
	assert.Equal(t, 1, p.awake)

	d.EnableUpdate(true)
	d.RunPhase(PhaseUpdate, time.Millisecond)
	assert.Equal(t, 1, p.update)
}

func TestNewDispatcher_StartsWithUpdatesDisabled(t *testing.T) {
	d := NewDispatcher(nil)
	p := &probe{}
	d.AddToPhase(PhaseUpdate, p)

	d.RunPhase(PhaseUpdate, 0)

	assert.False(t, d.UpdateEnabled())
	assert.Zero(t, p.update)
}

func TestRunPhase_SkipsDestroyed(t *testing.T) {
	d, _ := newTestDispatcher(t)
	alive, dead := &probe{}, &probe{gone: true}
	d.AddToPhase(PhaseUpdate, alive)
	d.AddToPhase(PhaseUpdate, dead)

	d.RunPhase(PhaseUpdate, 0)

	assert.Equal(t, 1, alive.update)
	assert.Zero(t, dead.update)
}

func TestRunPhase_MembershipChangesDuringPass(t *testing.T) {
	d, _ := newTestDispatcher(t)
	first, victim, newcomer := &probe{}, &probe{}, &probe{}
	first.onUpdate = func() {
		d.RemoveFromPhase(PhaseUpdate, victim)
		d.AddToPhase(PhaseUpdate, newcomer)
	}
	d.AddToPhase(PhaseUpdate, first)
	d.AddToPhase(PhaseUpdate, victim)

	d.RunPhase(PhaseUpdate, 0)
	assert.Zero(t, victim.update, "removed during the pass")
	assert.Zero(t, newcomer.update, "added during the pass")

	first.onUpdate = nil
	d.RunPhase(PhaseUpdate, 0)
	assert.Equal(t, 1, newcomer.update)
	assert.Equal(t, 2, first.update)
	assert.Equal(t, 2, d.Len(PhaseUpdate))
}

func TestRunPhase_PanicIsContained(t *testing.T) {
	d, logs := newTestDispatcher(t)
	after := &probe{}
	d.AddToPhase(PhaseUpdate, panicky{})
	d.AddToPhase(PhaseUpdate, after)

	require.NotPanics(t, func() { d.RunPhase(PhaseUpdate, 0) })

	assert.Equal(t, 1, after.update)
	assert.Equal(t, 1, logs.FilterMessage("subscriber panicked").Len())
}

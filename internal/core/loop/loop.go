// Package loop runs the simulation goroutine: the one goroutine allowed to
// touch the frame dispatcher, the scene world and event delivery. Other
// goroutines hand work to it with Submit or Do.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/client/internal/core/event"
	"github.com/l1jgo/client/internal/core/frame"
	"go.uber.org/zap"
)

var (
	ErrLoopAlreadyRunning = errors.New("loop: already running")
	ErrLoopStopped        = errors.New("loop: stopped")
	ErrQueueFull          = errors.New("loop: ingress queue full")
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// Config controls tick pacing.
type Config struct {
	TickRate      time.Duration // wall-clock interval between ticks
	FixedStep     time.Duration // simulation step of the fixed update phase
	MaxFixedSteps int           // cap on fixed steps per tick; backlog beyond it is dropped
	QueueSize     int           // capacity of the ingress queue
}

func (c Config) withDefaults() Config {
	if c.TickRate <= 0 {
		c.TickRate = 16 * time.Millisecond
	}
	if c.FixedStep <= 0 {
		c.FixedStep = 20 * time.Millisecond
	}
	if c.MaxFixedSteps <= 0 {
		c.MaxFixedSteps = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Loop drives the dispatcher phases once per tick.
type Loop struct {
	cfg      Config
	disp     *frame.Dispatcher
	bus      *event.Bus
	log      *zap.Logger
	ingress  chan func()
	postTick []func()

	stopMu sync.RWMutex // Submit holds it shared across check and enqueue
	state  atomic.Int32
	ticks  atomic.Uint64
	done   chan struct{}

	accum time.Duration // fixed-step accumulator, loop goroutine only
}

func New(cfg Config, disp *frame.Dispatcher, bus *event.Bus, log *zap.Logger) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		cfg:     cfg,
		disp:    disp,
		bus:     bus,
		log:     log,
		ingress: make(chan func(), cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// OnPostTick registers fn to run at the end of every tick, after the late
// update phase. Call before Run.
func (l *Loop) OnPostTick(fn func()) {
	l.postTick = append(l.postTick, fn)
}

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run awakens the registered awake subscribers, then ticks until ctx is
// done. Work submitted before the loop stops runs before Run returns;
// anything submitted afterwards is rejected with ErrLoopStopped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(stateIdle, stateRunning) {
		if l.state.Load() == stateStopped {
			return ErrLoopStopped
		}
		return ErrLoopAlreadyRunning
	}
	defer close(l.done)

	l.log.Info("simulation loop started",
		zap.Duration("tick_rate", l.cfg.TickRate),
		zap.Duration("fixed_step", l.cfg.FixedStep),
	)
	l.disp.RunPhase(frame.PhaseAwake, 0)

	ticker := time.NewTicker(l.cfg.TickRate)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			l.stopMu.Lock()
			l.state.Store(stateStopped)
			l.stopMu.Unlock()
			l.drain()
			l.log.Info("simulation loop stopped", zap.Uint64("ticks", l.Ticks()))
			return nil
		case fn := <-l.ingress:
			l.exec(fn)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			l.Tick(dt)
		}
	}
}

// Tick runs one frame on the calling goroutine: pending work, event
// delivery, update, fixed updates, late update, post-tick hooks. Run calls
// it from the ticker; tests may call it directly instead of Run.
func (l *Loop) Tick(dt time.Duration) {
	l.drain()

	l.bus.SwapBuffers()
	l.bus.DispatchAll()

	l.disp.RunPhase(frame.PhaseUpdate, dt)
	l.fixedSteps(dt)
	l.disp.RunPhase(frame.PhaseLateUpdate, dt)

	for _, fn := range l.postTick {
		l.exec(fn)
	}
	l.ticks.Add(1)
}

func (l *Loop) fixedSteps(dt time.Duration) {
	if !l.disp.UpdateEnabled() {
		// Paused time does not accumulate into a burst on resume.
		l.accum = 0
		return
	}
	l.accum += dt
	steps := 0
	for l.accum >= l.cfg.FixedStep && steps < l.cfg.MaxFixedSteps {
		l.disp.RunPhase(frame.PhaseFixedUpdate, l.cfg.FixedStep)
		l.accum -= l.cfg.FixedStep
		steps++
	}
	if l.accum >= l.cfg.FixedStep {
		l.log.Debug("fixed step backlog dropped", zap.Duration("backlog", l.accum))
		l.accum = 0
	}
}

// drain runs everything currently queued without blocking.
func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.ingress:
			l.exec(fn)
		default:
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			l.log.Error("loop task panicked", zap.String("panic", fmt.Sprint(v)))
		}
	}()
	fn()
}

// Submit queues fn for the simulation goroutine without waiting. Work it
// accepts always runs, at the latest in the final drain of Run.
func (l *Loop) Submit(fn func()) error {
	l.stopMu.RLock()
	defer l.stopMu.RUnlock()
	if l.state.Load() == stateStopped {
		return ErrLoopStopped
	}
	select {
	case l.ingress <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do runs fn on the simulation goroutine and waits for it to finish. It is
// how goroutines outside the loop (task group items, asset callbacks)
// marshal work that touches loop-owned state. Do must not be called from
// the simulation goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.state.Load() == stateStopped {
		return ErrLoopStopped
	}
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.ingress <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The final drain may still have run the task.
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	}
}

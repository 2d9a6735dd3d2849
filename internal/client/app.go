// Package client wires the task group engine, the frame dispatcher, the
// scene world and the simulation loop into a running client, and drives
// the boot and shutdown task groups around the loop's lifetime.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/l1jgo/client/internal/config"
	"github.com/l1jgo/client/internal/core/event"
	"github.com/l1jgo/client/internal/core/frame"
	"github.com/l1jgo/client/internal/core/loop"
	"github.com/l1jgo/client/internal/plan"
	"github.com/l1jgo/client/internal/scene"
	"github.com/l1jgo/client/internal/scripting"
	"github.com/l1jgo/client/internal/taskgroup"
	"go.uber.org/zap"
)

// App owns every subsystem of a client process.
type App struct {
	cfg *config.Config
	log *zap.Logger

	Groups     *taskgroup.Engine
	Dispatcher *frame.Dispatcher
	Bus        *event.Bus
	World      *scene.World
	Scenes     *scene.Manager
	Loop       *loop.Loop
	Lua        *scripting.Engine
	Actions    *plan.Actions
}

// New builds the subsystems and registers the client actions. The boot plan
// is not loaded yet; see InstallPlan.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	lua, err := scripting.NewEngine(cfg.Scripting.Dir, log.Named("lua"))
	if err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}

	a := &App{
		cfg:        cfg,
		log:        log,
		Groups:     taskgroup.NewEngine(log.Named("taskgroup")),
		Dispatcher: frame.NewDispatcher(log.Named("frame")),
		Bus:        event.NewBus(),
		World:      scene.NewWorld(),
		Lua:        lua,
		Actions:    plan.NewActions(log.Named("plan")),
	}
	a.Scenes = scene.NewManager(a.World, a.Bus, log.Named("scene"))
	a.Loop = loop.New(loop.Config{
		TickRate:      cfg.Loop.TickRate,
		FixedStep:     cfg.Loop.FixedStep,
		MaxFixedSteps: cfg.Loop.MaxFixedSteps,
		QueueSize:     cfg.Loop.QueueSize,
	}, a.Dispatcher, a.Bus, log.Named("loop"))

	a.Dispatcher.Attach(a.Bus, a.World)
	a.Loop.OnPostTick(a.flushDestroyed)
	event.Subscribe(a.Bus, a.onGroupProgress)

	if err := a.registerScenes(); err != nil {
		lua.Close()
		return nil, err
	}
	a.registerActions()
	return a, nil
}

// flushDestroyed runs the world's deferred destruction and, when anything
// went, resyncs the dispatcher so objects without a Destroyed flag stop
// receiving callbacks from the next tick on.
func (a *App) flushDestroyed() {
	if a.World.FlushDestroyQueue() > 0 {
		a.Dispatcher.Sync(a.World)
	}
}

// registerScenes turns the Lua scenes table into scene builders.
func (a *App) registerScenes() error {
	scenes, err := a.Lua.Scenes()
	if err != nil {
		return err
	}
	for name, behaviours := range scenes {
		behaviours := behaviours
		a.Scenes.Register(name, func(ctx context.Context, spawn func(any) scene.ObjectID) error {
			for _, global := range behaviours {
				b, err := a.Lua.NewBehaviour(global)
				if err != nil {
					return err
				}
				spawn(b)
			}
			return nil
		})
	}
	return nil
}

func (a *App) registerActions() {
	a.Actions.Register("lua", a.Lua.Action)
	a.Actions.Register("scene", func(args map[string]string) (func(context.Context) error, error) {
		name, err := plan.Arg(args, "name")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return a.LoadScene(ctx, name) }, nil
	})
	a.Actions.Register("enable_update", func(args map[string]string) (func(context.Context) error, error) {
		enable := true
		if raw, ok := args["enabled"]; ok {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("enable_update: %w", err)
			}
			enable = v
		}
		return func(ctx context.Context) error {
			return a.Loop.Do(ctx, func() { a.Dispatcher.EnableUpdate(enable) })
		}, nil
	})
}

// InstallPlan loads the manifest at path and creates its groups.
func (a *App) InstallPlan(path string) error {
	m, err := plan.Load(path)
	if err != nil {
		return err
	}
	return plan.Install(a.Groups, m, a.Actions)
}

// LoadScene switches scenes on the simulation goroutine and waits for it.
func (a *App) LoadScene(ctx context.Context, name string) error {
	var loadErr error
	if err := a.Loop.Do(ctx, func() { loadErr = a.Scenes.Load(ctx, name) }); err != nil {
		return err
	}
	return loadErr
}

// Run starts the loop, runs the boot group and blocks until ctx is done.
// The shutdown group then runs with its own timeout while the loop is still
// ticking, so its items can marshal work onto it; the loop stops last.
func (a *App) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- a.Loop.Run(loopCtx) }()

	if err := a.runGroup(ctx, a.cfg.Boot.BootGroup); err != nil {
		a.log.Warn("boot interrupted", zap.Error(err))
	} else if ctx.Err() == nil {
		a.log.Info("boot complete", zap.Uint64("ticks", a.Loop.Ticks()))
	}

	<-ctx.Done()

	if key := a.cfg.Boot.ShutdownGroup; key != "" && a.Groups.Has(key) {
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Boot.ShutdownTimeout)
		if err := a.runGroup(sctx, key); err != nil {
			a.log.Warn("shutdown group interrupted", zap.Error(err))
		}
		cancel()
	}

	stopLoop()
	err := <-loopErr
	a.Lua.Close()
	return err
}

func (a *App) runGroup(ctx context.Context, key string) error {
	return a.Groups.RunGroup(ctx, key, func(p float64) {
		event.Emit(a.Bus, event.GroupProgress{Group: key, Fraction: p})
	})
}

// onGroupProgress forwards progress to the Lua on_group_progress hook, if
// the scripts define one. Runs on the simulation goroutine.
func (a *App) onGroupProgress(ev event.GroupProgress) {
	a.log.Debug("group progress", zap.String("group", ev.Group), zap.Float64("progress", ev.Fraction))
	err := a.Lua.Call(context.Background(), "on_group_progress", map[string]string{
		"group":    ev.Group,
		"progress": strconv.FormatFloat(ev.Fraction, 'f', -1, 64),
	})
	if err != nil && !errors.Is(err, scripting.ErrFunctionNotFound) {
		a.log.Warn("progress hook failed", zap.Error(err))
	}
}

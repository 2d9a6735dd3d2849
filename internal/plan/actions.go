package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownAction = errors.New("plan: unknown action")
	ErrMissingArg    = errors.New("plan: missing argument")
)

// Factory builds an item body from its manifest arguments.
type Factory func(args map[string]string) (func(ctx context.Context) error, error)

// Actions maps action names to factories. It is safe for concurrent use.
type Actions struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewActions returns a registry holding the built-in actions:
//
//	delay  wait for args["duration"] or until the run is canceled
//	log    write args["message"] at info level
func NewActions(log *zap.Logger) *Actions {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Actions{factories: make(map[string]Factory)}
	a.Register("delay", delayAction)
	a.Register("log", func(args map[string]string) (func(context.Context) error, error) {
		msg, err := Arg(args, "message")
		if err != nil {
			return nil, err
		}
		return func(context.Context) error {
			log.Info(msg)
			return nil
		}, nil
	})
	return a
}

// Register adds or replaces the factory for name.
func (a *Actions) Register(name string, f Factory) {
	a.mu.Lock()
	a.factories[name] = f
	a.mu.Unlock()
}

// Names returns the registered action names, sorted.
func (a *Actions) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.factories))
	for n := range a.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build resolves name and builds the item body.
func (a *Actions) Build(name string, args map[string]string) (func(ctx context.Context) error, error) {
	a.mu.RLock()
	f, ok := a.factories[name]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return f(args)
}

// Arg returns a required argument.
func Arg(args map[string]string, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArg, key)
	}
	return v, nil
}

func delayAction(args map[string]string) (func(context.Context) error, error) {
	raw, err := Arg(args, "duration")
	if err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	return func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}

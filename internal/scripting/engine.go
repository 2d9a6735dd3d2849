package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

var ErrFunctionNotFound = errors.New("scripting: lua function not found")

// Engine wraps a single gopher-lua VM. Boot items call into it from worker
// goroutines and behaviours from the simulation loop, so every VM access
// holds mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory: top-level files first, then the core, boot and scene
// subdirectories in that order. Missing directories are skipped.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("client_log", vm.NewFunction(e.luaLog))

	if scriptsDir == "" {
		return e, nil
	}
	dirs := []string{scriptsDir}
	for _, sub := range []string{"core", "boot", "scene"} {
		dirs = append(dirs, filepath.Join(scriptsDir, sub))
	}
	for _, dir := range dirs {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// luaLog backs client_log(level, message).
func (e *Engine) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	switch level {
	case "debug":
		e.log.Debug(msg, zap.String("source", "lua"))
	case "warn":
		e.log.Warn(msg, zap.String("source", "lua"))
	case "error":
		e.log.Error(msg, zap.String("source", "lua"))
	default:
		e.log.Info(msg, zap.String("source", "lua"))
	}
	return 0
}

// DoString runs an inline chunk.
func (e *Engine) DoString(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.DoString(src)
}

// Call invokes the global Lua function name with args packed into a table.
// The VM stops at the next instruction once ctx is done; the returned error
// then wraps ctx.Err().
func (e *Engine) Call(ctx context.Context, name string, args map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}

	t := e.vm.NewTable()
	for k, v := range args {
		t.RawSetString(k, lua.LString(v))
	}

	e.vm.SetContext(ctx)
	defer e.vm.RemoveContext()
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, t); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("lua %s: %w", name, ctxErr)
		}
		return fmt.Errorf("lua %s: %w", name, err)
	}
	return nil
}

// Action is a plan factory for the "lua" action: args["func"] names the
// global to call and the remaining args are passed through.
func (e *Engine) Action(args map[string]string) (func(ctx context.Context) error, error) {
	name := args["func"]
	if name == "" {
		return nil, errors.New("lua: missing argument func")
	}
	return func(ctx context.Context) error {
		return e.Call(ctx, name, args)
	}, nil
}

// Scenes reads the global `scenes` table: scene name to the list of
// behaviour globals it spawns.
//
//	scenes = { field = { "hero", "slime" } }
func (e *Engine) Scenes() (map[string][]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]string)
	v := e.vm.GetGlobal("scenes")
	if v == lua.LNil {
		return out, nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("scripting: scenes is a %s, want table", v.Type())
	}
	var err error
	t.ForEach(func(k, v lua.LValue) {
		list, ok := v.(*lua.LTable)
		if !ok {
			err = fmt.Errorf("scripting: scene %s is a %s, want table", k.String(), v.Type())
			return
		}
		names := make([]string, 0, list.Len())
		for i := 1; i <= list.Len(); i++ {
			names = append(names, lStr(list, i))
		}
		out[k.String()] = names
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SceneNames returns the names in the scenes table, sorted.
func (e *Engine) SceneNames() ([]string, error) {
	scenes, err := e.Scenes()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(scenes))
	for n := range scenes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// lStr reads a string element from a Lua array.
func lStr(t *lua.LTable, i int) string {
	return lua.LVAsString(t.RawGetInt(i))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

package scripting

import (
	"fmt"
	"time"

	"github.com/l1jgo/client/internal/scene"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Behaviour binds a Lua table to the frame phases. Awake, Update and
// LateUpdate call the table's awake, update(dt) and late_update(dt) fields
// with the table as self; a missing field is a no-op. dt is passed in
// seconds.
type Behaviour struct {
	scene.Node
	name   string
	engine *Engine
	self   *lua.LTable
}

// NewBehaviour instantiates the global name. A table global is bound
// directly (shared by every instance); a function global is called and the
// table it returns is bound.
func (e *Engine) NewBehaviour(name string) (*Behaviour, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var self *lua.LTable
	switch v := e.vm.GetGlobal(name).(type) {
	case *lua.LTable:
		self = v
	case *lua.LFunction:
		if err := e.vm.CallByParam(lua.P{Fn: v, NRet: 1, Protect: true}); err != nil {
			return nil, fmt.Errorf("behaviour %s: %w", name, err)
		}
		ret := e.vm.Get(-1)
		e.vm.Pop(1)
		t, ok := ret.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("behaviour %s: constructor returned %s, want table", name, ret.Type())
		}
		self = t
	default:
		return nil, fmt.Errorf("%w: behaviour %s", ErrFunctionNotFound, name)
	}
	return &Behaviour{name: name, engine: e, self: self}, nil
}

func (b *Behaviour) Name() string { return b.name }

func (b *Behaviour) Awake() { b.invoke("awake") }

func (b *Behaviour) Update(dt time.Duration) {
	b.invoke("update", lua.LNumber(dt.Seconds()))
}

func (b *Behaviour) LateUpdate(dt time.Duration) {
	b.invoke("late_update", lua.LNumber(dt.Seconds()))
}

func (b *Behaviour) invoke(field string, args ...lua.LValue) {
	e := b.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, ok := b.self.RawGetString(field).(*lua.LFunction)
	if !ok {
		return
	}
	params := append([]lua.LValue{b.self}, args...)
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, params...); err != nil {
		e.log.Error("lua behaviour error",
			zap.String("behaviour", b.name),
			zap.String("field", field),
			zap.Error(err),
		)
	}
}

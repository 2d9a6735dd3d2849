package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/l1jgo/client/internal/taskgroup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const bootPlan = `
groups:
  - key: boot
    kind: hybrid
    items:
      - name: banner
        action: log
        args: {message: starting}
      - name: warm-cache
        action: delay
        parallel: true
        args: {duration: 1ms}
      - action: count
  - key: shutdown
    kind: sequential
    persistent: true
    items:
      - action: count
`

func TestParse_Manifest(t *testing.T) {
	m, err := Parse([]byte(bootPlan))
	require.NoError(t, err)

	require.Len(t, m.Groups, 2)
	boot := m.Group("boot")
	require.NotNil(t, boot)
	assert.Equal(t, "hybrid", boot.Kind)
	assert.True(t, boot.Items[1].Parallel)
	assert.Equal(t, "1ms", boot.Items[1].Args["duration"])
	assert.Equal(t, "count", boot.Items[2].displayName())
	assert.True(t, m.Group("shutdown").Persistent)
	assert.Nil(t, m.Group("missing"))
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]struct {
		doc    string
		target error
	}{
		"unknown kind": {
			doc:    "groups: [{key: a, kind: chaotic}]",
			target: taskgroup.ErrUnknownKind,
		},
		"empty key": {
			doc:    "groups: [{kind: parallel}]",
			target: ErrInvalidManifest,
		},
		"duplicate key": {
			doc:    "groups: [{key: a, kind: parallel}, {key: a, kind: hybrid}]",
			target: ErrInvalidManifest,
		},
		"missing action": {
			doc:    "groups: [{key: a, kind: parallel, items: [{name: x}]}]",
			target: ErrInvalidManifest,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.ErrorIs(t, err, tc.target)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bootPlan), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Groups, 2)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInstall_RunsGroups(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	actions := NewActions(zap.New(core))
	count := 0
	actions.Register("count", func(map[string]string) (func(context.Context) error, error) {
		return func(context.Context) error { count++; return nil }, nil
	})
	engine := taskgroup.NewEngine(zap.NewNop())
	m, err := Parse([]byte(bootPlan))
	require.NoError(t, err)

	require.NoError(t, Install(engine, m, actions))

	info, ok := engine.Info("boot")
	require.True(t, ok)
	assert.Equal(t, taskgroup.Hybrid, info.Kind)
	assert.Equal(t, 2, info.Sequential)
	assert.Equal(t, 1, info.Parallel)

	var last float64
	require.NoError(t, engine.RunGroup(context.Background(), "boot", func(p float64) { last = p }))
	assert.Equal(t, 1.0, last)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, logs.FilterMessage("starting").Len())
	assert.False(t, engine.Has("boot"))
	assert.True(t, engine.Has("shutdown"))
}

func TestInstall_UnknownActionLeavesEngineUntouched(t *testing.T) {
	engine := taskgroup.NewEngine(zap.NewNop())
	m, err := Parse([]byte(bootPlan))
	require.NoError(t, err)

	err = Install(engine, m, NewActions(nil))

	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.False(t, engine.Has("boot"))
	assert.False(t, engine.Has("shutdown"))
}

func TestActions_BuiltinArgs(t *testing.T) {
	a := NewActions(nil)
	assert.Equal(t, []string{"delay", "log"}, a.Names())

	_, err := a.Build("delay", nil)
	assert.ErrorIs(t, err, ErrMissingArg)
	_, err = a.Build("delay", map[string]string{"duration": "soon"})
	assert.Error(t, err)
	_, err = a.Build("log", map[string]string{})
	assert.ErrorIs(t, err, ErrMissingArg)
}

func TestDelay_StopsOnCancel(t *testing.T) {
	run, err := NewActions(nil).Build("delay", map[string]string{"duration": "1h"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, run(ctx), context.DeadlineExceeded)
}

func TestInstall_ExistingGroupIsNotExtended(t *testing.T) {
	engine := taskgroup.NewEngine(zap.NewNop())
	engine.CreateGroup(taskgroup.Sequential, "shutdown", true)
	actions := NewActions(nil)
	actions.Register("count", func(map[string]string) (func(context.Context) error, error) {
		return func(context.Context) error { return nil }, nil
	})
	m, err := Parse([]byte(bootPlan))
	require.NoError(t, err)

	err = Install(engine, m, actions)

	assert.ErrorIs(t, err, ErrGroupExists)
	assert.False(t, engine.Has("boot"))
	info, ok := engine.Info("shutdown")
	require.True(t, ok)
	assert.Equal(t, 0, info.Sequential)
}

// Package plan loads task group manifests from YAML and installs them on a
// taskgroup.Engine. A manifest describes groups by key and kind; each item
// names an action that an Actions registry turns into a runnable body.
package plan

import (
	"errors"
	"fmt"
	"os"

	"github.com/l1jgo/client/internal/taskgroup"
	"gopkg.in/yaml.v3"
)

// Manifest is the top-level document of a plan file.
type Manifest struct {
	Groups []GroupSpec `yaml:"groups"`
}

// GroupSpec declares one task group.
type GroupSpec struct {
	Key        string     `yaml:"key"`
	Kind       string     `yaml:"kind"`
	Persistent bool       `yaml:"persistent"`
	Items      []ItemSpec `yaml:"items"`
}

// ItemSpec declares one item. Items go to the sequential list unless
// Parallel is set.
type ItemSpec struct {
	Name     string            `yaml:"name"`
	Action   string            `yaml:"action"`
	Parallel bool              `yaml:"parallel"`
	Args     map[string]string `yaml:"args"`
}

func (s ItemSpec) displayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Action
}

var (
	ErrInvalidManifest = errors.New("plan: invalid manifest")
	ErrGroupExists     = errors.New("plan: group already installed")
)

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %s: %w", path, err)
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("plan: %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]struct{}, len(m.Groups))
	for i, g := range m.Groups {
		if g.Key == "" {
			return fmt.Errorf("%w: group %d has no key", ErrInvalidManifest, i)
		}
		if _, dup := seen[g.Key]; dup {
			return fmt.Errorf("%w: duplicate group %q", ErrInvalidManifest, g.Key)
		}
		seen[g.Key] = struct{}{}
		if _, err := taskgroup.ParseKind(g.Kind); err != nil {
			return fmt.Errorf("group %q: %w", g.Key, err)
		}
		for j, it := range g.Items {
			if it.Action == "" {
				return fmt.Errorf("%w: group %q item %d has no action", ErrInvalidManifest, g.Key, j)
			}
		}
	}
	return nil
}

// Group returns the spec for key, or nil.
func (m *Manifest) Group(key string) *GroupSpec {
	for i := range m.Groups {
		if m.Groups[i].Key == key {
			return &m.Groups[i]
		}
	}
	return nil
}

// Install creates every group of m on engine. All items are built and every
// key is checked before the engine is touched, so an unknown action, a bad
// argument or a key the engine already holds leaves the engine unchanged.
func Install(engine *taskgroup.Engine, m *Manifest, actions *Actions) error {
	type pending struct {
		item       taskgroup.Item
		sequential bool
	}
	built := make([][]pending, len(m.Groups))
	kinds := make([]taskgroup.Kind, len(m.Groups))

	for i, g := range m.Groups {
		if engine.Has(g.Key) {
			return fmt.Errorf("%w: %s", ErrGroupExists, g.Key)
		}
		kind, err := taskgroup.ParseKind(g.Kind)
		if err != nil {
			return fmt.Errorf("group %q: %w", g.Key, err)
		}
		kinds[i] = kind
		for _, spec := range g.Items {
			run, err := actions.Build(spec.Action, spec.Args)
			if err != nil {
				return fmt.Errorf("group %q item %q: %w", g.Key, spec.displayName(), err)
			}
			built[i] = append(built[i], pending{
				item:       taskgroup.NewItem(spec.displayName(), run),
				sequential: !spec.Parallel,
			})
		}
	}

	for i, g := range m.Groups {
		engine.CreateGroup(kinds[i], g.Key, g.Persistent)
		for _, p := range built[i] {
			engine.AddItem(g.Key, p.item, p.sequential)
		}
	}
	return nil
}

package taskgroup

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind selects the run strategy of a group.
type Kind int

const (
	Sequential Kind = iota // sequential bucket, one item at a time
	Parallel               // parallel bucket, all items at once
	Hybrid                 // both buckets interleaved by index
)

// ErrUnknownKind is returned by ParseKind for names it does not recognize.
var ErrUnknownKind = errors.New("taskgroup: unknown group kind")

func (k Kind) String() string {
	switch k {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	case Hybrid:
		return "hybrid"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) valid() bool { return k >= Sequential && k <= Hybrid }

// ParseKind maps a manifest name ("sequential", "parallel", "hybrid") to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "seq":
		return Sequential, nil
	case "parallel", "par":
		return Parallel, nil
	case "hybrid":
		return Hybrid, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Item is one deferred operation of a group. Name identifies the item in logs.
type Item struct {
	Name string
	Run  func(ctx context.Context) error
}

// NewItem is shorthand for Item{Name: name, Run: fn}.
func NewItem(name string, fn func(ctx context.Context) error) Item {
	return Item{Name: name, Run: fn}
}

// ProgressFunc receives the completed fraction of a run, in (0, 1].
// Parallel and hybrid runs call it from item goroutines, one call at a time.
type ProgressFunc func(progress float64)

// Info describes a registered group.
type Info struct {
	Key        string
	Kind       Kind
	Sequential int
	Parallel   int
	Persistent bool
}

type group struct {
	kind       Kind
	sequential []Item
	parallel   []Item
}

// snapshot copies both buckets so later AddItem calls never reach a run
// that has already started.
func (g *group) snapshot() (seq, par []Item) {
	seq = append([]Item(nil), g.sequential...)
	par = append([]Item(nil), g.parallel...)
	return seq, par
}

package frame

// registry is an identity-keyed set of subscribers for one phase that keeps
// insertion order. Removal leaves a hole which is compacted once no pass is
// iterating, so a pass never skips or repeats an entry when membership
// changes under it.
type registry struct {
	entries []any
	index   map[any]int
	holes   int
	passes  int // nesting depth of in-progress passes
}

func newRegistry() *registry {
	return &registry{
		entries: make([]any, 0, 32),
		index:   make(map[any]int, 32),
	}
}

func (r *registry) has(sub any) bool {
	_, ok := r.index[sub]
	return ok
}

// add returns false if sub is already registered.
func (r *registry) add(sub any) bool {
	if r.has(sub) {
		return false
	}
	r.index[sub] = len(r.entries)
	r.entries = append(r.entries, sub)
	return true
}

// remove returns false if sub was not registered.
func (r *registry) remove(sub any) bool {
	i, ok := r.index[sub]
	if !ok {
		return false
	}
	delete(r.index, sub)
	r.entries[i] = nil
	r.holes++
	r.compact()
	return true
}

func (r *registry) len() int { return len(r.index) }

// each calls fn for every entry present when the pass starts and still
// registered when its turn comes. Entries added during the pass are left
// for the next one.
func (r *registry) each(fn func(sub any)) {
	r.passes++
	n := len(r.entries)
	for i := 0; i < n; i++ {
		if sub := r.entries[i]; sub != nil {
			fn(sub)
		}
	}
	r.passes--
	r.compact()
}

func (r *registry) compact() {
	if r.passes > 0 || r.holes == 0 {
		return
	}
	kept := r.entries[:0]
	for _, sub := range r.entries {
		if sub == nil {
			continue
		}
		r.index[sub] = len(kept)
		kept = append(kept, sub)
	}
	clear(r.entries[len(kept):])
	r.entries = kept
	r.holes = 0
}

package scene

import "fmt"

// ObjectID names a scene object. The low 32 bits pick a slot in the world,
// the high 32 bits count how many objects that slot has held before, so an
// id kept past its object's destruction never resolves to the next tenant.
type ObjectID uint64

func makeObjectID(slot, gen uint32) ObjectID {
	return ObjectID(gen)<<32 | ObjectID(slot)
}

func (id ObjectID) Index() uint32      { return uint32(id) }
func (id ObjectID) Generation() uint32 { return uint32(id >> 32) }

func (id ObjectID) String() string {
	return fmt.Sprintf("obj#%d.%d", id.Index(), id.Generation())
}

// idPool hands out slots, most recently freed first.
type idPool struct {
	gens []uint32 // current generation per slot
	free []uint32
}

func newIDPool() *idPool {
	return &idPool{
		gens: make([]uint32, 0, 256),
		free: make([]uint32, 0, 64),
	}
}

func (p *idPool) create() ObjectID {
	if n := len(p.free); n > 0 {
		slot := p.free[n-1]
		p.free = p.free[:n-1]
		return makeObjectID(slot, p.gens[slot])
	}
	p.gens = append(p.gens, 0)
	return makeObjectID(uint32(len(p.gens)-1), 0)
}

func (p *idPool) alive(id ObjectID) bool {
	slot := int(id.Index())
	return slot < len(p.gens) && p.gens[slot] == id.Generation()
}

// destroy retires id's slot. Stale or unknown ids report false.
func (p *idPool) destroy(id ObjectID) bool {
	if !p.alive(id) {
		return false
	}
	slot := id.Index()
	p.gens[slot]++
	p.free = append(p.free, slot)
	return true
}

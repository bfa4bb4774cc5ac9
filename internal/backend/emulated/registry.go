package emulated

import (
	"sort"
	"unsafe"

	"github.com/samcharles93/memspace/internal/space"
)

type region struct {
	data     []byte
	space    space.Physical
	locked   bool
	resident space.Physical
}

func (r *region) base() uintptr {
	return uintptr(unsafe.Pointer(&r.data[0]))
}

func (r *region) contains(addr uintptr, n int) bool {
	b := r.base()
	return addr >= b && addr+uintptr(n) <= b+uintptr(len(r.data))
}

// registry maps address ranges to the region that owns them. Regions never
// overlap since each one is its own mapping.
type registry struct {
	regions []*region
}

func (g *registry) insert(r *region) {
	b := r.base()
	i := sort.Search(len(g.regions), func(i int) bool { return g.regions[i].base() >= b })
	g.regions = append(g.regions, nil)
	copy(g.regions[i+1:], g.regions[i:])
	g.regions[i] = r
}

// find returns the region containing addr, or nil.
func (g *registry) find(addr uintptr) *region {
	i := sort.Search(len(g.regions), func(i int) bool { return g.regions[i].base() > addr })
	if i == 0 {
		return nil
	}
	r := g.regions[i-1]
	if addr >= r.base()+uintptr(len(r.data)) {
		return nil
	}
	return r
}

// remove drops the region starting exactly at addr.
func (g *registry) remove(addr uintptr) *region {
	i := sort.Search(len(g.regions), func(i int) bool { return g.regions[i].base() >= addr })
	if i == len(g.regions) || g.regions[i].base() != addr {
		return nil
	}
	r := g.regions[i]
	g.regions = append(g.regions[:i], g.regions[i+1:]...)
	return r
}

package pool

import (
	"fmt"
	"sort"
	"sync"
)

// Manager is a registry of named pools.
type Manager struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// MakePool creates and registers a pool under name.
func (m *Manager) MakePool(name string, src Source, cfg PoolConfig, zero ZeroFunc) (*Pool, error) {
	p, err := NewPool(name, src, cfg, zero)
	if err != nil {
		return nil, err
	}
	if err := m.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Register adds a pool built elsewhere.
func (m *Manager) Register(p *Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[p.name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, p.name)
	}
	m.pools[p.name] = p
	return nil
}

func (m *Manager) Lookup(name string) (*Pool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[name]
	return p, ok
}

// Release frees the named pool's arenas and forgets it.
func (m *Manager) Release(name string) error {
	m.mu.Lock()
	p, ok := m.pools[name]
	delete(m.pools, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return p.Release()
}

func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.pools))
	for n := range m.pools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

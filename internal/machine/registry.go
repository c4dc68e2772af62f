package machine

// Registry maps instrument keys to machines, creating them lazily on first
// use. Owned by the engine executor.
type Registry struct {
	cfg      Config
	deps     Deps
	machines map[string]*Machine
	seeds    map[string]Snapshot
}

// NewRegistry builds a registry. Seeds, if any, rehydrate a machine the
// first time its symbol is looked up.
func NewRegistry(cfg Config, deps Deps, seeds []Snapshot) *Registry {
	seedMap := make(map[string]Snapshot, len(seeds))
	for _, s := range seeds {
		seedMap[s.Sym] = s
	}
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		machines: make(map[string]*Machine),
		seeds:    seedMap,
	}
}

// Lookup returns the machine for sym, creating it if needed.
func (r *Registry) Lookup(sym string) *Machine {
	if m, ok := r.machines[sym]; ok {
		return m
	}
	m := New(sym, r.cfg, r.deps)
	if seed, ok := r.seeds[sym]; ok {
		m.Restore(seed)
		delete(r.seeds, sym)
		r.deps.Log.Info().Str("sym", sym).Str("state", seed.State).Msg("machine rehydrated")
	}
	r.machines[sym] = m
	return m
}

// Peek returns the machine for sym without creating one.
func (r *Registry) Peek(sym string) (*Machine, bool) {
	m, ok := r.machines[sym]
	return m, ok
}

// Each visits every live machine.
func (r *Registry) Each(fn func(*Machine)) {
	for _, m := range r.machines {
		fn(m)
	}
}

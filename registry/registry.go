package registry

import "sync"

// Registry holds the process-wide busno → BusInfo map. All
// mutation funnels through it and is serialised by one lock, distinct from
// the per-bus locks of component C.
type Registry struct {
	mu       sync.Mutex
	buses    map[int]*BusInfo
	order    []int // insertion order, preserved for reporting
	displays []*DisplayRef
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{buses: make(map[int]*BusInfo)}
}

// FindByBusno is a read-only lookup.
func (r *Registry) FindByBusno(busno int) (*BusInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bi, ok := r.buses[busno]
	return bi, ok
}

// EnsureBusInfo creates an empty record if absent, with flags exists |
// name-checked | has-valid-name, and never probes.
func (r *Registry) EnsureBusInfo(busno int) *BusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bi, ok := r.buses[busno]; ok {
		return bi
	}
	bi := &BusInfo{
		Busno: busno,
		Flags: FlagExists | FlagNameChecked | FlagHasValidName,
	}
	r.buses[busno] = bi
	r.order = append(r.order, busno)
	return bi
}

// MarkDisconnected resets the EDID, addr-0x50, addr-0x37, accessible and
// probed flags for busno, and sets removed on any non-removed DisplayRef
// pointing at it.
func (r *Registry) MarkDisconnected(busno int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bi, ok := r.buses[busno]; ok {
		bi.EDID = nil
		bi.Flags &^= FlagAddr50Responsive | FlagAddr37Responsive | FlagAccessible | FlagProbed | FlagEDIDFromSysfs
	}
	for _, d := range r.displays {
		if d.IOPath.Busno == busno && !d.Removed {
			d.Removed = true
		}
	}
}

// AddDisplay creates a new DisplayRef pointing at bi and returns it.
func (r *Registry) AddDisplay(bi *BusInfo) *DisplayRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := &DisplayRef{
		ID:           newDisplayRefID(),
		IOPath:       IOPath{Kind: "i2c", Busno: bi.Busno},
		DRMConnector: bi.DRMConnectorName,
	}
	r.displays = append(r.displays, ref)
	return ref
}

// DisplaysForBusno returns the non-removed DisplayRefs currently pointing
// at busno.
func (r *Registry) DisplaysForBusno(busno int) []*DisplayRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*DisplayRef
	for _, d := range r.displays {
		if d.IOPath.Busno == busno && !d.Removed {
			out = append(out, d)
		}
	}
	return out
}

// RemoveByBusno removes the BusInfo entry entirely, once the bus device
// has also disappeared from /dev.
func (r *Registry) RemoveByBusno(busno int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buses, busno)
	for i, n := range r.order {
		if n == busno {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns copies — not references — of every BusInfo record, in
// insertion order.
func (r *Registry) Snapshot() []BusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BusInfo, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, *r.buses[n])
	}
	return out
}

// BusNumbers returns the set of busnos currently tracked, in insertion
// order.
func (r *Registry) BusNumbers() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

// withLock runs fn while holding the registry lock, for the small
// field-update points inside the probe sequence (never across I/O).
func (r *Registry) withLock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

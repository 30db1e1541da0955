// Package events is component F (Event Pipeline): the tagged Event
// record and its two delivery modes — immediate (pushed synchronously by
// the reconciler) and deferred (drained by the watcher at well-defined
// synchronisation points).
package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rockowitz/ddcutil-sub002/registry"
)

// Kind enumerates the four event kinds.
type Kind int

const (
	Connected Kind = iota + 1
	Disconnected
	DPMSAsleep
	DPMSAwake
)

func (k Kind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case DPMSAsleep:
		return "dpms_asleep"
	case DPMSAwake:
		return "dpms_awake"
	default:
		return "unknown"
	}
}

// Event is the record delivered to sinks: event
// kind, io_path, connector name (possibly empty), DisplayRef (possibly
// already removed), and a copy of the registry view at event time.
type Event struct {
	ID           uuid.UUID
	Kind         Kind
	IOPath       registry.IOPath
	DRMConnector string
	DisplayRef   *registry.DisplayRef
	AtNano       int64
	Snapshot     []registry.BusInfo
}

// Sink receives events. It must be non-blocking and must not re-enter
// any registry mutation operation; violations are logged
// by the caller, not policed here.
type Sink func(Event)

// SinkID identifies a registered sink for Unsubscribe.
type SinkID uuid.UUID

// Pipeline implements both delivery modes over one set of registered
// sinks.
type Pipeline struct {
	mu    sync.Mutex
	sinks map[SinkID]Sink
	fifo  []Event

	// Filter, when set, may veto or rewrite an event before delivery —
	// an extension point reserved for future coalescing of a disconnect
	// immediately followed by a reconnect on the same bus. Returning
	// ok=false drops the event.
	Filter func(Event) (Event, bool)
}

// New returns an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{sinks: make(map[SinkID]Sink)}
}

// Subscribe registers sink and returns an id for Unsubscribe.
func (p *Pipeline) Subscribe(sink Sink) SinkID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := SinkID(uuid.New())
	p.sinks[id] = sink
	return id
}

// Unsubscribe removes a previously registered sink. Unknown ids are a
// silent no-op.
func (p *Pipeline) Unsubscribe(id SinkID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sinks, id)
}

func (p *Pipeline) filtered(ev Event) (Event, bool) {
	if p.Filter == nil {
		return ev, true
	}
	return p.Filter(ev)
}

// Immediate pushes ev to every registered sink synchronously, as
// component E's reconciler does before returning.
func (p *Pipeline) Immediate(ev Event) {
	ev, ok := p.filtered(ev)
	if !ok {
		return
	}
	p.mu.Lock()
	sinks := make([]Sink, 0, len(p.sinks))
	for _, s := range p.sinks {
		sinks = append(sinks, s)
	}
	p.mu.Unlock()
	for _, s := range sinks {
		s(ev)
	}
}

// Enqueue appends ev to the deferred FIFO, owned by component G.
func (p *Pipeline) Enqueue(ev Event) {
	ev, ok := p.filtered(ev)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fifo = append(p.fifo, ev)
}

// Drain removes and delivers every queued event, in FIFO order, to every
// registered sink — the watcher's synchronisation point.
func (p *Pipeline) Drain() {
	p.mu.Lock()
	queued := p.fifo
	p.fifo = nil
	sinks := make([]Sink, 0, len(p.sinks))
	for _, s := range p.sinks {
		sinks = append(sinks, s)
	}
	p.mu.Unlock()

	for _, ev := range queued {
		for _, s := range sinks {
			s(ev)
		}
	}
}

// Pending reports how many deferred events are currently queued.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fifo)
}

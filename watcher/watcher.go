// Package watcher is component G: the state machine that turns
// component A's periodic sysfs snapshots (or a kernel hot-plug signal)
// into reconciler runs and pipeline deliveries.
package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rockowitz/ddcutil-sub002/bitset"
	"github.com/rockowitz/ddcutil-sub002/ddcerr"
	"github.com/rockowitz/ddcutil-sub002/events"
	"github.com/rockowitz/ddcutil-sub002/reconcile"
	"github.com/rockowitz/ddcutil-sub002/registry"
	"github.com/rockowitz/ddcutil-sub002/sysfs"
)

// State is the watcher lifecycle.
type State int

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// EventClass is an element of the non-empty subset clients pass to
// Start.
type EventClass int

const (
	ClassDisplayConnection EventClass = 1 << iota
	ClassDPMS
)

// Mode is the resolved watch mode.
type Mode int

const (
	ModeDynamic Mode = iota
	ModePoll
	ModeUdev
	ModeXEvent
)

func (m Mode) String() string {
	switch m {
	case ModePoll:
		return "poll"
	case ModeUdev:
		return "udev"
	case ModeXEvent:
		return "xevent"
	default:
		return "dynamic"
	}
}

// Config holds the watcher timing and mode options.
type Config struct {
	WatchMode Mode

	PollInterval   time.Duration
	UdevInterval   time.Duration
	XEventInterval time.Duration

	Reconcile reconcile.Config

	// AsyncProbeThreshold is the bus count at or above which the initial
	// probe of already-connected buses on Start runs concurrently, one
	// goroutine per bus, instead of serially.
	AsyncProbeThreshold int

	// pollSlice bounds how long a single sleep segment may run, so
	// cancellation is observed within ~200ms.
	pollSlice time.Duration
}

// Default returns the watcher defaults.
func Default() Config {
	return Config{
		WatchMode:           ModeDynamic,
		PollInterval:        2 * time.Second,
		UdevInterval:        2 * time.Second,
		XEventInterval:      2 * time.Second,
		Reconcile:           reconcile.Default(),
		AsyncProbeThreshold: 4,
		pollSlice:           200 * time.Millisecond,
	}
}

// UdevSource is the seam over the kernel hot-plug signal, satisfied in production by a github.com/pilebones/go-udev
// netlink monitor (see udev_linux.go) and by a fake in tests.
type UdevSource interface {
	// Start begins delivering a value on the returned channel for every
	// relevant drm/i2c-dev uevent, until ctx is done or Stop is called.
	Start(ctx context.Context) (<-chan struct{}, error)
	Stop()
}

// XEventSource is the seam over an X11 RandR screen-change wait: no pure-Go RandR client exists in
// the retrieval pack, so production wiring is left to a caller-supplied
// cgo/Xlib implementation; the reference implementation here polls like
// ModePoll.
type XEventSource interface {
	// Wait blocks until a screen-change event arrives or ctx is done.
	Wait(ctx context.Context) error
	// Terminate unblocks a pending Wait with a synthetic message rather
	// than a flag, because Wait may be inside a blocking X call.
	Terminate()
}

// Deps are the collaborators the main loop drives every iteration.
type Deps struct {
	Registry *registry.Registry
	Prober   *sysfs.Prober
	Opener   registry.BusOpener
	Pipeline *events.Pipeline

	Udev   UdevSource
	XEvent XEventSource

	// SessionType and Display back the dynamic mode resolution: a
	// session type of x11 or wayland, or a non-empty DISPLAY, selects
	// xevent mode. Default to reading the real environment.
	SessionType func() string
	Display     func() string

	Log zerolog.Logger
}

func defaultSessionType() string { return os.Getenv("XDG_SESSION_TYPE") }
func defaultDisplay() string     { return os.Getenv("DISPLAY") }

// Watcher is component G's state machine.
type Watcher struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	state   State
	classes EventClass
	mode    Mode

	prevEDID bitset.BusSet
	asleep   bitset.BusSet

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Watcher. deps.SessionType/Display default to reading the
// real environment when nil.
func New(cfg Config, deps Deps) *Watcher {
	if deps.SessionType == nil {
		deps.SessionType = defaultSessionType
	}
	if deps.Display == nil {
		deps.Display = defaultDisplay
	}
	if cfg.pollSlice == 0 {
		cfg.pollSlice = 200 * time.Millisecond
	}
	return &Watcher{cfg: cfg, deps: deps}
}

// ActiveClasses returns the currently active event classes, or invalid-operation if stopped.
func (w *Watcher) ActiveClasses() (EventClass, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Stopped {
		return 0, ddcerr.New("watcher.active_classes", ddcerr.InvalidOperation)
	}
	return w.classes, nil
}

// State reports the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start asserts DRM support, resolves the watch mode, takes an initial
// snapshot, and transitions to running.
func (w *Watcher) Start(classes EventClass) error {
	if classes == 0 {
		return ddcerr.New("watcher.start", ddcerr.InvalidArgument)
	}

	w.mu.Lock()
	if w.state != Stopped {
		w.mu.Unlock()
		return ddcerr.New("watcher.start", ddcerr.InvalidOperation)
	}
	w.mu.Unlock()

	if !w.hasDRM() {
		return ddcerr.New("watcher.start", ddcerr.InvalidOperation)
	}

	mode := w.resolveMode()

	buses, err := w.sampleEDIDBuses()
	if err != nil {
		return ddcerr.Wrap("watcher.start", -1, ddcerr.IO, err)
	}
	w.initialConnect(buses.Slice())

	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.classes = classes
	w.mode = mode
	w.state = Running
	w.prevEDID = buses
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx, mode)
	return nil
}

// Stop requests shutdown. If wait is true it blocks until the loop task
// has drained deferred events and terminated.
func (w *Watcher) Stop(wait bool) error {
	w.mu.Lock()
	if w.state != Running {
		w.mu.Unlock()
		return ddcerr.New("watcher.stop", ddcerr.InvalidOperation)
	}
	w.state = Stopping
	cancel := w.cancel
	done := w.done
	xev := w.deps.XEvent
	mode := w.mode
	w.mu.Unlock()

	if mode == ModeXEvent && xev != nil {
		// Cancellation is signalled with a synthetic termination message,
		// not the flag, because the loop may be blocked inside an X call.
		xev.Terminate()
	}
	cancel()

	if wait {
		<-done
	}
	return nil
}

func (w *Watcher) hasDRM() bool {
	_, err := os.Stat(w.deps.Prober.DRMRoot)
	return err == nil
}

// resolveMode turns a configured Mode into the concrete mode to run.
func (w *Watcher) resolveMode() Mode {
	switch w.cfg.WatchMode {
	case ModeDynamic:
		if st := w.deps.SessionType(); st == "x11" || st == "wayland" {
			return ModeXEvent
		}
		if w.deps.Display() != "" {
			return ModeXEvent
		}
		return ModePoll
	case ModeUdev:
		if w.deps.Udev == nil {
			return ModePoll
		}
		return ModeUdev
	default:
		return w.cfg.WatchMode
	}
}

func (w *Watcher) sampleEDIDBuses() (bitset.BusSet, error) {
	conns, err := w.deps.Prober.ScanConnectors()
	if err != nil {
		return bitset.BusSet{}, err
	}
	return sysfs.BusesHavingEDID(conns), nil
}

func (w *Watcher) loop(ctx context.Context, mode Mode) {
	defer close(w.done)

	var udevEvents <-chan struct{}
	if mode == ModeUdev && w.deps.Udev != nil {
		ch, err := w.deps.Udev.Start(ctx)
		if err != nil {
			w.deps.Log.Warn().Err(err).Msg("watcher: udev unavailable, falling back to poll")
			mode = ModePoll
		} else {
			udevEvents = ch
			defer w.deps.Udev.Stop()
		}
	}

	for {
		if w.shouldStop(ctx) {
			w.deps.Pipeline.Drain()
			w.mu.Lock()
			w.state = Stopped
			w.mu.Unlock()
			return
		}

		if err := w.waitForWake(ctx, mode, udevEvents); err != nil {
			if ctx.Err() != nil {
				continue // re-check shouldStop at top of loop
			}
			w.deps.Log.Warn().Err(err).Msg("watcher: wake wait failed, continuing")
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		w.reconcileOnce()
	}
}

func (w *Watcher) shouldStop(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// waitForWake blocks for either a kernel event with no timeout, or a
// sleep equal to the poll interval broken into ≤200ms slices.
func (w *Watcher) waitForWake(ctx context.Context, mode Mode, udevEvents <-chan struct{}) error {
	switch mode {
	case ModeUdev:
		select {
		case <-udevEvents:
			return nil
		case <-ctx.Done():
			return nil
		}
	case ModeXEvent:
		return w.deps.XEvent.Wait(ctx)
	default:
		return w.sleepSliced(ctx, w.cfg.PollInterval)
	}
}

func (w *Watcher) sleepSliced(ctx context.Context, total time.Duration) error {
	remaining := total
	slice := w.cfg.pollSlice
	for remaining > 0 {
		d := slice
		if d > remaining {
			d = remaining
		}
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
		remaining -= d
	}
	return nil
}

// reconcileOnce runs component E against the current sysfs view and
// pushes the resulting events, then (if active) the DPMS path.
func (w *Watcher) reconcileOnce() {
	w.mu.Lock()
	prev := w.prevEDID
	classes := w.classes
	w.mu.Unlock()

	res, err := reconcile.Reconcile(prev, w.sampleEDIDBuses, w.cfg.Reconcile)
	if err != nil {
		w.deps.Log.Warn().Err(err).Msg("watcher: reconcile failed, continuing")
		return
	}

	for _, busno := range res.Added.Slice() {
		w.onConnected(busno)
	}
	for _, busno := range res.Removed.Slice() {
		w.onDisconnected(busno)
	}

	w.mu.Lock()
	w.prevEDID = res.Settled
	w.mu.Unlock()

	if classes&ClassDPMS != 0 {
		w.reconcileDPMS(res.Settled)
	}
}

// initialConnect probes and registers every bus already carrying an EDID
// at Start time, delivering a Connected event for each — the same path a
// hot-plug takes, so a client attaching after Start still sees every
// display that was already there. Runs concurrently, one goroutine per
// bus, once the bus count reaches Config.AsyncProbeThreshold.
func (w *Watcher) initialConnect(buses []int) {
	if len(buses) >= w.cfg.AsyncProbeThreshold && w.cfg.AsyncProbeThreshold > 0 {
		var wg sync.WaitGroup
		for _, busno := range buses {
			wg.Add(1)
			go func(busno int) {
				defer wg.Done()
				w.onConnected(busno)
			}(busno)
		}
		wg.Wait()
		return
	}
	for _, busno := range buses {
		w.onConnected(busno)
	}
}

func (w *Watcher) onConnected(busno int) {
	bi := w.deps.Registry.EnsureBusInfo(busno)
	conns, _ := w.deps.Prober.ScanConnectors()
	_ = w.deps.Registry.Probe(context.Background(), bi, registry.ProbeDeps{
		Opener:     w.deps.Opener,
		Connectors: conns,
		Holder:     "watcher",
		OpenWait:   true,
	})
	ref := w.deps.Registry.AddDisplay(bi)
	w.emit(events.Connected, busno, bi.DRMConnectorName, ref)
}

func (w *Watcher) onDisconnected(busno int) {
	refs := w.deps.Registry.DisplaysForBusno(busno)
	var connector string
	if bi, ok := w.deps.Registry.FindByBusno(busno); ok {
		connector = bi.DRMConnectorName
	}
	w.deps.Registry.MarkDisconnected(busno)
	var ref *registry.DisplayRef
	if len(refs) > 0 {
		ref = refs[0]
	}
	w.emit(events.Disconnected, busno, connector, ref)
}

func (w *Watcher) reconcileDPMS(bearing bitset.BusSet) {
	w.mu.Lock()
	prevAsleep := w.asleep
	w.mu.Unlock()

	res := reconcile.ReconcileDPMS(bearing, prevAsleep, w.dpmsOracle)

	for _, busno := range res.WentAsleep.Slice() {
		w.emitFromRegistry(events.DPMSAsleep, busno)
	}
	for _, busno := range res.WokeUp.Slice() {
		w.emitFromRegistry(events.DPMSAwake, busno)
	}

	w.mu.Lock()
	w.asleep = res.NewAsleep
	w.mu.Unlock()
}

func (w *Watcher) dpmsOracle(busno int) (bool, error) {
	bi, ok := w.deps.Registry.FindByBusno(busno)
	if !ok || bi.DRMConnectorName == "" {
		return false, fmt.Errorf("watcher: no connector resolved for bus %d", busno)
	}
	return w.deps.Prober.DPMSAsleep(bi.DRMConnectorName), nil
}

func (w *Watcher) emitFromRegistry(kind events.Kind, busno int) {
	var connector string
	if bi, ok := w.deps.Registry.FindByBusno(busno); ok {
		connector = bi.DRMConnectorName
	}
	refs := w.deps.Registry.DisplaysForBusno(busno)
	var ref *registry.DisplayRef
	if len(refs) > 0 {
		ref = refs[0]
	}
	w.emit(kind, busno, connector, ref)
}

func (w *Watcher) emit(kind events.Kind, busno int, connector string, ref *registry.DisplayRef) {
	ev := events.Event{
		ID:           uuid.New(),
		Kind:         kind,
		IOPath:       registry.IOPath{Kind: "i2c", Busno: busno},
		DRMConnector: connector,
		DisplayRef:   ref,
		AtNano:       time.Now().UnixNano(),
		Snapshot:     w.deps.Registry.Snapshot(),
	}
	w.deps.Pipeline.Immediate(ev)
}

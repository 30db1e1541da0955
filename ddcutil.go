// Package ddcutil is the library entry point: it wires the sysfs probe,
// bus device gateway, lock manager, connector reconciler, event pipeline
// and watcher state machine (components A-G) into one Monitor, and
// exposes the control API clients call.
//
// → cmd/ddcwatch contains a minimal demo that logs hot-plug and DPMS
// events to stderr.
package ddcutil // import "github.com/rockowitz/ddcutil-sub002"

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rockowitz/ddcutil-sub002/events"
	"github.com/rockowitz/ddcutil-sub002/i2cbus"
	"github.com/rockowitz/ddcutil-sub002/reconcile"
	"github.com/rockowitz/ddcutil-sub002/registry"
	"github.com/rockowitz/ddcutil-sub002/sysfs"
	"github.com/rockowitz/ddcutil-sub002/watcher"
)

// Re-exported so callers never need to import the component packages
// directly for the common control-API surface.
type (
	EventClass = watcher.EventClass
	WatchMode  = watcher.Mode
	Event      = events.Event
	EventKind  = events.Kind
	Sink       = events.Sink
	SinkID     = events.SinkID
	BusInfo    = registry.BusInfo
)

const (
	ClassDisplayConnection = watcher.ClassDisplayConnection
	ClassDPMS              = watcher.ClassDPMS

	WatchDynamic = watcher.ModeDynamic
	WatchPoll    = watcher.ModePoll
	WatchUdev    = watcher.ModeUdev
	WatchXEvent  = watcher.ModeXEvent
)

// Config aggregates every configuration option the core recognises,
// grouped by the component it tunes. Zero value is not usable; start
// from Default().
type Config struct {
	// ForceReadEDID is carried in Config but New does not pass it on: the
	// watcher's probe always uses a usable sysfs edid when one is present.
	ForceReadEDID bool

	// CrossInstanceLocksEnabled enables the advisory file lock layer.
	CrossInstanceLocksEnabled bool
	FlockPollInterval         time.Duration
	FlockMaxWait              time.Duration

	ExtraStabilisationDelay   time.Duration
	StabilisationPollInterval time.Duration

	WatchMode          WatchMode
	UdevPollInterval   time.Duration
	PollInterval       time.Duration
	XEventPollInterval time.Duration

	// ForceSlaveAddress retries a slave-set with the forceful ioctl
	// variant on EBUSY.
	ForceSlaveAddress bool

	// AsyncProbeThreshold is the bus count at which initial probing
	// parallelises.
	AsyncProbeThreshold int

	Log zerolog.Logger
}

// Default returns the option defaults, the way
// jangala-dev/devicecode-go's services/hal/config package defaults a
// struct rather than loading one from a file.
func Default() Config {
	busCfg := i2cbus.Default()
	recCfg := reconcile.Default()
	watchCfg := watcher.Default()
	return Config{
		ForceReadEDID:             false,
		CrossInstanceLocksEnabled: busCfg.CrossInstanceLocksEnabled,
		FlockPollInterval:         busCfg.FlockPollInterval,
		FlockMaxWait:              busCfg.FlockMaxWait,
		ExtraStabilisationDelay:   recCfg.ExtraStabilisationDelay,
		StabilisationPollInterval: recCfg.StabilisationPollInterval,
		WatchMode:                 watchCfg.WatchMode,
		UdevPollInterval:          watchCfg.UdevInterval,
		PollInterval:              watchCfg.PollInterval,
		XEventPollInterval:        watchCfg.XEventInterval,
		ForceSlaveAddress:         busCfg.ForceSlaveAddress,
		AsyncProbeThreshold:       watchCfg.AsyncProbeThreshold,
		Log:                       zerolog.Nop(),
	}
}

// Monitor is the process-wide singleton object: one Prober, one
// Registry, one Gateway, one Pipeline and one Watcher, built once by New
// and torn down once by Close.
type Monitor struct {
	registry *registry.Registry
	prober   *sysfs.Prober
	gateway  *i2cbus.Gateway
	pipeline *events.Pipeline
	watcher  *watcher.Watcher
}

// New builds a Monitor against the real kernel sysfs/devfs paths. It does
// not start watching; call Start to begin.
func New(cfg Config) *Monitor {
	prober := sysfs.NewProber()
	reg := registry.New()
	pipeline := events.New()

	i2cbus.SetLogger(cfg.Log)
	gw := i2cbus.NewGateway(i2cbus.Config{
		ForceSlaveAddress:         cfg.ForceSlaveAddress,
		CrossInstanceLocksEnabled: cfg.CrossInstanceLocksEnabled,
		FlockPollInterval:         cfg.FlockPollInterval,
		FlockMaxWait:              cfg.FlockMaxWait,
	})

	w := watcher.New(watcher.Config{
		WatchMode:      cfg.WatchMode,
		PollInterval:   cfg.PollInterval,
		UdevInterval:   cfg.UdevPollInterval,
		XEventInterval: cfg.XEventPollInterval,
		Reconcile: reconcile.Config{
			ExtraStabilisationDelay:   cfg.ExtraStabilisationDelay,
			StabilisationPollInterval: cfg.StabilisationPollInterval,
			Sleep:                     time.Sleep,
		},
		AsyncProbeThreshold: cfg.AsyncProbeThreshold,
	}, watcher.Deps{
		Registry: reg,
		Prober:   prober,
		Opener:   registry.NewGatewayOpener(gw),
		Pipeline: pipeline,
		Udev:     &watcher.NetlinkUdevSource{Log: cfg.Log},
		XEvent:   watcher.NewPollingXEventSource(cfg.XEventPollInterval),
		Log:      cfg.Log,
	})

	return &Monitor{registry: reg, prober: prober, gateway: gw, pipeline: pipeline, watcher: w}
}

// Start begins watching for the given event classes.
func (m *Monitor) Start(classes EventClass) error { return m.watcher.Start(classes) }

// Stop ends the watcher loop. If wait, it blocks until the loop has
// fully exited.
func (m *Monitor) Stop(wait bool) error { return m.watcher.Stop(wait) }

// ActiveClasses returns the event classes the watcher was started with.
func (m *Monitor) ActiveClasses() (EventClass, error) { return m.watcher.ActiveClasses() }

// Subscribe registers sink for delivery of every future event.
func (m *Monitor) Subscribe(sink Sink) SinkID { return m.pipeline.Subscribe(sink) }

// Unsubscribe removes a previously registered sink.
func (m *Monitor) Unsubscribe(id SinkID) { m.pipeline.Unsubscribe(id) }

// Snapshot returns copies of every BusInfo record the registry holds.
func (m *Monitor) Snapshot() []BusInfo { return m.registry.Snapshot() }

// Close stops the watcher if running, releasing every resource the
// Monitor owns. Safe to call on a Monitor that was never started.
func (m *Monitor) Close() error {
	if m.watcher.State() == watcher.Stopped {
		return nil
	}
	return m.Stop(true)
}

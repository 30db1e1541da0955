// Package reconcile is component E (Connector Reconciler): a pure
// function of the previous bus-with-EDID set and the current sysfs view,
// with the stabilisation rule that suppresses spurious disconnects, and
// the optional DPMS reconciliation path.
package reconcile

import (
	"time"

	"github.com/rockowitz/ddcutil-sub002/bitset"
)

// Sampler takes one observation of the bus-with-EDID set — typically
// component A's scan_connectors() + buses_having_edid() composed
// together by the caller.
type Sampler func() (bitset.BusSet, error)

// Config holds the stabilisation timing.
type Config struct {
	ExtraStabilisationDelay   time.Duration
	StabilisationPollInterval time.Duration

	// Sleep is indirected so tests can run the stabilisation loop
	// without real wall-clock delay.
	Sleep func(time.Duration)
}

// Default returns the stabilisation timing defaults.
func Default() Config {
	return Config{
		ExtraStabilisationDelay:   500 * time.Millisecond,
		StabilisationPollInterval: 100 * time.Millisecond,
		Sleep:                     time.Sleep,
	}
}

func (c Config) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
	}
}

// Result is the outcome of one reconciliation: the sets newly appearing
// and disappearing relative to prev, and the settled sample they were
// computed from.
type Result struct {
	Added   bitset.BusSet
	Removed bitset.BusSet
	Settled bitset.BusSet
}

// Reconcile samples once, and if the sample shows any disconnect versus
// prev, runs the stabilisation resample loop before computing the
// added/removed sets.
func Reconcile(prev bitset.BusSet, sample Sampler, cfg Config) (Result, error) {
	cur, err := sample()
	if err != nil {
		return Result{}, err
	}
	if hasDisconnect(prev, cur) {
		cur, err = settle(sample, cur, cfg)
		if err != nil {
			return Result{}, err
		}
	}
	return Result{
		Added:   bitset.Sub(cur, prev),
		Removed: bitset.Sub(prev, cur),
		Settled: cur,
	}, nil
}

// hasDisconnect reports whether cur reports any bus present in prev that
// is no longer present.
func hasDisconnect(prev, cur bitset.BusSet) bool {
	return !bitset.Sub(prev, cur).Empty()
}

// settle implements the stabilisation rule: sleep extra_stabilisation_ms,
// then re-sample every stabilisation_poll_ms until two consecutive
// samples are equal; use the settled sample.
func settle(sample Sampler, first bitset.BusSet, cfg Config) (bitset.BusSet, error) {
	cfg.sleep(cfg.ExtraStabilisationDelay)
	prevSample := first
	for {
		cur, err := sample()
		if err != nil {
			return bitset.BusSet{}, err
		}
		if bitset.Equal(cur, prevSample) {
			return cur, nil
		}
		prevSample = cur
		cfg.sleep(cfg.StabilisationPollInterval)
	}
}

// SingleSampler reads only one connector's current EDID-presence, for
// the second entry point: the kernel told us which connector changed.
type SingleSampler func() (bool, error)

// SingleResult is the outcome of ReconcileSingle: at most one of Added,
// Removed carries the busno.
type SingleResult struct {
	Added   bitset.BusSet
	Removed bitset.BusSet
	HasEDID bool
}

// ReconcileSingle applies the same settling rule as Reconcile but to a
// single connector's EDID presence.
func ReconcileSingle(prevHasEDID bool, busno int, sample SingleSampler, cfg Config) (SingleResult, error) {
	cur, err := sample()
	if err != nil {
		return SingleResult{}, err
	}
	if prevHasEDID && !cur {
		cur, err = settleOne(sample, cfg)
		if err != nil {
			return SingleResult{}, err
		}
	}
	var res SingleResult
	res.HasEDID = cur
	switch {
	case cur && !prevHasEDID:
		res.Added.Set(busno)
	case !cur && prevHasEDID:
		res.Removed.Set(busno)
	}
	return res, nil
}

func settleOne(sample SingleSampler, cfg Config) (bool, error) {
	cfg.sleep(cfg.ExtraStabilisationDelay)
	prevSample := false
	first := true
	for {
		cur, err := sample()
		if err != nil {
			return false, err
		}
		if !first && cur == prevSample {
			return cur, nil
		}
		prevSample = cur
		first = false
		cfg.sleep(cfg.StabilisationPollInterval)
	}
}

// DPMSOracle reports whether busno's display currently shows asleep.
type DPMSOracle func(busno int) (bool, error)

// DPMSResult is the outcome of ReconcileDPMS: the buses that newly went
// asleep or woke, and the settled asleep set to carry into the next
// round.
type DPMSResult struct {
	WentAsleep bitset.BusSet
	WokeUp     bitset.BusSet
	NewAsleep  bitset.BusSet
}

// ReconcileDPMS compares the oracle's current reading against
// prevAsleep for every bus in bearing (the current EDID-bearing set). A
// bus absent from bearing never appears in NewAsleep — DPMS state does
// not survive disconnection.
func ReconcileDPMS(bearing, prevAsleep bitset.BusSet, oracle DPMSOracle) DPMSResult {
	var res DPMSResult
	for _, busno := range bearing.Slice() {
		asleep, err := oracle(busno)
		if err != nil {
			// A transient oracle failure carries the previous state
			// forward rather than manufacturing a spurious transition.
			if prevAsleep.Has(busno) {
				res.NewAsleep.Set(busno)
			}
			continue
		}
		wasAsleep := prevAsleep.Has(busno)
		switch {
		case asleep && !wasAsleep:
			res.WentAsleep.Set(busno)
		case !asleep && wasAsleep:
			res.WokeUp.Set(busno)
		}
		if asleep {
			res.NewAsleep.Set(busno)
		}
	}
	return res
}

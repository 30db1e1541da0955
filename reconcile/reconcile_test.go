package reconcile_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub002/bitset"
	"github.com/rockowitz/ddcutil-sub002/reconcile"
)

func noSleepConfig() reconcile.Config {
	cfg := reconcile.Default()
	cfg.Sleep = func(time.Duration) {}
	return cfg
}

func TestReconcileAddedAndRemovedNoDisconnect(t *testing.T) {
	prev := bitset.Of(1, 2)
	calls := 0
	sample := func() (bitset.BusSet, error) {
		calls++
		return bitset.Of(1, 2, 3), nil
	}

	res, err := reconcile.Reconcile(prev, sample, noSleepConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.Added.Slice())
	assert.Empty(t, res.Removed.Slice())
	assert.Equal(t, 1, calls, "no disconnect means no stabilisation resample")
}

func TestReconcileSettlesOnDisconnectUntilTwoSamplesAgree(t *testing.T) {
	prev := bitset.Of(1, 2)
	seq := []bitset.BusSet{
		bitset.Of(1),    // initial sample: 2 looks disconnected
		bitset.Of(1, 2), // resample: 2 reappeared (spurious)
		bitset.Of(1),    // resample: 2 gone again
		bitset.Of(1),    // resample: agrees with previous -> settle
	}
	i := 0
	sample := func() (bitset.BusSet, error) {
		s := seq[i]
		if i < len(seq)-1 {
			i++
		}
		return s, nil
	}

	res, err := reconcile.Reconcile(prev, sample, noSleepConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Removed.Slice())
	assert.Empty(t, res.Added.Slice())
	assert.Equal(t, []int{1}, res.Settled.Slice())
}

func TestReconcilePropagatesSampleError(t *testing.T) {
	boom := errors.New("sysfs unavailable")
	sample := func() (bitset.BusSet, error) { return bitset.BusSet{}, boom }
	_, err := reconcile.Reconcile(bitset.Of(1), sample, noSleepConfig())
	require.ErrorIs(t, err, boom)
}

func TestReconcileSingleAddedOnNewEDID(t *testing.T) {
	sample := func() (bool, error) { return true, nil }
	res, err := reconcile.ReconcileSingle(false, 6, sample, noSleepConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{6}, res.Added.Slice())
	assert.Empty(t, res.Removed.Slice())
	assert.True(t, res.HasEDID)
}

func TestReconcileSingleRemovedSettlesFirst(t *testing.T) {
	seq := []bool{false, true, false, false}
	i := 0
	sample := func() (bool, error) {
		v := seq[i]
		if i < len(seq)-1 {
			i++
		}
		return v, nil
	}
	res, err := reconcile.ReconcileSingle(true, 6, sample, noSleepConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{6}, res.Removed.Slice())
	assert.False(t, res.HasEDID)
}

func TestReconcileDPMSTransitions(t *testing.T) {
	bearing := bitset.Of(1, 2, 3)
	prevAsleep := bitset.Of(2)
	oracle := func(busno int) (bool, error) {
		switch busno {
		case 1:
			return true, nil // newly asleep
		case 2:
			return false, nil // woke up
		default:
			return false, nil // stays awake
		}
	}

	res := reconcile.ReconcileDPMS(bearing, prevAsleep, oracle)
	assert.Equal(t, []int{1}, res.WentAsleep.Slice())
	assert.Equal(t, []int{2}, res.WokeUp.Slice())
	assert.Equal(t, []int{1}, res.NewAsleep.Slice())
}

func TestReconcileDPMSDropsDisappearedBusFromAsleepSet(t *testing.T) {
	bearing := bitset.Of(1) // bus 2 disconnected entirely
	prevAsleep := bitset.Of(1, 2)
	oracle := func(busno int) (bool, error) { return true, nil }

	res := reconcile.ReconcileDPMS(bearing, prevAsleep, oracle)
	assert.Equal(t, []int{1}, res.NewAsleep.Slice())
}

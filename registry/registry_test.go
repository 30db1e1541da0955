package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub002/registry"
)

func TestEnsureBusInfoIsIdempotentAndDoesNotProbe(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)
	require.Equal(t, 6, bi.Busno)
	assert.True(t, bi.Flags.Has(registry.FlagExists))
	assert.True(t, bi.Flags.Has(registry.FlagNameChecked))
	assert.False(t, bi.Flags.Has(registry.FlagProbed))

	again := r.EnsureBusInfo(6)
	assert.Same(t, bi, again)
}

func TestMarkDisconnectedResetsFlagsAndRemovesDisplay(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)
	bi.Flags |= registry.FlagProbed | registry.FlagAddr50Responsive | registry.FlagAccessible

	ref := r.AddDisplay(bi)
	require.False(t, ref.Removed)

	r.MarkDisconnected(6)

	got, ok := r.FindByBusno(6)
	require.True(t, ok)
	assert.False(t, got.Flags.Has(registry.FlagProbed))
	assert.False(t, got.Flags.Has(registry.FlagAddr50Responsive))
	assert.Nil(t, got.EDID)
	assert.True(t, ref.Removed)
}

func TestRemoveByBusnoDeletesRecord(t *testing.T) {
	r := registry.New()
	r.EnsureBusInfo(6)
	r.RemoveByBusno(6)
	_, ok := r.FindByBusno(6)
	assert.False(t, ok)
}

func TestSnapshotReturnsCopiesNotReferences(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	snap := r.Snapshot()
	require.Len(t, snap, 1)

	bi.Flags |= registry.FlagProbed
	assert.False(t, snap[0].Flags.Has(registry.FlagProbed), "snapshot must not alias live BusInfo")
}

func TestSnapshotPreservesInsertionOrder(t *testing.T) {
	r := registry.New()
	r.EnsureBusInfo(6)
	r.EnsureBusInfo(2)
	r.EnsureBusInfo(9)

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int{6, 2, 9}, []int{snap[0].Busno, snap[1].Busno, snap[2].Busno})
}

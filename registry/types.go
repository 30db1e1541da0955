// Package registry is component D (Bus Registry): the process-wide
// busno → BusInfo map, the DisplayRef handles clients hold, and the
// nine-step probe sequence. All mutation funnels through Registry and is
// serialised by one registry lock.
package registry

import (
	"github.com/google/uuid"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
	"github.com/rockowitz/ddcutil-sub002/edid"
	"github.com/rockowitz/ddcutil-sub002/i2cbus"
)

// Flags is the BusInfo flag set, modelled as a bitmask the way
// i2cbus.Functionality models kernel capability bits.
type Flags uint16

const (
	FlagExists Flags = 1 << iota
	FlagNameChecked
	FlagHasValidName
	FlagProbed
	FlagAccessible
	FlagAddr50Responsive
	FlagAddr37Responsive
	FlagEDIDFromSysfs
	FlagLaptopPanel
	FlagDRMConnectorChecked
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// ConnectorFoundBy records how drm_connector_name was discovered.
type ConnectorFoundBy int

const (
	ConnectorNotFound ConnectorFoundBy = iota
	ConnectorFoundByBusno
	ConnectorFoundByEDID
)

// BusInfo is one record per /dev/i2c-N ever seen in this process.
// BusInfo.Busno never changes once created.
type BusInfo struct {
	Busno int
	Flags Flags

	Driver string

	DRMConnectorName string
	ConnectorFoundBy ConnectorFoundBy
	DRMConnectorID   int

	EDID *edid.EDID

	Functionality i2cbus.Functionality

	OpenError error

	LastCheckedDPMSAsleep bool
}

// IOPath identifies a bus device kind+number.
type IOPath struct {
	Kind  string // always "i2c"
	Busno int
}

// DisplayRef is a stable client handle that owns no kernel resources. It
// carries no reference count of its own. Its relation to BusInfo is a weak
// back-reference: lookup by Busno through the owning Registry, never a
// pointer, so a disconnect-then-reconnect cycle produces a fresh
// DisplayRef instead of resurrecting this one.
type DisplayRef struct {
	ID           uuid.UUID
	IOPath       IOPath
	DRMConnector string
	Removed      bool
}

// newDisplayRefID is indirected through a var so tests can substitute a
// deterministic generator.
var newDisplayRefID = uuid.New

// ErrNotFound is the registry's not-found error, carrying ddcerr.NotFound.
// FindByBusno does not return it; it reports a miss through its bool result.
var ErrNotFound = ddcerr.New("registry", ddcerr.NotFound)

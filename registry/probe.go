package registry

import (
	"context"

	"github.com/rockowitz/ddcutil-sub002/edid"
	"github.com/rockowitz/ddcutil-sub002/sysfs"
)

// laptopPanelMfgIDs are EDID manufacturer codes conventionally assigned
// to embedded laptop panel vendors, used as an "EDID shape" heuristic
// since no built-in panel flag exists in the base EDID block this
// package exposes.
var laptopPanelMfgIDs = map[string]bool{
	"AUO": true, "CMN": true, "CMO": true, "LGD": true, "BOE": true,
	"SDC": true, "CSO": true, "SHP": true, "IVO": true,
}

func classifyLaptopPanel(e *edid.EDID) bool {
	return e != nil && laptopPanelMfgIDs[e.MfgID]
}

// ProbeDeps carries the component B/A collaborators and options the
// probe sequence needs. Connectors is the current sysfs connector
// snapshot (from component A's scan_connectors(), already taken by the
// caller — the probe sequence itself never rescans).
type ProbeDeps struct {
	Opener        BusOpener
	Connectors    []sysfs.ConnectorRecord
	ForceReadEDID bool
	OpenWait      bool
	Holder        string
}

// addr50 and addr37 are the well-known DDC/CI probe addresses.
const (
	addr50 = 0x50
	addr37 = 0x37
)

// Probe runs the nine-step sequence against bi.
// Idempotent: if FlagProbed is already set, it returns immediately.
func (r *Registry) Probe(ctx context.Context, bi *BusInfo, deps ProbeDeps) error {
	alreadyProbed := false
	r.withLock(func() {
		if bi.Flags.Has(FlagProbed) {
			alreadyProbed = true
		}
	})
	if alreadyProbed {
		return nil
	}

	// Step 1: trust sysfs edid unless force_read_edid is set.
	if !deps.ForceReadEDID {
		if conn, ok := sysfs.ConnectorForBusno(deps.Connectors, bi.Busno); ok && len(conn.EDIDBytes) >= edid.Size {
			if parsed, err := edid.Parse(edid.Truncate(conn.EDIDBytes)); err == nil {
				r.withLock(func() {
					bi.EDID = parsed
					bi.Flags |= FlagEDIDFromSysfs | FlagAddr50Responsive
					bi.DRMConnectorName = conn.ConnectorName
					bi.DRMConnectorID = conn.ConnectorID
					bi.ConnectorFoundBy = ConnectorFoundByBusno
					bi.Flags |= FlagDRMConnectorChecked
				})
			}
		}
	}

	// Step 2: open the bus.
	dev, err := deps.Opener.Open(ctx, bi.Busno, deps.Holder, deps.OpenWait)
	if err != nil {
		r.withLock(func() { bi.OpenError = err })
		return err
	}
	defer dev.Close() // Step 7 (deferred so steps 3-6 run with the bus open).

	// Step 3: record functionality.
	if fn, ferr := dev.Functionality(); ferr == nil {
		r.withLock(func() { bi.Functionality = fn })
	}

	// Step 4: read EDID from the device if not already known.
	hadEDID := false
	r.withLock(func() { hadEDID = bi.EDID != nil })
	if !hadEDID {
		if raw, rerr := dev.ReadEDID(); rerr == nil {
			if parsed, perr := edid.Parse(raw); perr == nil {
				r.withLock(func() {
					bi.EDID = parsed
					bi.Flags |= FlagAddr50Responsive
				})
			}
			// A checksum failure leaves the record untouched.
		}
		// A short read/IO failure likewise leaves the record untouched.
	}

	// Step 5: classify laptop panel by EDID shape.
	var fromSysfs, addr50OK bool
	var e *edid.EDID
	r.withLock(func() {
		fromSysfs = bi.Flags.Has(FlagEDIDFromSysfs)
		addr50OK = bi.Flags.Has(FlagAddr50Responsive)
		e = bi.EDID
	})
	isLaptop := false
	if addr50OK && !fromSysfs {
		isLaptop = classifyLaptopPanel(e)
		if isLaptop {
			r.withLock(func() { bi.Flags |= FlagLaptopPanel })
		}
	} else {
		r.withLock(func() { isLaptop = bi.Flags.Has(FlagLaptopPanel) })
	}

	// Step 6: probe slave address 0x37, skipped for laptop panels
	// (invariant 6: never address-0x37-probed).
	if !isLaptop {
		if probeAddr37(dev) {
			r.withLock(func() { bi.Flags |= FlagAddr37Responsive })
		}
	}

	// Step 7 happens via the deferred dev.Close() above.

	// Step 8: resolve the connector by EDID if still unknown.
	var connectorKnown bool
	r.withLock(func() { connectorKnown = bi.DRMConnectorName != "" })
	if !connectorKnown && e != nil {
		if conn, ok := sysfs.ConnectorForEDID(deps.Connectors, e.Raw[:]); ok {
			r.withLock(func() {
				bi.DRMConnectorName = conn.ConnectorName
				bi.DRMConnectorID = conn.ConnectorID
				bi.ConnectorFoundBy = ConnectorFoundByEDID
				bi.Flags |= FlagDRMConnectorChecked
			})
		}
	}

	// Step 9: set probed.
	r.withLock(func() { bi.Flags |= FlagProbed | FlagAccessible })
	return nil
}

// probeAddr37 tries a 1-byte write first; if that fails, a 4-byte read;
// either success means responsive.
func probeAddr37(dev BusDevice) bool {
	if err := dev.Write(addr37, []byte{0x00}); err == nil {
		return true
	}
	_, err := dev.Read(addr37, 4)
	return err == nil
}

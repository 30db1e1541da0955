// Package sysfs is component A (Sysfs Probe): a pure, read-only view of the
// kernel's DRM/I²C picture under /sys and /dev, grounded on google-periph's
// host/sysfs package (which opens and enumerates /dev/i2c-N the same way)
// generalised from "open one bus" to "enumerate and classify every bus".
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rockowitz/ddcutil-sub002/bitset"
	"github.com/rockowitz/ddcutil-sub002/edid"
)

// ignorablePrefixes are sysfs bus "name" prefixes that never carry a
// DDC-capable monitor.
var ignorablePrefixes = []string{
	"SMBus",
	"Synopsys DesignWare",
	"soc:i2cdsi",
	"smu",
	"mac-io",
	"u4",
	"AMDGPU SMU",
}

// Prober reads the kernel's DRM/I²C sysfs tree. All three roots are
// overridable so tests can point them at a fake tree; the zero value is not
// usable — construct with NewProber.
type Prober struct {
	I2CRoot string // default /sys/bus/i2c/devices
	DRMRoot string // default /sys/class/drm
	DevRoot string // default /dev
}

// NewProber returns a Prober rooted at the real kernel sysfs/devfs paths.
func NewProber() *Prober {
	return &Prober{
		I2CRoot: "/sys/bus/i2c/devices",
		DRMRoot: "/sys/class/drm",
		DevRoot: "/dev",
	}
}

// ListAttachedBuses returns the set of non-ignorable I²C buses listed as
// i2c-N entries under I2CRoot. Whether a /dev/i2c-N node exists for a bus
// is not checked.
func (p *Prober) ListAttachedBuses() (bitset.BusSet, error) {
	var out bitset.BusSet
	entries, err := os.ReadDir(p.I2CRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}
	for _, ent := range entries {
		busno, ok := busNumFromDeviceDir(ent.Name())
		if !ok {
			continue
		}
		if p.isIgnorable(ent.Name(), busno) {
			continue
		}
		out.Set(busno)
	}
	return out, nil
}

func busNumFromDeviceDir(name string) (int, bool) {
	const prefix = "i2c-"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *Prober) isIgnorable(deviceDir string, busno int) bool {
	name := p.readBusName(deviceDir)
	for _, pfx := range ignorablePrefixes {
		if strings.HasPrefix(name, pfx) {
			return true
		}
	}
	driver := p.busDriver(deviceDir)
	if driver == "nouveau" && !strings.HasPrefix(name, "nvkm-") {
		return true
	}
	if !p.hasDisplayOrDockClass(deviceDir) {
		return true
	}
	return false
}

func (p *Prober) readBusName(deviceDir string) string {
	b, err := os.ReadFile(filepath.Join(p.I2CRoot, deviceDir, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// busDriver resolves the kernel driver of the device that owns this I²C
// adapter, by following the "device/driver" symlink's basename.
func (p *Prober) busDriver(deviceDir string) string {
	link, err := os.Readlink(filepath.Join(p.I2CRoot, deviceDir, "device", "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// BusDriver resolves the kernel driver of the video adapter that owns
// busno, for display in a registry record.
func (p *Prober) BusDriver(busno int) string {
	return p.busDriver(fmt.Sprintf("i2c-%d", busno))
}

// hasDisplayOrDockClass walks the "device" symlink chain to a PCI node and
// checks its class is 0x03xxxx (display) or 0x0Axxxx (docking station).
// A read failure mid-walk is treated as "no match" rather than an error —
// the overall scan never fails.
func (p *Prober) hasDisplayOrDockClass(deviceDir string) bool {
	dir := filepath.Join(p.I2CRoot, deviceDir, "device")
	for {
		b, err := os.ReadFile(filepath.Join(dir, "class"))
		if err == nil {
			class := strings.TrimSpace(string(b))
			class = strings.TrimPrefix(class, "0x")
			if len(class) < 2 {
				return false
			}
			switch class[:2] {
			case "03", "0a", "0A":
				return true
			default:
				return false
			}
		}
		dir = filepath.Join(dir, "device")
		if _, err := os.Stat(dir); err != nil {
			return false
		}
	}
}

// ScanConnectors returns the ordered connector list. A connector whose
// directory has vanished by the time its connector_id is read is dropped.
// An attribute that cannot be read (EACCES included) does not drop the
// record; the corresponding field is left at its zero value.
func (p *Prober) ScanConnectors() ([]ConnectorRecord, error) {
	entries, err := os.ReadDir(p.DRMRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []ConnectorRecord
	for _, ent := range entries {
		card, connType, idx, ok := parseConnectorName(ent.Name())
		if !ok {
			continue
		}
		rec, ok := p.readConnector(ent.Name(), card, connType, idx)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	SortConnectors(out)
	return out, nil
}

func (p *Prober) readConnector(name string, card int, connType string, idx int) (ConnectorRecord, bool) {
	dir := filepath.Join(p.DRMRoot, name)
	rec := ConnectorRecord{
		ConnectorName: name,
		CardNum:       card,
		ConnType:      connType,
		TypeIndex:     idx,
		I2CBusno:      -1,
		BaseBusno:     -1,
		IsDP:          isDPConnType(connType),
	}

	if id, ok := p.readIntAttr(dir, "connector_id"); ok {
		rec.ConnectorID = id
	} else {
		// connector_id missing entirely means the directory vanished mid-scan.
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return rec, false
		}
	}

	rec.Status = p.readStrAttr(dir, "status")
	rec.Enabled = p.readStrAttr(dir, "enabled") == "enabled"
	rec.EDIDBytes = p.readEDIDAttr(dir)
	rec.I2CBusno = p.busnoForConnector(dir, rec.IsDP)
	if rec.IsDP {
		rec.BaseBusno = rec.I2CBusno
	}
	return rec, true
}

func (p *Prober) readIntAttr(dir, attr string) (int, bool) {
	b, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *Prober) readStrAttr(dir, attr string) string {
	b, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (p *Prober) readEDIDAttr(dir string) []byte {
	b, err := os.ReadFile(filepath.Join(dir, "edid"))
	if err != nil {
		return nil
	}
	if len(b) < edid.Size {
		return nil
	}
	return b
}

// busnoForConnector resolves the i2c bus number backing a connector.
func (p *Prober) busnoForConnector(dir string, isDP bool) int {
	if isDP {
		if n, ok := p.i2cSubdirBusno(dir); ok {
			return n
		}
		if n, ok := p.ddcI2cDevBusno(dir); ok {
			return n
		}
		if n, ok := p.dpAuxBusno(dir); ok {
			return n
		}
		return -1
	}
	if n, ok := p.ddcI2cDevBusno(dir); ok {
		return n
	}
	return -1
}

func (p *Prober) i2cSubdirBusno(dir string) (int, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false
	}
	for _, ent := range entries {
		if n, ok := busNumFromDeviceDir(ent.Name()); ok {
			return n, true
		}
	}
	return 0, false
}

func (p *Prober) ddcI2cDevBusno(dir string) (int, bool) {
	sub := filepath.Join(dir, "ddc", "i2c-dev")
	entries, err := os.ReadDir(sub)
	if err != nil {
		return 0, false
	}
	for _, ent := range entries {
		if n, ok := busNumFromDeviceDir(ent.Name()); ok {
			return n, true
		}
	}
	return 0, false
}

func (p *Prober) dpAuxBusno(dir string) (int, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, "drm_dp_aux*"))
	if err != nil || len(matches) == 0 {
		return 0, false
	}
	for _, m := range matches {
		entries, err := os.ReadDir(m)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if n, ok := busNumFromDeviceDir(ent.Name()); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// DPMSAsleep reports whether the connector's "dpms" sysfs attribute shows
// a sleep state (anything but "On"). A missing attribute (connector has
// no dpms property, or vanished) is reported as not-asleep rather than
// an error, matching component A's "the overall operation never fails"
// contract.
func (p *Prober) DPMSAsleep(connectorName string) bool {
	v := p.readStrAttr(filepath.Join(p.DRMRoot, connectorName), "dpms")
	return v != "" && v != "On"
}

// BusesHavingEDID returns the BusSet of bus numbers whose connector carries
// a usable EDID.
func BusesHavingEDID(conns []ConnectorRecord) bitset.BusSet {
	var out bitset.BusSet
	for _, c := range conns {
		if c.I2CBusno >= 0 && len(c.EDIDBytes) >= edid.Size {
			out.Set(c.I2CBusno)
		}
	}
	return out
}

// ConnectorForBusno does a linear scan for the connector claiming busno.
func ConnectorForBusno(conns []ConnectorRecord, busno int) (*ConnectorRecord, bool) {
	for i := range conns {
		if conns[i].I2CBusno == busno {
			return &conns[i], true
		}
	}
	return nil, false
}

// ConnectorForID does a linear scan for the connector with the given
// connector_id. connector_id 0 is a valid id, not a sentinel, so the scan never special-cases it.
func ConnectorForID(conns []ConnectorRecord, id int) (*ConnectorRecord, bool) {
	for i := range conns {
		if conns[i].ConnectorID == id {
			return &conns[i], true
		}
	}
	return nil, false
}

// ConnectorForEDID does a linear scan for the connector whose edid attribute
// matches raw on the first edid.Size bytes.
func ConnectorForEDID(conns []ConnectorRecord, raw []byte) (*ConnectorRecord, bool) {
	want := edid.Truncate(raw)
	for i := range conns {
		if len(conns[i].EDIDBytes) < edid.Size {
			continue
		}
		if string(edid.Truncate(conns[i].EDIDBytes)) == string(want) {
			return &conns[i], true
		}
	}
	return nil, false
}

package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
	"github.com/rockowitz/ddcutil-sub002/i2cbus"
	"github.com/rockowitz/ddcutil-sub002/registry"
	"github.com/rockowitz/ddcutil-sub002/sysfs"
)

// fakeDevice and fakeOpener stand in for component B in registry tests,
// the way google-periph's conn/i2c/i2ctest fakes a bus for its own tests.
type fakeDevice struct {
	closed bool

	funcs    i2cbus.Functionality
	funcsErr error

	edidRaw []byte
	edidErr error

	writeErr error
	readErr  error
}

func (d *fakeDevice) Close()                                      { d.closed = true }
func (d *fakeDevice) SetSlaveAddress(addr uint16) error            { return nil }
func (d *fakeDevice) Functionality() (i2cbus.Functionality, error) { return d.funcs, d.funcsErr }
func (d *fakeDevice) ReadEDID() ([]byte, error)                    { return d.edidRaw, d.edidErr }
func (d *fakeDevice) Write(addr uint16, data []byte) error         { return d.writeErr }
func (d *fakeDevice) Read(addr uint16, n int) ([]byte, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	return make([]byte, n), nil
}

type fakeOpener struct {
	dev    *fakeDevice
	openErr error
}

func (o *fakeOpener) Open(ctx context.Context, busno int, holder string, wait bool) (registry.BusDevice, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.dev, nil
}

func buildEDID(t *testing.T, mfg [2]byte) []byte {
	t.Helper()
	raw := make([]byte, 128)
	copy(raw, []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00})
	raw[8], raw[9] = mfg[0], mfg[1]
	var sum byte
	for _, b := range raw[:127] {
		sum += b
	}
	raw[127] = byte(256 - int(sum)%256)
	return raw
}

// acrMfgBytes encodes "ACR" (a desktop-monitor vendor code, not a laptop
// panel one) via the VESA 5-bit-packed-letter scheme.
func acrMfgBytes() [2]byte {
	v := uint16(1)<<10 | uint16(3)<<5 | uint16(18) // A=1 C=3 R=18
	return [2]byte{byte(v >> 8), byte(v)}
}

// auoMfgBytes encodes "AUO", a laptop panel vendor code.
func auoMfgBytes() [2]byte {
	v := uint16(1)<<10 | uint16(21)<<5 | uint16(15) // A=1 U=21 O=15
	return [2]byte{byte(v >> 8), byte(v)}
}

func TestProbeOpenFailureRecordsOpenError(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	opener := &fakeOpener{openErr: ddcerr.New("i2cbus.open", ddcerr.IO)}
	err := r.Probe(context.Background(), bi, registry.ProbeDeps{Opener: opener, Holder: "test"})
	require.Error(t, err)
	assert.Equal(t, err, bi.OpenError)
	assert.False(t, bi.Flags.Has(registry.FlagProbed))
}

func TestProbeIsIdempotent(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)
	bi.Flags |= registry.FlagProbed

	opener := &fakeOpener{dev: &fakeDevice{}}
	err := r.Probe(context.Background(), bi, registry.ProbeDeps{Opener: opener, Holder: "test"})
	require.NoError(t, err)
	assert.False(t, opener.dev.closed, "an already-probed record must not reopen the bus")
}

func TestProbeReadsEDIDFromDeviceAndSets50Responsive(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	raw := buildEDID(t, acrMfgBytes())
	dev := &fakeDevice{edidRaw: raw}
	opener := &fakeOpener{dev: dev}

	err := r.Probe(context.Background(), bi, registry.ProbeDeps{Opener: opener, Holder: "test"})
	require.NoError(t, err)
	assert.True(t, bi.Flags.Has(registry.FlagAddr50Responsive))
	assert.True(t, bi.Flags.Has(registry.FlagProbed))
	require.NotNil(t, bi.EDID)
	assert.Equal(t, "ACR", bi.EDID.MfgID)
	assert.True(t, dev.closed)
}

func TestProbeSkipsAddr37ForLaptopPanel(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	raw := buildEDID(t, auoMfgBytes())
	dev := &fakeDevice{edidRaw: raw, writeErr: ddcerr.New("write", ddcerr.IO), readErr: ddcerr.New("read", ddcerr.IO)}
	opener := &fakeOpener{dev: dev}

	err := r.Probe(context.Background(), bi, registry.ProbeDeps{Opener: opener, Holder: "test"})
	require.NoError(t, err)
	assert.True(t, bi.Flags.Has(registry.FlagLaptopPanel))
	assert.False(t, bi.Flags.Has(registry.FlagAddr37Responsive))
}

func TestProbeSetsAddr37ResponsiveOnSuccessfulWrite(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	raw := buildEDID(t, acrMfgBytes())
	dev := &fakeDevice{edidRaw: raw}
	opener := &fakeOpener{dev: dev}

	err := r.Probe(context.Background(), bi, registry.ProbeDeps{Opener: opener, Holder: "test"})
	require.NoError(t, err)
	assert.True(t, bi.Flags.Has(registry.FlagAddr37Responsive))
}

func TestProbeUsesSysfsEDIDWhenAvailable(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	raw := buildEDID(t, acrMfgBytes())
	conns := []sysfs.ConnectorRecord{{
		ConnectorName: "card0-DP-1",
		ConnectorID:   3,
		I2CBusno:      6,
		EDIDBytes:     raw,
	}}
	dev := &fakeDevice{} // ReadEDID must never be consulted
	opener := &fakeOpener{dev: dev}

	err := r.Probe(context.Background(), bi, registry.ProbeDeps{
		Opener: opener, Connectors: conns, Holder: "test",
	})
	require.NoError(t, err)
	assert.True(t, bi.Flags.Has(registry.FlagEDIDFromSysfs))
	assert.Equal(t, "card0-DP-1", bi.DRMConnectorName)
	assert.Equal(t, registry.ConnectorFoundByBusno, bi.ConnectorFoundBy)
}

func TestProbeForceReadEDIDIgnoresSysfs(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	sysfsRaw := buildEDID(t, auoMfgBytes())
	deviceRaw := buildEDID(t, acrMfgBytes())
	conns := []sysfs.ConnectorRecord{{ConnectorName: "card0-DP-1", I2CBusno: 6, EDIDBytes: sysfsRaw}}
	dev := &fakeDevice{edidRaw: deviceRaw}
	opener := &fakeOpener{dev: dev}

	err := r.Probe(context.Background(), bi, registry.ProbeDeps{
		Opener: opener, Connectors: conns, ForceReadEDID: true, Holder: "test",
	})
	require.NoError(t, err)
	assert.False(t, bi.Flags.Has(registry.FlagEDIDFromSysfs))
	assert.Equal(t, "ACR", bi.EDID.MfgID)
}

func TestProbeFindsConnectorByEDIDWhenBusnoUnmatched(t *testing.T) {
	r := registry.New()
	bi := r.EnsureBusInfo(6)

	raw := buildEDID(t, acrMfgBytes())
	conns := []sysfs.ConnectorRecord{{ConnectorName: "card0-HDMI-A-1", ConnectorID: 7, I2CBusno: -1, EDIDBytes: raw}}
	dev := &fakeDevice{edidRaw: raw}
	opener := &fakeOpener{dev: dev}

	err := r.Probe(context.Background(), bi, registry.ProbeDeps{Opener: opener, Connectors: conns, Holder: "test"})
	require.NoError(t, err)
	assert.Equal(t, "card0-HDMI-A-1", bi.DRMConnectorName)
	assert.Equal(t, registry.ConnectorFoundByEDID, bi.ConnectorFoundBy)
}

package i2cbus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
	"github.com/rockowitz/ddcutil-sub002/dlock"
)

// Config holds the process-wide gateway options.
type Config struct {
	ForceSlaveAddress         bool
	CrossInstanceLocksEnabled bool
	FlockPollInterval         time.Duration
	FlockMaxWait              time.Duration

	// DriverName reports the kernel driver bound to busno (e.g. "nvidia"),
	// consulted only on an ioctl EINVAL to gate the fileio-fallback quirk.
	// Defaults to driverNameFromSysfs.
	DriverName func(busno int) string
}

// Default returns the gateway defaults, the way
// jangala-dev/devicecode-go's services/hal/config package defaults a
// struct rather than loading one from a file.
func Default() Config {
	return Config{
		ForceSlaveAddress:         false,
		CrossInstanceLocksEnabled: true,
		FlockPollInterval:         10 * time.Millisecond,
		FlockMaxWait:              2 * time.Second,
		DriverName:                driverNameFromSysfs,
	}
}

// Gateway is component B: all direct interaction with /dev/i2c-N,
// gated by component C's two-layer lock.
type Gateway struct {
	cfg   Config
	locks *dlock.InProcManager
}

// NewGateway builds a Gateway. It owns the in-process lock table; the
// file lock is created per open, since it wraps a path rather than a
// shared handle.
func NewGateway(cfg Config) *Gateway {
	if cfg.DriverName == nil {
		cfg.DriverName = driverNameFromSysfs
	}
	return &Gateway{cfg: cfg, locks: dlock.NewInProcManager()}
}

// Device is an open /dev/i2c-N descriptor plus the locks held for it.
type Device struct {
	gw    *Gateway
	busno int
	f     *os.File
	rel   dlock.Release
	flock *dlock.FileLock
}

func devPath(busno int) string { return fmt.Sprintf("/dev/i2c-%d", busno) }

// Open acquires the in-process lock, opens the device, and — unless
// disabled — the cross-process advisory lock. holder identifies
// the caller for re-entrancy/diagnostics.
func (g *Gateway) Open(ctx context.Context, busno int, holder string, wait bool) (*Device, error) {
	rel, err := g.acquireInProc(ctx, busno, holder, wait)
	if err != nil {
		return nil, err
	}

	f, oerr := os.OpenFile(devPath(busno), os.O_RDWR, 0)
	if oerr != nil {
		rel()
		return nil, ddcerr.Wrap("i2cbus.open", busno, ddcerr.IO, oerr)
	}

	dev := &Device{gw: g, busno: busno, f: f, rel: rel}

	if g.cfg.CrossInstanceLocksEnabled {
		fl := dlock.NewFileLock(devPath(busno))
		if ferr := fl.Acquire(busno, g.cfg.FlockPollInterval, g.cfg.FlockMaxWait); ferr != nil {
			_ = f.Close()
			rel()
			return nil, ferr
		}
		dev.flock = fl
	}
	return dev, nil
}

func (g *Gateway) acquireInProc(ctx context.Context, busno int, holder string, wait bool) (dlock.Release, error) {
	if wait {
		return g.locks.Acquire(ctx, busno, holder)
	}
	return g.locks.AcquireNoWait(busno, holder)
}

// Close releases the file lock, then the in-process lock, then the OS
// descriptor, in that order. Close errors are
// logged, never propagated.
func (d *Device) Close() {
	if d.flock != nil {
		d.flock.Release()
		d.flock = nil
	}
	if d.rel != nil {
		d.rel()
		d.rel = nil
	}
	if err := d.f.Close(); err != nil {
		Log.Warn().Int("busno", d.busno).Err(err).Msg("i2cbus: close failed, ignoring")
	}
}

// SetSlaveAddress issues the slave-set ioctl. On EBUSY, if force is set,
// it retries once with the forceful variant; the retry is counted but
// not surfaced to the caller.
func (d *Device) SetSlaveAddress(addr uint16) error {
	fd := int(d.f.Fd())
	err := currentBackend.setSlave(fd, addr, false)
	if isEBUSY(err) && d.gw.cfg.ForceSlaveAddress {
		err = currentBackend.setSlave(fd, addr, true)
	}
	if err != nil {
		return ddcerr.Wrap("i2cbus.set_slave_address", d.busno, ddcerr.IO, err)
	}
	return nil
}

// Functionality reports the kernel-reported capability bit-set.
func (d *Device) Functionality() (Functionality, error) {
	fn, err := currentBackend.funcs(int(d.f.Fd()))
	if err != nil {
		return 0, ddcerr.Wrap("i2cbus.get_functionality", d.busno, ddcerr.IO, err)
	}
	return fn, nil
}

// Read dispatches to the process-wide strategy:
// fileio issues set_slave_address then read(2); ioctl issues a single
// I2C_RDWR read message including the address. A short read maps to
// ddcerr.DDCData.
func (d *Device) Read(addr uint16, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := d.dispatch(addr, nil, buf)
	if err != nil {
		return nil, err
	}
	if got != n {
		return nil, ddcerr.New("i2cbus.read", ddcerr.DDCData)
	}
	return buf, nil
}

// Write dispatches to the process-wide strategy. A
// short write maps to ddcerr.DDCData.
func (d *Device) Write(addr uint16, data []byte) error {
	got, err := d.dispatch(addr, data, nil)
	if err != nil {
		return err
	}
	if got != len(data) {
		return ddcerr.New("i2cbus.write", ddcerr.DDCData)
	}
	return nil
}

// dispatch performs one read (buf != nil) or one write (wbuf != nil) at
// addr under the current strategy, retrying once under the nvidia
// EINVAL quirk.
func (d *Device) dispatch(addr uint16, wbuf, buf []byte) (int, error) {
	n, err := d.dispatchOnce(addr, wbuf, buf)
	if err != nil && isEINVAL(err) && CurrentStrategy() == StrategyIOCTL {
		if d.gw.cfg.DriverName(d.busno) == "nvidia" {
			triggerNvidiaQuirk(d.busno)
			return d.dispatchOnce(addr, wbuf, buf)
		}
	}
	if err != nil {
		return 0, ddcerr.Wrap("i2cbus.io", d.busno, ddcerr.IO, err)
	}
	return n, nil
}

func (d *Device) dispatchOnce(addr uint16, wbuf, buf []byte) (int, error) {
	fd := int(d.f.Fd())
	switch CurrentStrategy() {
	case StrategyFileIO:
		err := currentBackend.setSlave(fd, addr, false)
		if isEBUSY(err) && d.gw.cfg.ForceSlaveAddress {
			err = currentBackend.setSlave(fd, addr, true)
		}
		if err != nil {
			return 0, err
		}
		if wbuf != nil {
			return currentBackend.write(fd, wbuf)
		}
		return currentBackend.read(fd, buf)
	default: // StrategyIOCTL
		if wbuf != nil {
			m := msg{addr: addr, buf: wbuf}
			if err := currentBackend.rdwr(fd, []msg{m}); err != nil {
				return 0, err
			}
			return len(wbuf), nil
		}
		m := msg{addr: addr, flags: msgFlagRD, buf: buf}
		if err := currentBackend.rdwr(fd, []msg{m}); err != nil {
			return 0, err
		}
		return len(buf), nil
	}
}

// edidAddr is the well-known EDID slave address 0x50.
const edidAddr = 0x50

const edidLen = 128

// ReadEDID reads 128 bytes from the EDID address and verifies the
// checksum.
func (d *Device) ReadEDID() ([]byte, error) {
	raw, err := d.Read(edidAddr, edidLen)
	if err != nil {
		return nil, err
	}
	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return nil, ddcerr.New("i2cbus.read_edid", ddcerr.EDIDChecksum)
	}
	return raw, nil
}

func isEBUSY(err error) bool  { return errors.Is(err, syscall.EBUSY) }
func isEINVAL(err error) bool { return errors.Is(err, syscall.EINVAL) }

// driverNameFromSysfs resolves the kernel driver bound to busno by
// following the /sys/bus/i2c/devices/i2c-N/device/driver symlink, the
// way sysfs driver bindings are conventionally introspected. It returns
// "" (never an error) when the link is absent, which simply means the
// nvidia quirk never fires.
func driverNameFromSysfs(busno int) string {
	link := fmt.Sprintf("/sys/bus/i2c/devices/i2c-%d/device/driver", busno)
	target, err := os.Readlink(link)
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

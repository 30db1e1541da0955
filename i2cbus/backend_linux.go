//go:build linux

package i2cbus

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request codes from <linux/i2c-dev.h>.
const (
	ioctlI2CSlave      = 0x0703
	ioctlI2CSlaveForce = 0x0706
	ioctlI2CFuncs      = 0x0705
	ioctlI2CRdwr       = 0x0707
)

// i2cMsg mirrors struct i2c_msg from <linux/i2c.h>.
type i2cMsg struct {
	addr  uint16
	flags uint16
	length uint16
	buf   uintptr
}

type rdwrIoctlData struct {
	msgs  uintptr
	nmsgs uint32
}

type linuxBackend struct{}

func newLinuxBackend() backend { return linuxBackend{} }

func ioctlCall(fd int, op uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), op, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (linuxBackend) setSlave(fd int, addr uint16, force bool) error {
	op := uintptr(ioctlI2CSlave)
	if force {
		op = uintptr(ioctlI2CSlaveForce)
	}
	return ioctlCall(fd, op, uintptr(addr))
}

func (linuxBackend) rdwr(fd int, msgs []msg) error {
	raw := make([]i2cMsg, len(msgs))
	for i, m := range msgs {
		raw[i] = i2cMsg{addr: m.addr, flags: m.flags, length: uint16(len(m.buf))}
		if len(m.buf) > 0 {
			raw[i].buf = uintptr(unsafe.Pointer(&m.buf[0]))
		}
	}
	data := rdwrIoctlData{nmsgs: uint32(len(raw))}
	if len(raw) > 0 {
		data.msgs = uintptr(unsafe.Pointer(&raw[0]))
	}
	return ioctlCall(fd, ioctlI2CRdwr, uintptr(unsafe.Pointer(&data)))
}

func (linuxBackend) funcs(fd int) (Functionality, error) {
	var fn uint64
	if err := ioctlCall(fd, ioctlI2CFuncs, uintptr(unsafe.Pointer(&fn))); err != nil {
		return 0, err
	}
	return Functionality(fn), nil
}

func (linuxBackend) read(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func (linuxBackend) write(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

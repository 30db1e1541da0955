//go:build !linux

package i2cbus

import "errors"

type otherBackend struct{}

func newLinuxBackend() backend { return otherBackend{} }

var errUnsupported = errors.New("i2cbus: not supported on this platform")

func (otherBackend) setSlave(fd int, addr uint16, force bool) error { return errUnsupported }
func (otherBackend) rdwr(fd int, msgs []msg) error                  { return errUnsupported }
func (otherBackend) funcs(fd int) (Functionality, error)            { return 0, errUnsupported }
func (otherBackend) read(fd int, buf []byte) (int, error)           { return 0, errUnsupported }
func (otherBackend) write(fd int, buf []byte) (int, error)          { return 0, errUnsupported }

package registry

import (
	"context"

	"github.com/rockowitz/ddcutil-sub002/i2cbus"
)

// BusDevice is the slice of component B's Device that the probe sequence
// needs. It is declared here, not imported as *i2cbus.Device directly, so
// tests can fake a bus without a real /dev/i2c-N.
type BusDevice interface {
	Close()
	SetSlaveAddress(addr uint16) error
	Read(addr uint16, n int) ([]byte, error)
	Write(addr uint16, data []byte) error
	Functionality() (i2cbus.Functionality, error)
	ReadEDID() ([]byte, error)
}

// BusOpener opens a BusDevice for a bus number, the seam over component B.
type BusOpener interface {
	Open(ctx context.Context, busno int, holder string, wait bool) (BusDevice, error)
}

type gatewayOpener struct{ gw *i2cbus.Gateway }

// NewGatewayOpener adapts a real i2cbus.Gateway to BusOpener.
func NewGatewayOpener(gw *i2cbus.Gateway) BusOpener { return gatewayOpener{gw} }

func (g gatewayOpener) Open(ctx context.Context, busno int, holder string, wait bool) (BusDevice, error) {
	return g.gw.Open(ctx, busno, holder, wait)
}

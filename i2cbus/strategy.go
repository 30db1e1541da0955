package i2cbus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Strategy selects how Device.Read/Write talk to the kernel: it is chosen per process, not per call, and flips
// atomically on the nvidia EINVAL bug path.
type Strategy int32

const (
	StrategyIOCTL Strategy = iota
	StrategyFileIO
)

func (s Strategy) String() string {
	if s == StrategyFileIO {
		return "fileio"
	}
	return "ioctl"
}

// strategyState holds the process-wide default strategy. It is an
// atomic.Int32 rather than a naked package variable since Device.Read/Write
// can flip it concurrently from any bus's goroutine.
var strategyState atomic.Int32

// nvidiaQuirkOnce ensures the "switched to fileio" warning
// is logged exactly once per process, however many buses hit the bug.
var nvidiaQuirkOnce sync.Once

// Log is the package-wide logger. It defaults to a no-op sink; callers wire
// a real github.com/rs/zerolog.Logger through SetLogger.
var Log = zerolog.Nop()

// SetLogger installs the logger used for the nvidia-quirk warning and other
// gateway diagnostics.
func SetLogger(l zerolog.Logger) { Log = l }

// CurrentStrategy returns the process-wide default I/O strategy.
func CurrentStrategy() Strategy {
	return Strategy(strategyState.Load())
}

// setStrategy sets the process-wide default. It is unexported: only the
// nvidia quirk path and tests flip it, and Config has no option that
// selects the strategy.
func setStrategy(s Strategy) {
	strategyState.Store(int32(s))
}

// triggerNvidiaQuirk permanently switches the process-wide strategy to
// fileio the first time an ioctl I2C_RDWR returns EINVAL under the nvidia
// driver. Subsequent calls are free no-ops.
func triggerNvidiaQuirk(busno int) {
	nvidiaQuirkOnce.Do(func() {
		setStrategy(StrategyFileIO)
		Log.Warn().
			Int("busno", busno).
			Str("driver", "nvidia").
			Str("op", "rdwr").
			Msg("ioctl I2C_RDWR returned EINVAL under nvidia driver; switching process-wide strategy to fileio")
	})
}

// ResetStrategyForTest restores the package to its just-initialised state.
// It exists purely for test isolation between scenarios that rely on the
// nvidia quirk firing exactly once.
func ResetStrategyForTest() {
	strategyState.Store(int32(StrategyIOCTL))
	nvidiaQuirkOnce = sync.Once{}
}

package watcher

import (
	"context"
	"time"
)

// PollingXEventSource is the reference XEventSource: no pure-Go X11 RandR client exists in the
// retrieval pack, so this stands in by polling on XEventInterval, sliced
// the same way ModePoll is, so Wait still returns promptly on Terminate
// or ctx cancellation. A cgo/Xlib RandR client can satisfy XEventSource
// without the watcher changing.
type PollingXEventSource struct {
	Interval time.Duration
	Slice    time.Duration

	terminate chan struct{}
}

// NewPollingXEventSource returns a PollingXEventSource with the given
// poll interval.
func NewPollingXEventSource(interval time.Duration) *PollingXEventSource {
	return &PollingXEventSource{
		Interval:  interval,
		Slice:     200 * time.Millisecond,
		terminate: make(chan struct{}, 1),
	}
}

// Wait blocks for Interval, sliced to Slice so ctx cancellation and
// Terminate are observed promptly.
func (x *PollingXEventSource) Wait(ctx context.Context) error {
	slice := x.Slice
	if slice <= 0 {
		slice = 200 * time.Millisecond
	}
	remaining := x.Interval
	for remaining > 0 {
		d := slice
		if d > remaining {
			d = remaining
		}
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-x.terminate:
			t.Stop()
			return nil
		}
		remaining -= d
	}
	return nil
}

// Terminate unblocks a pending Wait immediately.
func (x *PollingXEventSource) Terminate() {
	select {
	case x.terminate <- struct{}{}:
	default:
	}
}

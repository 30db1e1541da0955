//go:build linux

package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog"
)

// netlinkRecvBufSize is forced on the monitor socket so hot-plug bursts
// (a DP dock attaching several connectors at once) don't trip ENOBUFS.
const netlinkRecvBufSize = 2 * 1024 * 1024

// NetlinkUdevSource is the production UdevSource, watching the drm and
// i2c-dev subsystems.
type NetlinkUdevSource struct {
	Log zerolog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	stopped bool
}

// Start connects to the kernel's udev netlink socket and begins
// forwarding a signal for every matching uevent.
func (s *NetlinkUdevSource) Start(ctx context.Context) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn := &netlink.UEventConn{}
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	if err := setSocketBufferSize(conn.Fd, netlinkRecvBufSize); err != nil {
		s.Log.Warn().Err(err).Msg("watcher: could not grow netlink receive buffer")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	s.conn = conn
	s.quit = conn.Monitor(queue, errs, matcher())
	s.stopped = false

	out := make(chan struct{})
	go s.pump(ctx, queue, errs, out)
	return out, nil
}

// Stop tears down the netlink connection.
func (s *NetlinkUdevSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.stopped {
		return
	}
	s.stopped = true
	select {
	case s.quit <- struct{}{}:
	default:
	}
	if err := s.conn.Close(); err != nil {
		s.Log.Warn().Err(err).Msg("watcher: closing netlink connection")
	}
	s.conn = nil
}

func (s *NetlinkUdevSource) pump(ctx context.Context, queue chan netlink.UEvent, errs chan error, out chan<- struct{}) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			select {
			case out <- struct{}{}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			if errors.Is(err, syscall.ENOBUFS) || strings.Contains(strings.ToLower(err.Error()), "no buffer space") {
				// A dropped burst still means "something changed" — a
				// wake-up with no detail is safe, reconcile() is a diff.
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
				continue
			}
			s.Log.Warn().Err(err).Msg("watcher: udev monitor error")
		}
	}
}

func relevant(ev netlink.UEvent) bool {
	switch ev.Env["SUBSYSTEM"] {
	case "drm":
		return ev.Action == netlink.ADD || ev.Action == netlink.CHANGE
	case "i2c-dev":
		return ev.Action == netlink.ADD
	default:
		return false
	}
}

func matcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}
	add := "add"
	change := "change"
	rules.AddRule(netlink.RuleDefinition{Action: &add, Env: map[string]string{"SUBSYSTEM": "^drm$"}})
	rules.AddRule(netlink.RuleDefinition{Action: &change, Env: map[string]string{"SUBSYSTEM": "^drm$"}})
	rules.AddRule(netlink.RuleDefinition{Action: &add, Env: map[string]string{"SUBSYSTEM": "^i2c-dev$"}})
	return rules
}

// setSocketBufferSize tries SO_RCVBUFFORCE (CAP_NET_ADMIN) before falling
// back to the rmem_max-limited SO_RCVBUF.
func setSocketBufferSize(fd, size int) error {
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size); err == nil {
		return nil
	}
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

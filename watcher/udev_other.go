//go:build !linux

package watcher

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
)

// NetlinkUdevSource is unavailable off Linux; Start always fails so the
// caller falls back to ModePoll. Log is kept so callers can build the
// same composite literal on every platform.
type NetlinkUdevSource struct {
	Log zerolog.Logger
}

func (s *NetlinkUdevSource) Start(ctx context.Context) (<-chan struct{}, error) {
	return nil, ddcerr.New("watcher.udev", ddcerr.InvalidOperation)
}

func (s *NetlinkUdevSource) Stop() {}

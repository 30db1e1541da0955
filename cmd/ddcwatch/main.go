// Command ddcwatch is a minimal demo of the ddcutil watcher: it starts
// watching for display-connection and DPMS events and logs each one to
// stderr until interrupted.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rockowitz/ddcutil-sub002"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := ddcutil.Default()
	cfg.Log = log
	mon := ddcutil.New(cfg)

	mon.Subscribe(func(ev ddcutil.Event) {
		log.Info().
			Stringer("kind", ev.Kind).
			Int("busno", ev.IOPath.Busno).
			Str("connector", ev.DRMConnector).
			Msg("event")
	})

	if err := mon.Start(ddcutil.ClassDisplayConnection | ddcutil.ClassDPMS); err != nil {
		log.Fatal().Err(err).Msg("failed to start watcher")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := mon.Close(); err != nil {
		log.Error().Err(err).Msg("failed to stop watcher cleanly")
	}
}

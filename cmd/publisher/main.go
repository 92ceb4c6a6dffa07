package main

import (
	"context"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"
)

func main() {
	// Listen to termination signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		zlog.Fatal().Err(err).Msg("publisher failed")
	}
}

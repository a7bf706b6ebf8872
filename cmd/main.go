package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
)

func main() {
	logger.SetDefault(logger.MustProduction())
	defer logger.SyncDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Fatal("docstore command failed", "error", err)
	}
}

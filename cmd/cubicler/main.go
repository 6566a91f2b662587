// Package main is the entry point for the Cubicler gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cubicler/cubicler/cmd/cubicler/app"
	"github.com/cubicler/cubicler/pkg/logger"
)

func main() {
	logger.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Warnf("error executing command: %v", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

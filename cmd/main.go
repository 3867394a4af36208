package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daniel-olson-code/buelon/internal/hub"
	"github.com/daniel-olson-code/buelon/internal/logger"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := hub.New(ctx, log)
	if err != nil {
		log.Error("failed to initialize hub", "error", err)
		os.Exit(1)
	}
	defer h.Close()

	if err := h.Start(ctx); err != nil {
		log.Error("hub exited with error", "error", err)
		os.Exit(1)
	}
}

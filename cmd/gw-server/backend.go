package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hapcan/gw-server/internal/can"
	"github.com/hapcan/gw-server/internal/hub"
)

// initBackend selects the backend, starts its RX loop and returns a frame sender and cleanup.
// It returns an error instead of exiting the process to allow graceful handling by the caller.
// onFrame, if non-nil, is invoked for every received frame in addition to the hub broadcast.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup, onFrame func(can.Frame)) (func(can.Frame) error, func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, h, l, wg, onFrame)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, h, l, wg, onFrame)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}

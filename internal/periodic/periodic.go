// Package periodic drives the gateway's wall-clock-paced work (component
// I): the RTC broadcast synchronized to second 0 of each minute, and the
// fixed-cadence inventory/aggregator tick. Grounded on
// cmd/can-server/metrics_logger.go's ticker-goroutine shape.
package periodic

import (
	"context"
	"sync"
	"time"

	"github.com/hapcan/gw-server/internal/hapcan"
	"github.com/hapcan/gw-server/internal/logging"
)

// tickInterval is the inventory/aggregator maintenance cadence (spec.md §4.9).
const tickInterval = 50 * time.Millisecond

// rtcPeriod is the RTC broadcast cadence once aligned to second 0.
const rtcPeriod = 60 * time.Second

// RunRTC emits an RTC frame (component-local time, addressed as
// computerID1/computerID2) once aligned to the next wall-clock minute
// boundary, then every 60s thereafter, until ctx is canceled.
func RunRTC(ctx context.Context, computerID1, computerID2 uint8, emit func(hapcan.Frame), now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	wait := time.Until(now().Truncate(time.Minute).Add(time.Minute))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	emit(hapcan.RTCFrame(computerID1, computerID2, now()))

	ticker := time.NewTicker(rtcPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			emit(hapcan.RTCFrame(computerID1, computerID2, now()))
		case <-ctx.Done():
			return
		}
	}
}

// RunTicker calls fn every tickInterval until ctx is canceled — the
// driver for inventory (G) and aggregator (H) maintenance (spec.md §4.9's
// "every 50ms tick inventory and aggregator").
func RunTicker(ctx context.Context, fn func()) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// StartAll launches the RTC broadcaster and the tick driver as goroutines
// tracked by wg, logging their exit. emit sends one frame onto the CAN
// write path (e.g. an inventory.List/aggregator.List-driven send); tick
// runs one inventory+aggregator maintenance pass.
func StartAll(ctx context.Context, wg *sync.WaitGroup, computerID1, computerID2 uint8, emit func(hapcan.Frame), tick func()) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		RunRTC(ctx, computerID1, computerID2, emit, time.Now)
		logging.L().Info("rtc_broadcaster_stopped", "component", "periodic")
	}()
	go func() {
		defer wg.Done()
		RunTicker(ctx, tick)
		logging.L().Info("tick_driver_stopped", "component", "periodic")
	}()
}

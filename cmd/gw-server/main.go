package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hapcan/gw-server/internal/config"
	"github.com/hapcan/gw-server/internal/hapcan"
	"github.com/hapcan/gw-server/internal/metrics"
	"github.com/hapcan/gw-server/internal/mqttio"
	"github.com/hapcan/gw-server/internal/programmer"
	"github.com/hapcan/gw-server/internal/supervisor"
)

// Helper implementations moved to dedicated files: version.go, config.go, logger.go, hub_init.go, metrics_logger.go, backend.go, mdns.go.

var processStart = time.Now()

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("gw-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	h := initHub(cfg, l)

	watcher, err := config.NewWatcher(cfg.configPath)
	if err != nil {
		l.Error("config_load_error", "error", err)
		return
	}
	snap := watcher.Current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	mqttWorker := mqttio.NewWorker(mqttio.Config{Broker: snap.MQTTBroker, ClientID: snap.MQTTClientID})

	sv := supervisor.New(watcher, mqttWorker, nil)

	sendFunc, cleanup, berr := initBackend(ctx, cfg, h, l, &wg, sv.DispatchCAN)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		return
	}
	sv.SetCANSender(sendFunc)

	var prog *programmer.Server
	if snap.EnableSocketServer {
		id := programmer.Identity{
			ComputerID1: snap.ComputerID1,
			ComputerID2: snap.ComputerID2,
			Description: "HMSG-rPi",
			Uptime:      func() uint32 { return uint32(time.Since(processStart).Seconds()) },
			Now:         time.Now,
		}
		inject := func(f hapcan.Frame) error { return sendFunc(hapcan.ToCAN(f)) }
		prog = programmer.NewServer(cfg.listenAddr, id, h, inject)
		sv.SetProgrammer(prog)
	}

	sv.Run(ctx, &wg)

	// Start mDNS advertisement once the programmer listener is ready.
	go func() {
		if !cfg.mdnsEnable || prog == nil {
			return
		}
		select {
		case <-prog.Ready():
		case <-ctx.Done():
			return
		}
		addr := prog.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 {
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	cleanup()
	if prog != nil {
		_ = prog.Shutdown(context.Background())
	}
	mqttWorker.Close()
	wg.Wait()
}

// Package supervisor owns the gateway's endpoint lifecycle (component J):
// it wires the CAN backend, the MQTT worker, and the TCP programmer server
// together through the routing table (D), module encoders (E), the
// inventory engine (G) and the RGB/RGBW aggregator (H), logging endpoint
// errors (there is no error classifier) and rebuilding the
// routing/inventory/aggregator state on configuration reload (spec.md §4.10). Grounded on the teacher's
// main.go + cmd/can-server/backend.go init/cleanup-closure pattern,
// generalized from "one CAN backend" to "CAN + MQTT + TCP programmer".
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hapcan/gw-server/internal/aggregator"
	"github.com/hapcan/gw-server/internal/can"
	"github.com/hapcan/gw-server/internal/config"
	"github.com/hapcan/gw-server/internal/hapcan"
	"github.com/hapcan/gw-server/internal/inventory"
	"github.com/hapcan/gw-server/internal/logging"
	"github.com/hapcan/gw-server/internal/metrics"
	"github.com/hapcan/gw-server/internal/modules"
	"github.com/hapcan/gw-server/internal/mqttio"
	"github.com/hapcan/gw-server/internal/periodic"
	"github.com/hapcan/gw-server/internal/programmer"
	"github.com/hapcan/gw-server/internal/routing"
)

// CANSender abstracts the backend's outbound frame sender so the supervisor
// doesn't care whether frames leave over serial or SocketCAN.
type CANSender func(can.Frame) error

// Supervisor wires the live tables, the MQTT worker and the programmer
// server together and drives the CAN<->MQTT translation in both directions.
type Supervisor struct {
	watcher *config.Watcher
	mqtt    *mqttio.Worker
	prog    *programmer.Server
	sendCAN CANSender

	canTable  *routing.CANTable
	mqttTable *routing.MQTTTable
	inv       *inventory.List
	agg       *aggregator.List

	mu     sync.RWMutex
	snap   *config.Snapshot
	logger *slog.Logger
}

// New builds a Supervisor from a primed config.Watcher; mqtt and prog may
// be nil in tests that only exercise the CAN/routing half.
func New(watcher *config.Watcher, mqtt *mqttio.Worker, prog *programmer.Server) *Supervisor {
	s := &Supervisor{
		watcher:   watcher,
		mqtt:      mqtt,
		prog:      prog,
		canTable:  routing.NewCANTable(),
		mqttTable: routing.NewMQTTTable(),
		inv:       inventory.NewList(),
		agg:       aggregator.NewList(),
		logger:    logging.L(),
	}
	s.snap = watcher.Current()
	s.rebuildFromSnapshot(s.snap)
	return s
}

// SetCANSender installs the backend's outbound frame sender; called once
// the CAN backend has finished opening its device.
func (s *Supervisor) SetCANSender(send CANSender) { s.sendCAN = send }

// SetProgrammer installs the TCP programmer server once it has been built;
// split from New because the server's Inject closure needs the backend's
// send function, which in turn is only available after the CAN backend has
// opened (which itself wants DispatchCAN as its onFrame hook).
func (s *Supervisor) SetProgrammer(prog *programmer.Server) { s.prog = prog }

// Run starts the MQTT connection, TCP programmer server and periodic
// drivers, and blocks processing config reloads until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context, wg *sync.WaitGroup) {
	snap := s.CurrentSnapshot()

	if s.mqtt != nil && snap.EnableMQTT {
		if err := s.mqtt.Connect(); err != nil {
			s.logger.Error("mqtt_connect_failed", "component", "supervisor", "error", err)
		} else {
			s.subscribeAll(snap)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runMQTTDrain(ctx)
		}()
	}

	if s.prog != nil && snap.EnableSocketServer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.prog.Serve(ctx); err != nil {
				s.logger.Error("programmer_serve_failed", "component", "supervisor", "error", err)
			}
		}()
	}

	if snap.EnableRTCFrame {
		periodic.StartAll(ctx, wg, snap.ComputerID1, snap.ComputerID2, s.emitCANFrame, s.tick)
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			periodic.RunTicker(ctx, s.tick)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watcher.Watch(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchReload(ctx)
	}()
}

func (s *Supervisor) watchReload(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.watcher.Reloaded():
			s.Reload()
		}
	}
}

// CurrentSnapshot returns the configuration snapshot currently installed.
func (s *Supervisor) CurrentSnapshot() *config.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reload rebuilds the routing/inventory/aggregator tables from the
// watcher's latest snapshot and re-subscribes MQTT if the broker params
// changed, then re-requests status for every configured module (spec.md
// §4.10).
func (s *Supervisor) Reload() {
	next := s.watcher.Current()
	prev := s.CurrentSnapshot()

	s.rebuildFromSnapshot(next)

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	if s.mqtt != nil && next.EnableMQTT && (prev == nil || prev.MQTTBroker != next.MQTTBroker || prev.MQTTClientID != next.MQTTClientID) {
		s.mqtt.Close()
		s.mqtt.SetConfig(mqttio.Config{Broker: next.MQTTBroker, ClientID: next.MQTTClientID})
		if err := s.mqtt.Connect(); err != nil {
			s.logger.Error("mqtt_reconnect_failed", "component", "supervisor", "error", err)
		} else {
			s.subscribeAll(next)
		}
	}

	s.inv.SetControl(inventory.StatusControl{InitialNode: 1, FinalNode: 255, InitialGroup: 1, FinalGroup: 255})
	s.logger.Info("config_reload_applied", "component", "supervisor")
}

func (s *Supervisor) rebuildFromSnapshot(snap *config.Snapshot) {
	canRules, mqttRules, invEntries, aggEntries := buildTables(snap)
	routing.Reload(s.mqttTable, s.canTable, mqttRules, canRules)
	s.inv.Rebuild(invEntries)
	s.agg.Rebuild(aggEntries)
}

func (s *Supervisor) subscribeAll(snap *config.Snapshot) {
	for _, t := range snap.SubscribeTopics {
		if err := s.mqtt.Subscribe(t); err != nil {
			s.logger.Warn("mqtt_subscribe_failed", "component", "supervisor", "topic", t, "error", err)
		}
	}
	if snap.EnableRawHapcan && snap.RawHapcanSubTopic != "" {
		_ = s.mqtt.Subscribe(snap.RawHapcanSubTopic)
	}
	if snap.EnableHapcanStatus && snap.StatusSubTopic != "" {
		_ = s.mqtt.Subscribe(snap.StatusSubTopic + "/#")
	}
}

func (s *Supervisor) runMQTTDrain(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainInbound()
			if err := s.mqtt.DrainPublish(); err != nil {
				s.logger.Warn("mqtt_publish_drain_error", "component", "supervisor", "error", err)
			}
		}
	}
}

func (s *Supervisor) drainInbound() {
	for {
		msg, err := s.mqtt.Sub.Pop()
		if err != nil {
			return
		}
		s.DispatchMQTT(msg.Value.Topic, msg.Value.Payload)
	}
}

func (s *Supervisor) tick() {
	requests, emissions := s.inv.Tick()
	for key, payload := range emissions {
		s.publishStatus(key, payload)
	}
	for _, r := range requests {
		s.emitCANFrame(r.Frame)
	}
	s.agg.Tick()

	complete, pending := s.inv.Stats()
	metrics.SetInventoryStats(complete, pending)
	metrics.SetAggregatorPending(s.agg.Pending())
	if s.mqtt != nil {
		metrics.SetRingBufferStats("mqtt_pub", s.mqtt.Pub.Len(), s.mqtt.Pub.Dropped())
		metrics.SetRingBufferStats("mqtt_sub", s.mqtt.Sub.Len(), s.mqtt.Sub.Dropped())
	}
}

func (s *Supervisor) publishStatus(key inventory.Key, payload []byte) {
	snap := s.CurrentSnapshot()
	if s.mqtt == nil || !snap.EnableHapcanStatus || snap.StatusPubTopic == "" {
		return
	}
	topic := fmt.Sprintf("%s/%d/%d/", snap.StatusPubTopic, key.Group, key.Node)
	s.mqtt.Pub.Push(mqttio.Message{Topic: topic, Payload: payload})
}

func (s *Supervisor) emitCANFrame(f hapcan.Frame) {
	if s.sendCAN == nil {
		return
	}
	if err := s.sendCAN(hapcan.ToCAN(f)); err != nil {
		s.logger.Warn("can_send_failed", "component", "supervisor", "error", err)
	}
}

// DispatchCAN is the hook wired into the CAN backend's RX loop (onFrame):
// it feeds the inventory/aggregator engines, routes to MQTT via the module
// encoders, and republishes raw frames when enabled (spec.md §4.4-§4.5,
// §4.5.6, §4.7, §4.8).
func (s *Supervisor) DispatchCAN(raw can.Frame) {
	f := hapcan.FromCAN(raw)
	snap := s.CurrentSnapshot()

	s.inv.ApplyResponse(inventory.Key{Node: f.Module, Group: f.Group}, f)

	if snap.EnableRawHapcan && snap.RawHapcanPubTopic != "" && f.IsApplicationFrame() {
		if payloads, err := (modules.RawCodec{}).CANToPayload(hapcan.Frame{}, f); err == nil {
			for _, p := range payloads {
				s.publish(snap.RawHapcanPubTopic, p)
			}
		}
	}

	if !snap.EnableGateway {
		return
	}

	for _, rule := range routing.ScanAllCAN(s.canTable, f) {
		metrics.IncRoutingScanHit("can")
		s.dispatchCANRule(rule, f)
	}
}

func (s *Supervisor) dispatchCANRule(rule routing.CANRule, f hapcan.Frame) {
	switch rule.Meta.FrameType {
	case kindRGB:
		s.dispatchRGB(rule, f)
		return
	}

	enc := encoderForKind(rule.Meta.FrameType)
	if enc == nil {
		return
	}
	payloads, err := enc.CANToPayload(rule.Meta, f)
	if err != nil || payloads == nil {
		return
	}
	for _, p := range payloads {
		s.publish(rule.StateTopic, p)
	}
}

func (s *Supervisor) dispatchRGB(rule routing.CANRule, f hapcan.Frame) {
	key := aggregator.Key{Node: f.Module, Group: f.Group}
	entry, ok := s.agg.Get(key)
	if !ok {
		return
	}
	// f.Data[2] is the wire channel, 1-based (1..4 or 5 for master) per
	// hrgbw.c; Entry.Update expects a 0-based component/master index.
	for _, em := range entry.Update(int(f.Data[2])-1, f.Data[3]) {
		s.publish(em.Topic, []byte(em.Payload))
	}
}

func encoderForKind(kind uint16) modules.Encoder {
	switch int(kind) {
	case kindRelay:
		return modules.RelayCodec{}
	case kindButton:
		return modules.ButtonCodec{}
	case kindTemperature:
		return modules.TemperatureCodec{}
	case kindTIM:
		return modules.TIMCodec{}
	default:
		return nil
	}
}

func (s *Supervisor) publish(topic string, payload []byte) {
	if s.mqtt == nil || topic == "" {
		return
	}
	s.mqtt.Pub.Push(mqttio.Message{Topic: topic, Payload: payload})
}

// DispatchMQTT is the hook driving the MQTT->CAN direction: raw passthrough,
// the status-refresh subscription, and the routed module commands.
func (s *Supervisor) DispatchMQTT(topic string, payload []byte) {
	snap := s.CurrentSnapshot()

	if snap.EnableRawHapcan && topic == snap.RawHapcanSubTopic {
		if frames, err := (modules.RawCodec{}).PayloadToCAN(hapcan.Frame{}, payload); err == nil {
			for _, f := range frames {
				s.emitCANFrame(f)
			}
		}
		return
	}

	if snap.EnableHapcanStatus && snap.StatusSubTopic != "" && strings.HasPrefix(topic, snap.StatusSubTopic) {
		s.handleStatusRefresh(topic, snap.StatusSubTopic, payload)
		return
	}

	if !snap.EnableGateway {
		return
	}

	for _, rule := range routing.ScanAllMQTT(s.mqttTable, topic) {
		metrics.IncRoutingScanHit("mqtt")
		s.dispatchMQTTRule(rule, payload)
	}
}

func (s *Supervisor) dispatchMQTTRule(rule routing.MQTTRule, payload []byte) {
	var frames []hapcan.Frame
	var err error
	switch rule.Result.FrameType {
	case hapcan.RelayFrameType:
		frames, err = modules.RelayCodec{}.PayloadToCAN(rule.Result, payload)
	case hapcan.ButtonFrameType:
		frames, err = modules.ButtonCodec{}.PayloadToCAN(rule.Result, payload)
	case hapcan.TemperatureFrameType:
		frames, err = modules.TemperatureCodec{}.PayloadToCAN(rule.Result, payload)
	case hapcan.MultiTempIRFrameType:
		frames, err = modules.TIMCodec{}.PayloadToCAN(rule.Result, payload)
	case hapcan.RGBFrameType:
		channel := int(rule.Result.Data[0]) - 1
		frames, err = modules.RGBCodec{Channel: channel}.PayloadToCAN(rule.Result, payload)
	default:
		return
	}
	if err != nil {
		return
	}
	for _, f := range frames {
		s.emitCANFrame(f)
	}
}

func (s *Supervisor) handleStatusRefresh(topic, base string, payload []byte) {
	scope, err := inventory.ParseRefreshScope(string(payload))
	if err != nil {
		return
	}
	suffix := strings.TrimPrefix(strings.TrimPrefix(topic, base), "/")
	var group, node uint64
	if suffix != "" {
		parts := strings.SplitN(suffix, "/", 2)
		_, _ = fmt.Sscanf(parts[0], "%d", &group)
		if len(parts) > 1 {
			_, _ = fmt.Sscanf(parts[1], "%d", &node)
		}
	}
	s.inv.ApplyRefreshScoped(uint8(node), uint8(group), scope)
}

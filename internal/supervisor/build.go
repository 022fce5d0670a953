package supervisor

import (
	"github.com/hapcan/gw-server/internal/aggregator"
	"github.com/hapcan/gw-server/internal/config"
	"github.com/hapcan/gw-server/internal/hapcan"
	"github.com/hapcan/gw-server/internal/inventory"
	"github.com/hapcan/gw-server/internal/routing"
)

// Module kind tags, stashed in a CANRule's Meta.FrameType field so the CAN
// dispatch path knows which modules.Encoder/Decoder to run without needing
// a parallel lookup structure (spec.md §4.5: "the template's metadata bytes
// select which encoder branch runs").
const (
	kindRelay = iota
	kindButton
	kindTemperature
	kindTIM
	kindRGB
)

const exactMask = 0xFFF // full frametype mask; module/group use 0xFF

func exactCANMask() hapcan.Frame {
	return hapcan.Frame{FrameType: exactMask, Module: 0xFF, Group: 0xFF}
}

// buildTables turns a configuration snapshot's module descriptor arrays into
// fresh routing/inventory/aggregator entry sets (spec.md §4.4, §4.7, §4.8).
// It does not touch the live tables; call Reload to install the result.
func buildTables(snap *config.Snapshot) (canRules []routing.CANRule, mqttRules []routing.MQTTRule, invEntries map[inventory.Key]*inventory.Entry, aggEntries map[aggregator.Key]*aggregator.Entry) {
	invEntries = make(map[inventory.Key]*inventory.Entry)
	aggEntries = make(map[aggregator.Key]*aggregator.Entry)

	addInventory := func(node, group uint8) {
		key := inventory.Key{Node: node, Group: group}
		if _, ok := invEntries[key]; !ok {
			invEntries[key] = inventory.NewEntry(node, group)
		}
	}

	for _, d := range snap.HAPCANRelays {
		canRules = append(canRules, moduleRule(hapcan.RelayFrameType, d.Node, d.Group, d.Topic, kindRelay, d.Channel))
		mqttRules = append(mqttRules, commandRule(d.Topic, hapcan.RelayFrameType, d.Node, d.Group, d.Channel, snap.ComputerID1, snap.ComputerID2))
		addInventory(d.Node, d.Group)
	}
	for _, d := range snap.HAPCANButtons {
		canRules = append(canRules, moduleRule(hapcan.ButtonFrameType, d.Node, d.Group, d.Topic, kindButton, d.Channel))
		mqttRules = append(mqttRules, commandRule(d.Topic, hapcan.ButtonFrameType, d.Node, d.Group, d.Channel, snap.ComputerID1, snap.ComputerID2))
		addInventory(d.Node, d.Group)
	}
	for _, d := range snap.HAPCANRGBs {
		canRules = append(canRules, rgbCANRule(hapcan.RGBFrameType, d))
		mqttRules = append(mqttRules, rgbCommandRule(d, snap.ComputerID1, snap.ComputerID2))
		aggEntries[aggregator.Key{Node: d.Node, Group: d.Group}] = aggregator.NewEntry(false, d.Topic, d.ChannelTopics)
		addInventory(d.Node, d.Group)
	}
	for _, d := range snap.RGBWs {
		canRules = append(canRules, rgbCANRule(hapcan.RGBFrameType, d))
		mqttRules = append(mqttRules, rgbCommandRule(d, snap.ComputerID1, snap.ComputerID2))
		aggEntries[aggregator.Key{Node: d.Node, Group: d.Group}] = aggregator.NewEntry(true, d.Topic, d.ChannelTopics)
		addInventory(d.Node, d.Group)
	}
	for _, d := range snap.TIMs {
		canRules = append(canRules, timCANRule(d))
		mqttRules = append(mqttRules, timCommandRule(d))
		addInventory(d.Node, d.Group)
	}

	return canRules, mqttRules, invEntries, aggEntries
}

// channelBit returns the 1-based channel's bit within an 8-channel mask
// byte (data[1] of a relay/button direct-control command), per
// hapcanrelay.c/hapcanbutton.c's "(1 << (channel - 1))". An unconfigured
// (zero) channel is treated as channel 1.
func channelBit(channel int) byte {
	if channel < 1 {
		channel = 1
	}
	return 1 << uint(channel-1)
}

// moduleRule builds the CAN->MQTT rule for one relay/button channel. The
// CAN-side match additionally pins data[2] to the configured channel so
// several channels sharing one node/group address are disambiguated on the
// bus, per hapcanrelay.c/hapcanbutton.c ("hd_mask.data[2] = 0xFF").
func moduleRule(frameType uint16, node, group uint8, topic string, kind int, channel int) routing.CANRule {
	meta := hapcan.Frame{FrameType: uint16(kind)}
	meta.Data[0] = byte(channel)

	mask := exactCANMask()
	mask.Data[2] = 0xFF
	match := hapcan.Frame{FrameType: frameType, Module: node, Group: group}
	match.Data[2] = byte(channel)

	return routing.CANRule{
		Mask:       mask,
		Match:      match,
		StateTopic: topic,
		Meta:       meta,
	}
}

// commandRule builds the MQTT->CAN direct-control template for one
// relay/button channel. Per hapcanrelay.c/hapcanbutton.c (~lines 154-159),
// a direct-control frame's top-level module/group carry the gateway's own
// computer ID, not the target address: the target node/group travel in
// data[2]/data[3], and data[1] carries the channel's bit within the
// module's channel mask.
func commandRule(topic string, frameType uint16, node, group uint8, channel int, cid1, cid2 uint8) routing.MQTTRule {
	result := hapcan.Frame{FrameType: frameType, Module: cid1, Group: cid2}
	result.Data[1] = channelBit(channel)
	result.Data[2] = node
	result.Data[3] = group
	return routing.MQTTRule{CommandTopic: topic, Result: result}
}

// rgbCANRule builds the CAN→MQTT rule for one RGB/RGBW descriptor. The
// aggregator (not this rule) performs the actual multi-frame accumulation;
// this rule exists so the raw per-channel frame reaches the aggregator's
// dispatch hook via the same scan-and-match path as every other family.
func rgbCANRule(frameType uint16, d config.ModuleDescriptor) routing.CANRule {
	kind := uint16(kindRGB)
	return routing.CANRule{
		Mask:       exactCANMask(),
		Match:      hapcan.Frame{FrameType: frameType, Module: d.Node, Group: d.Group},
		StateTopic: d.Topic,
		Meta:       hapcan.Frame{FrameType: kind},
	}
}

// rgbCommandRule builds the MQTT->CAN direct-control template for one
// RGB/RGBW descriptor. Like relays and buttons, the template's top-level
// module/group carry the gateway's own computer ID and the target
// node/group travel in data[2]/data[3] (hrgbw.c ~lines 525-531); data[0]
// carries the single-channel-vs-combined selector modules.RGBCodec reads
// (biased by +1 so 0 means "combined" and decodes back to -1), and the
// codec itself writes the actual colour bytes into data[1],[4..7] so they
// never collide with the data[2]/data[3] target address.
func rgbCommandRule(d config.ModuleDescriptor, cid1, cid2 uint8) routing.MQTTRule {
	result := hapcan.Frame{FrameType: hapcan.RGBFrameType, Module: cid1, Group: cid2}
	result.Data[0] = byte(d.Channel + 1)
	result.Data[2] = d.Node
	result.Data[3] = d.Group
	return routing.MQTTRule{CommandTopic: d.Topic, Result: result}
}

// timCANRule additionally pins data[1] (sensor index), since several TIM
// sensors share one module/group address and are otherwise indistinguishable.
func timCANRule(d config.ModuleDescriptor) routing.CANRule {
	mask := exactCANMask()
	mask.Data[1] = 0xFF
	meta := hapcan.Frame{FrameType: kindTIM}
	return routing.CANRule{
		Mask:       mask,
		Match:      hapcan.Frame{FrameType: hapcan.MultiTempIRFrameType, Module: d.Node, Group: d.Group, Data: [8]byte{0, byte(d.Channel)}},
		StateTopic: d.Topic,
		Meta:       meta,
	}
}

func timCommandRule(d config.ModuleDescriptor) routing.MQTTRule {
	result := hapcan.Frame{FrameType: hapcan.MultiTempIRFrameType, Module: d.Node, Group: d.Group}
	result.Data[1] = byte(d.Channel)
	return routing.MQTTRule{CommandTopic: d.Topic, Result: result}
}

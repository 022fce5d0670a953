// Package config loads and hot-reloads the HAPCAN-specific gateway
// configuration (spec.md §6): MQTT broker/topics, feature gates, computer
// ID, and the per-module-type descriptor arrays that seed routing and
// inventory. Grounded on original_source/SW/source/hapcanconfig.c's JSON
// schema, decoded here with encoding/json instead of json-c, and published
// via an atomic.Pointer snapshot mirroring internal/logging's RCU pattern.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// ModuleDescriptor is one entry of the HAPCANRelays/HAPCANButtons/
// HAPCANRGBs/RGBWs/TIMs configuration arrays (spec.md §6, §4.5).
type ModuleDescriptor struct {
	Node  uint8  `json:"node"`
	Group uint8  `json:"group"`
	Topic string `json:"topic"`

	// Channel selects which RGB/RGBW component (or TIM sensor index) this
	// descriptor addresses; -1 (the zero value decoded from an absent
	// field defaults to 0, so RGB descriptors set it explicitly) means
	// "combined" for RGB/RGBW entries.
	Channel int `json:"channel"`

	// RGBW-only: additional per-channel state topics alongside Topic (the
	// combined-state topic). Index 0..3 = R,G,B,W.
	ChannelTopics [4]string `json:"channelTopics,omitempty"`
	IsRGBW        bool      `json:"isRGBW,omitempty"`
}

// Snapshot is the full decoded configuration document, matching spec.md
// §6's recognized top-level keys.
type Snapshot struct {
	MQTTBroker      string   `json:"mqttBroker"`
	MQTTClientID    string   `json:"mqttClientID"`
	SubscribeTopics []string `json:"subscribeTopics"`

	EnableMQTT         bool `json:"enableMQTT"`
	EnableSocketServer bool `json:"enableSocketServer"`
	EnableRTCFrame     bool `json:"enableRTCFrame"`

	EnableRawHapcan   bool   `json:"enableRawHapcan"`
	RawHapcanPubTopic string `json:"rawHapcanPubTopic"`
	RawHapcanSubTopic string `json:"rawHapcanSubTopic"`

	EnableHapcanStatus bool   `json:"enableHapcanStatus"`
	StatusPubTopic     string `json:"statusPubTopic"`
	StatusSubTopic     string `json:"statusSubTopic"`

	EnableGateway bool `json:"enableGateway"`

	ComputerID1 uint8 `json:"computerID1"`
	ComputerID2 uint8 `json:"computerID2"`

	HAPCANRelays  []ModuleDescriptor `json:"HAPCANRelays"`
	HAPCANButtons []ModuleDescriptor `json:"HAPCANButtons"`
	HAPCANRGBs    []ModuleDescriptor `json:"HAPCANRGBs"`
	RGBWs         []ModuleDescriptor `json:"RGBWs"`
	TIMs          []ModuleDescriptor `json:"TIMs"`

	// SocketListenAddr is process-level and normally supplied on the
	// command line (§10.2), but may also be set here for convenience.
	SocketListenAddr string `json:"socketListenAddr,omitempty"`
}

// Load reads and decodes path into a Snapshot, applying the computer-ID
// default (§6: "both default to 254 on any error") when a field is absent,
// null, not an integer, or outside 0..255 (see Parse).
func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a JSON document into a Snapshot, applying defaults.
func Parse(b []byte) (*Snapshot, error) {
	var raw struct {
		Snapshot
		ComputerID1 json.RawMessage `json:"computerID1"`
		ComputerID2 json.RawMessage `json:"computerID2"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	snap := raw.Snapshot
	snap.ComputerID1 = defaultComputerID(raw.ComputerID1)
	snap.ComputerID2 = defaultComputerID(raw.ComputerID2)
	return &snap, nil
}

func defaultComputerID(raw json.RawMessage) uint8 {
	var v *int
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == nil || *v < 0 || *v > 255 {
		return hapcan.DefaultComputerID
	}
	return uint8(*v)
}

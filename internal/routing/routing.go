// Package routing implements the two independent CAN<->MQTT routing tables
// (component D): CAN→MQTT entries match incoming HAPCAN frames by mask/match
// and publish to a state topic; MQTT→CAN entries match inbound topics by
// exact string equality and expand into one or more HAPCAN frame templates
// for the per-type decoders in internal/modules (spec.md §4.4).
package routing

import (
	"sync"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// CANRule is one CAN→MQTT routing entry: a HAPCAN frame matches when
// (received XOR match) & mask == 0 on frametype, module, group and each data
// byte; the flags bit is not compared (hapcan.Frame.MatchMasked).
// StateTopic is nullable in spirit (empty string) for entries that exist
// only to drive raw/inventory side effects rather than publish state.
type CANRule struct {
	Mask       hapcan.Frame
	Match      hapcan.Frame
	StateTopic string
	// Meta carries the pre-filled template bytes a module encoder needs to
	// pick its branch (spec.md §4's "certain bytes pre-filled to carry
	// routing metadata"); copied verbatim into any frame the encoder builds.
	Meta hapcan.Frame
}

// MQTTRule is one MQTT→CAN routing entry: a command topic matches by exact
// string equality and expands, via a module decoder, into HAPCAN frames
// built from Result as a template.
type MQTTRule struct {
	CommandTopic string
	Result       hapcan.Frame
}

// CANTable is the CAN→MQTT routing list: prepend insert (copies the slice), scan-from-offset.
type CANTable struct {
	mu      sync.RWMutex
	entries []CANRule
}

// MQTTTable is the MQTT→CAN routing list: prepend insert (copies the slice), scan-from-offset.
type MQTTTable struct {
	mu      sync.RWMutex
	entries []MQTTRule
}

// NewCANTable returns an empty CAN→MQTT routing table.
func NewCANTable() *CANTable { return &CANTable{} }

// NewMQTTTable returns an empty MQTT→CAN routing table.
func NewMQTTTable() *MQTTTable { return &MQTTTable{} }

// Insert prepends a deep copy of r (hapcan.Frame is a plain value so the
// struct copy already owns its bytes).
func (t *CANTable) Insert(r CANRule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append([]CANRule{r}, t.entries...)
}

// Insert prepends a deep copy of r.
func (t *MQTTTable) Insert(r MQTTRule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append([]MQTTRule{r}, t.entries...)
}

// Len reports the number of entries currently in the table.
func (t *CANTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Len reports the number of entries currently in the table.
func (t *MQTTTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear empties the table; used on config reload before a fresh Insert pass
// (spec.md: "rebuilt on configuration reload (delete-then-insert under the
// relevant locks)").
func (t *CANTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// Clear empties the table.
func (t *MQTTTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// ScanFrom traverses entries starting at offset and returns the index and a
// copy of the first matching rule, or ok=false if none matched. Callers loop,
// passing lastIndex+1 as the next offset, until ok is false, so every
// applicable rule fires (spec.md §4.4).
func (t *CANTable) ScanFrom(offset int, f hapcan.Frame) (idx int, rule CANRule, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := offset; i < len(t.entries); i++ {
		e := t.entries[i]
		if f.MatchMasked(e.Mask, e.Match) {
			return i, e, true
		}
	}
	return 0, CANRule{}, false
}

// ScanFrom traverses entries starting at offset and returns the index and a
// copy of the first entry whose CommandTopic equals topic exactly.
func (t *MQTTTable) ScanFrom(offset int, topic string) (idx int, rule MQTTRule, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := offset; i < len(t.entries); i++ {
		if t.entries[i].CommandTopic == topic {
			return i, t.entries[i], true
		}
	}
	return 0, MQTTRule{}, false
}

// ScanAllCAN returns every CAN rule matching f, in table order, by repeated
// ScanFrom (the fan-out dispatch loop spec.md §4.4 requires).
func ScanAllCAN(t *CANTable, f hapcan.Frame) []CANRule {
	var out []CANRule
	offset := 0
	for {
		idx, rule, ok := t.ScanFrom(offset, f)
		if !ok {
			return out
		}
		out = append(out, rule)
		offset = idx + 1
	}
}

// Reload rebuilds both tables from freshly computed entries, swapping each
// table's entries under that table's own lock (two separate swaps, not one
// atomic step across both tables).
// Locks are acquired MQTT→CAN before CAN→MQTT, matching the global lock
// ordering in spec.md §7 ("routing locks are always acquired MQTT→CAN
// before CAN→MQTT").
func Reload(mqttTable *MQTTTable, canTable *CANTable, mqttEntries []MQTTRule, canEntries []CANRule) {
	mqttTable.mu.Lock()
	mqttTable.entries = append([]MQTTRule(nil), mqttEntries...)
	mqttTable.mu.Unlock()

	canTable.mu.Lock()
	canTable.entries = append([]CANRule(nil), canEntries...)
	canTable.mu.Unlock()
}

// ScanAllMQTT returns every MQTT rule whose CommandTopic equals topic.
func ScanAllMQTT(t *MQTTTable, topic string) []MQTTRule {
	var out []MQTTRule
	offset := 0
	for {
		idx, rule, ok := t.ScanFrom(offset, topic)
		if !ok {
			return out
		}
		out = append(out, rule)
		offset = idx + 1
	}
}

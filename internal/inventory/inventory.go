// Package inventory implements the per-module inventory engine (component
// G): a round-robin walk over configured modules requesting static and
// dynamic identity fields, with an anti-thrash latch that retires
// unresponsive modules, and a consolidated JSON status publish once a
// module is fully known (spec.md §4.7, grounded on hapcansystem.c's
// request/response bookkeeping).
package inventory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hapcan/gw-server/internal/hapcan"
	"github.com/hapcan/gw-server/internal/retry"
)

// Key identifies one inventory entry.
type Key struct {
	Node  uint8
	Group uint8
}

// StatusControl parameterizes which subset of the inventory is currently
// being forced to re-request (spec.md §3's "status-update control").
type StatusControl struct {
	InitialNode, FinalNode   uint8
	InitialGroup, FinalGroup uint8
	Finished                 bool
}

func (c StatusControl) includes(node, group uint8) bool {
	if c.Finished {
		return false
	}
	return node >= c.InitialNode && node <= c.FinalNode &&
		group >= c.InitialGroup && group <= c.FinalGroup
}

// Entry is one configured module's accumulated identity state.
type Entry struct {
	Node, Group uint8

	StatusSent     bool
	DynamicDone    [4]bool // supply, uptime, health1, health2
	StaticDone     [5]bool // hwtype, fwtype, desc1, desc2, devid
	RequestHandled bool
	Emitted        bool

	Hard        [2]byte
	HVer        byte
	ID          [4]byte
	AType       byte
	AVers       byte
	FVers       byte
	BVer        [2]byte
	Description [16]byte
	DevID       [2]byte

	VolBusRaw uint16
	VolCPURaw uint16
	Uptime    uint32
	Counters  [12]uint32

	lastReq requestKind
	tracker *retry.Tracker[requestKind]
}

type requestKind struct {
	frameType uint16
	slot      int
}

// NewEntry returns a fresh, all-unfilled inventory entry.
func NewEntry(node, group uint8) *Entry {
	return &Entry{Node: node, Group: group, tracker: retry.New[requestKind](3)}
}

func (e *Entry) dynamicComplete() bool {
	for _, v := range e.DynamicDone {
		if !v {
			return false
		}
	}
	return true
}

func (e *Entry) staticComplete() bool {
	for _, v := range e.StaticDone {
		if !v {
			return false
		}
	}
	return true
}

// Request describes one system-request frame the engine wants sent.
type Request struct {
	Key   Key
	Frame hapcan.Frame
}

const (
	slotStatusSend    = -1
	slotSupply        = 0
	slotUptime        = 1
	slotHealth1       = 2
	slotHealth2       = 3
	slotHWType        = 0
	slotFWType        = 1
	slotDescPart1     = 2
	slotDescPart2     = 3
	slotDevID         = 4
)

// NextRequest implements the priority order of spec.md §4.7: status
// request first (if the global control wants it and it hasn't been sent
// this window), then the first unfilled dynamic field, then the first
// unfilled static field, else RequestHandled is latched and nil is
// returned. Anti-thrash: if the same (node,group,request) has now been
// selected on three consecutive ticks, every flag is latched so the
// module drops out of rotation.
func (e *Entry) NextRequest(ctrl StatusControl) *hapcan.Frame {
	if e.RequestHandled {
		return nil
	}

	var kind requestKind
	var f hapcan.Frame
	f.Module, f.Group = e.Node, e.Group

	switch {
	case ctrl.includes(e.Node, e.Group) && !e.StatusSent:
		kind = requestKind{frameType: hapcan.StatusRequestGroupFrameType, slot: slotStatusSend}
		f.FrameType = hapcan.StatusRequestNodeFrameType
		e.StatusSent = true
	case !e.dynamicComplete():
		idx := firstFalse(e.DynamicDone[:])
		kind = requestKind{frameType: 0, slot: idx}
		switch idx {
		case slotSupply:
			f.FrameType = hapcan.SupplyRequestNodeFrameType
		case slotUptime:
			f.FrameType = hapcan.UptimeRequestNodeFrameType
		case slotHealth1, slotHealth2:
			f.FrameType = hapcan.HealthCheckRequestNodeType
			f.Data[0] = byte(idx - slotHealth1 + 1)
		}
	case !e.staticComplete():
		idx := firstFalse(e.StaticDone[:])
		kind = requestKind{frameType: 1, slot: idx}
		switch idx {
		case slotHWType:
			f.FrameType = hapcan.HWTypeRequestNodeFrameType
		case slotFWType:
			f.FrameType = hapcan.FWTypeRequestNodeFrameType
		case slotDescPart1, slotDescPart2:
			f.FrameType = hapcan.DescriptionRequestNodeType
			f.Data[0] = byte(idx - slotDescPart1 + 1)
		case slotDevID:
			f.FrameType = hapcan.DevIDRequestNodeFrameType
		}
	default:
		e.RequestHandled = true
		return nil
	}

	if e.lastReq == kind && e.tracker.Observe(kind) {
		e.retire()
		return nil
	}
	if e.lastReq != kind {
		e.tracker.Reset()
		e.tracker.Observe(kind)
	}
	e.lastReq = kind
	return &f
}

func firstFalse(flags []bool) int {
	for i, v := range flags {
		if !v {
			return i
		}
	}
	return -1
}

// ApplyResponse folds a system-query response frame into the entry's
// accumulated state, marking the corresponding Dynamic/StaticDone slot the
// first time each field arrives (grounded on hsystem_updateData in
// hapcansystem.c). Frames for a field already marked done are ignored, and
// frame types this entry does not track return false.
func (e *Entry) ApplyResponse(f hapcan.Frame) bool {
	switch f.FrameType {
	case hapcan.HWTypeRequestNodeFrameType, hapcan.HWTypeRequestGroupFrameType:
		if e.StaticDone[slotHWType] {
			return false
		}
		e.Hard[0], e.Hard[1] = f.Data[0], f.Data[1]
		e.HVer = f.Data[2]
		e.ID = [4]byte{f.Data[4], f.Data[5], f.Data[6], f.Data[7]}
		e.StaticDone[slotHWType] = true
		return true
	case hapcan.FWTypeRequestNodeFrameType, hapcan.FWTypeRequestGroupFrameType:
		if e.StaticDone[slotFWType] {
			return false
		}
		e.Hard[0], e.Hard[1] = f.Data[0], f.Data[1]
		e.HVer = f.Data[2]
		e.AType, e.AVers, e.FVers = f.Data[3], f.Data[4], f.Data[5]
		e.BVer[0], e.BVer[1] = f.Data[6], f.Data[7]
		e.StaticDone[slotFWType] = true
		return true
	case hapcan.DescriptionRequestNodeType, hapcan.DescriptionRequestGroupType:
		switch {
		case !e.StaticDone[slotDescPart1]:
			copy(e.Description[:8], f.Data[:])
			e.StaticDone[slotDescPart1] = true
			return true
		case !e.StaticDone[slotDescPart2]:
			copy(e.Description[8:], f.Data[:])
			e.StaticDone[slotDescPart2] = true
			return true
		}
		return false
	case hapcan.SupplyRequestNodeFrameType, hapcan.SupplyRequestGroupFrameType:
		if e.DynamicDone[slotSupply] {
			return false
		}
		e.VolBusRaw = uint16(f.Data[0])<<8 | uint16(f.Data[1])
		e.VolCPURaw = uint16(f.Data[2])<<8 | uint16(f.Data[3])
		e.DynamicDone[slotSupply] = true
		return true
	case hapcan.DevIDRequestNodeFrameType, hapcan.DevIDRequestGroupFrameType:
		if e.StaticDone[slotDevID] {
			return false
		}
		e.DevID[0], e.DevID[1] = f.Data[0], f.Data[1]
		e.StaticDone[slotDevID] = true
		return true
	case hapcan.UptimeRequestNodeFrameType, hapcan.UptimeRequestGroupFrameType:
		if e.DynamicDone[slotUptime] {
			return false
		}
		e.Uptime = uint32(f.Data[4])<<24 | uint32(f.Data[5])<<16 | uint32(f.Data[6])<<8 | uint32(f.Data[7])
		e.DynamicDone[slotUptime] = true
		return true
	case hapcan.HealthCheckRequestNodeType, hapcan.HealthCheckRequestGroupType:
		switch f.Data[0] {
		case 1:
			if e.DynamicDone[slotHealth1] {
				return false
			}
			copy(e.Counters[0:7], []uint32{
				uint32(f.Data[1]), uint32(f.Data[2]), uint32(f.Data[3]),
				uint32(f.Data[4]), uint32(f.Data[5]), uint32(f.Data[6]), uint32(f.Data[7]),
			})
			e.DynamicDone[slotHealth1] = true
			return true
		case 2:
			if e.DynamicDone[slotHealth2] {
				return false
			}
			copy(e.Counters[7:12], []uint32{
				uint32(f.Data[3]), uint32(f.Data[4]), uint32(f.Data[5]), uint32(f.Data[6]), uint32(f.Data[7]),
			})
			e.DynamicDone[slotHealth2] = true
			return true
		}
		return false
	default:
		return false
	}
}

func (e *Entry) retire() {
	e.StatusSent = true
	for i := range e.DynamicDone {
		e.DynamicDone[i] = true
	}
	for i := range e.StaticDone {
		e.StaticDone[i] = true
	}
	e.RequestHandled = true
}

// status is the 26-field consolidated JSON published once a module is
// fully known (spec.md §4.7).
type status struct {
	Node        uint8   `json:"node"`
	Group       uint8   `json:"group"`
	Hard        uint16  `json:"hard"`
	HVer        byte    `json:"hver"`
	ID          uint32  `json:"id"`
	AType       byte    `json:"atype"`
	AVers       byte    `json:"avers"`
	FVers       byte    `json:"fvers"`
	BVer        uint16  `json:"bver"`
	Description string  `json:"description"`
	DevID       uint16  `json:"dev_id"`
	VolBus      float64 `json:"volbus"`
	VolCPU      float64 `json:"volcpu"`
	Uptime      uint32  `json:"uptime"`
	Counters    [12]uint32 `json:"counters"`
}

const (
	volBusScale = 2084.0
	volCPUScale = 13100.0
)

// MaybeEmit returns the consolidated status payload once, the first time
// both static and dynamic sets are complete; subsequent calls return nil
// until the entry is reset by an external refresh.
func (e *Entry) MaybeEmit() ([]byte, bool) {
	if e.Emitted || !e.dynamicComplete() || !e.staticComplete() {
		return nil, false
	}
	e.Emitted = true
	s := status{
		Node: e.Node, Group: e.Group,
		Hard: uint16(e.Hard[0])<<8 | uint16(e.Hard[1]),
		HVer: e.HVer,
		ID:   uint32(e.ID[0])<<24 | uint32(e.ID[1])<<16 | uint32(e.ID[2])<<8 | uint32(e.ID[3]),
		AType: e.AType, AVers: e.AVers, FVers: e.FVers,
		BVer:        uint16(e.BVer[0])<<8 | uint16(e.BVer[1]),
		Description: string(trimNulls(e.Description[:])),
		DevID:       uint16(e.DevID[0])<<8 | uint16(e.DevID[1]),
		VolBus:      float64(e.VolBusRaw) / volBusScale,
		VolCPU:      float64(e.VolCPURaw) / volCPUScale,
		Uptime:      e.Uptime,
		Counters:    e.Counters,
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func trimNulls(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}

// RefreshScope is one of the payloads recognized on the external refresh
// subscription (spec.md §4.7).
type RefreshScope string

const (
	RefreshStatic  RefreshScope = "STATIC"
	RefreshDynamic RefreshScope = "DYNAMIC"
	RefreshStatus  RefreshScope = "STATUS"
	RefreshAll     RefreshScope = "ALL"
)

// ParseRefreshScope validates a raw MQTT payload against the recognized scopes.
func ParseRefreshScope(payload string) (RefreshScope, error) {
	switch RefreshScope(payload) {
	case RefreshStatic, RefreshDynamic, RefreshStatus, RefreshAll:
		return RefreshScope(payload), nil
	default:
		return "", fmt.Errorf("inventory: unrecognized refresh scope %q", payload)
	}
}

// ApplyRefresh clears the update-flag subset scope selects, allowing the
// entry to re-enter rotation and re-emit.
func (e *Entry) ApplyRefresh(scope RefreshScope) {
	switch scope {
	case RefreshStatic:
		e.StaticDone = [5]bool{}
	case RefreshDynamic:
		e.DynamicDone = [4]bool{}
	case RefreshStatus:
		e.StatusSent = false
	case RefreshAll:
		e.StaticDone = [5]bool{}
		e.DynamicDone = [4]bool{}
		e.StatusSent = false
	}
	e.RequestHandled = false
	e.Emitted = false
	e.tracker.Reset()
}

// List is the inventory's (node,group)-keyed entry table.
type List struct {
	mu      sync.Mutex
	entries map[Key]*Entry
	ctrl    StatusControl
}

// NewList returns an empty inventory list.
func NewList() *List { return &List{entries: make(map[Key]*Entry)} }

// Insert adds or replaces the entry for key.
func (l *List) Insert(key Key, e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = e
}

// Get returns the entry for key, if any.
func (l *List) Get(key Key) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return e, ok
}

// Rebuild atomically replaces the entire entry set.
func (l *List) Rebuild(entries map[Key]*Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
}

// SetControl installs a new status-update control window.
func (l *List) SetControl(c StatusControl) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctrl = c
}

// Tick walks every entry once, returning the requests to send this cycle
// and any consolidated status payloads newly ready to publish.
func (l *List) Tick() (requests []Request, emissions map[Key][]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	emissions = make(map[Key][]byte)
	for key, e := range l.entries {
		if f := e.NextRequest(l.ctrl); f != nil {
			requests = append(requests, Request{Key: key, Frame: *f})
		}
		if b, ok := e.MaybeEmit(); ok {
			emissions[key] = b
		}
	}
	return requests, emissions
}

// ApplyResponse folds a response frame into the entry for key, if any, and
// reports whether the entry accepted it.
func (l *List) ApplyResponse(key Key, f hapcan.Frame) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return false
	}
	return e.ApplyResponse(f)
}

// ApplyRefreshScoped applies ApplyRefresh to every entry matching node/group,
// where 0 on either axis is a wildcard (spec.md §4.7's "group=0 or node=0
// are wildcards").
func (l *List) ApplyRefreshScoped(node, group uint8, scope RefreshScope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if (node != 0 && key.Node != node) || (group != 0 && key.Group != group) {
			continue
		}
		e.ApplyRefresh(scope)
	}
}

// Len reports the number of entries (used by the metrics gauge).
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Stats reports how many entries have observed every static and dynamic
// field (complete) versus how many are still waiting on at least one
// (pending), for the inventory completion gauges.
func (l *List) Stats() (complete, pending int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.dynamicComplete() && e.staticComplete() {
			complete++
		} else {
			pending++
		}
	}
	return complete, pending
}

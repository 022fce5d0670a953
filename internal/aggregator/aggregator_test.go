package aggregator

import "testing"

func TestRGBBuffersUntilMasterObserved(t *testing.T) {
	e := NewEntry(false, "hapcan/rgb/1/state", [4]string{})
	if out := e.Update(0, 100); out != nil {
		t.Fatalf("expected silent buffer before master, got %v", out)
	}
	if out := e.Update(1, 100); out != nil {
		t.Fatalf("expected silent buffer before master, got %v", out)
	}
	out := e.Update(2, 100)
	if out != nil {
		t.Fatalf("expected silent buffer before master (3rd component), got %v", out)
	}
	out = e.Update(3, 255) // master for RGB is index 3
	if len(out) != 1 || out[0].Topic != "hapcan/rgb/1/state" {
		t.Fatalf("expected combined emission once master known, got %v", out)
	}
	if out[0].Payload != "100,100,100" {
		t.Fatalf("payload = %q, want unchanged values at full master", out[0].Payload)
	}
}

func TestRGBWMasterZeroScalesToZero(t *testing.T) {
	e := NewEntry(true, "hapcan/rgbw/1/state", [4]string{})
	e.Update(0, 200)
	e.Update(1, 200)
	e.Update(2, 200)
	e.Update(3, 200)
	out := e.Update(4, 0) // master for RGBW is index 4
	if len(out) != 1 || out[0].Payload != "0,0,0,0" {
		t.Fatalf("expected all-zero combined payload at master=0, got %v", out)
	}
}

func TestPerChannelTopicEmitsScaledSingle(t *testing.T) {
	topics := [4]string{"hapcan/rgb/1/r", "hapcan/rgb/1/g", "hapcan/rgb/1/b", ""}
	e := NewEntry(false, "", topics)
	e.Update(3, 255) // master first
	out := e.Update(0, 128)
	if len(out) != 1 || out[0].Topic != "hapcan/rgb/1/r" || out[0].Payload != "128" {
		t.Fatalf("unexpected per-channel emission: %v", out)
	}
}

func TestTickRetiresAfterThreeStaleTicks(t *testing.T) {
	e := NewEntry(false, "hapcan/rgb/1/state", [4]string{})
	e.Update(0, 10)
	e.Tick() // dirty -> consumed, no-op
	e.Tick() // 1st stale
	e.Tick() // 2nd stale
	if e.Ignored() {
		t.Fatalf("retired too early")
	}
	e.Tick() // 3rd stale -> retire
	if !e.Ignored() {
		t.Fatalf("expected retirement after 3 stale ticks")
	}
	if e.updated[0] {
		t.Fatalf("expected updated flags cleared on retirement")
	}
}

func TestListRebuildReplacesEntries(t *testing.T) {
	l := NewList()
	l.Insert(Key{Node: 1, Group: 1}, NewEntry(false, "stale", [4]string{}))
	l.Rebuild(map[Key]*Entry{{Node: 2, Group: 1}: NewEntry(true, "fresh", [4]string{})})
	if _, ok := l.Get(Key{Node: 1, Group: 1}); ok {
		t.Fatalf("stale entry survived rebuild")
	}
	if _, ok := l.Get(Key{Node: 2, Group: 1}); !ok {
		t.Fatalf("fresh entry missing after rebuild")
	}
}

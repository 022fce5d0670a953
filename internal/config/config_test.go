package config

import "testing"

func TestParseDefaultsComputerID(t *testing.T) {
	snap, err := Parse([]byte(`{"mqttBroker":"tcp://localhost:1883"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap.ComputerID1 != 254 || snap.ComputerID2 != 254 {
		t.Fatalf("expected default computer IDs 254/254, got %d/%d", snap.ComputerID1, snap.ComputerID2)
	}
}

func TestParseHonorsExplicitComputerID(t *testing.T) {
	snap, err := Parse([]byte(`{"computerID1":10,"computerID2":20}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap.ComputerID1 != 10 || snap.ComputerID2 != 20 {
		t.Fatalf("got %d/%d", snap.ComputerID1, snap.ComputerID2)
	}
}

func TestParseOutOfRangeComputerIDFallsBackToDefault(t *testing.T) {
	snap, err := Parse([]byte(`{"computerID1":999}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap.ComputerID1 != 254 {
		t.Fatalf("expected default 254 for out-of-range value, got %d", snap.ComputerID1)
	}
}

func TestParseModuleDescriptors(t *testing.T) {
	doc := `{
		"HAPCANRelays": [{"node":1,"group":2,"topic":"hapcan/relay/1"}],
		"RGBWs": [{"node":3,"group":4,"topic":"hapcan/rgbw/1","isRGBW":true,"channel":-1}]
	}`
	snap, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(snap.HAPCANRelays) != 1 || snap.HAPCANRelays[0].Node != 1 {
		t.Fatalf("unexpected relays: %+v", snap.HAPCANRelays)
	}
	if len(snap.RGBWs) != 1 || !snap.RGBWs[0].IsRGBW {
		t.Fatalf("unexpected rgbws: %+v", snap.RGBWs)
	}
}

package mqttio

import "testing"

func TestNewWorkerStartsDisconnected(t *testing.T) {
	w := NewWorker(Config{Broker: "tcp://localhost:1883", ClientID: "gw-test"})
	if w.Connected() {
		t.Fatalf("expected fresh worker to be disconnected")
	}
	if w.Pub.Cap() != pubBufferCapacity || w.Sub.Cap() != subBufferCapacity {
		t.Fatalf("unexpected buffer capacities")
	}
}

func TestPublishWithoutConnectFails(t *testing.T) {
	w := NewWorker(Config{Broker: "tcp://localhost:1883", ClientID: "gw-test"})
	if err := w.Publish("hapcan/test", []byte("x")); err == nil {
		t.Fatalf("expected error publishing without a connection")
	}
}

func TestDrainPublishNoDataIsNoop(t *testing.T) {
	w := NewWorker(Config{Broker: "tcp://localhost:1883", ClientID: "gw-test"})
	if err := w.DrainPublish(); err != nil {
		t.Fatalf("expected nil for empty buffer, got %v", err)
	}
}

package controller

import (
	"context"
	"net"
	"testing"
	"time"

	"sdnctl/internal/config"
)

func TestRun_ListenerFaultKeepsServing(t *testing.T) {
	t.Parallel()

	// Occupy the telemetry port so the update listener cannot bind.
	busy, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer busy.Close()

	cfg := config.Config{
		Controller: &config.ControllerConfig{
			Listen:          "127.0.0.1:0",
			TelemetryListen: busy.LocalAddr().String(),
			DataDir:         t.TempDir(),
		},
	}
	config.ApplyDefaults(&cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_RequiresControllerSection(t *testing.T) {
	t.Parallel()

	if err := Run(context.Background(), config.Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

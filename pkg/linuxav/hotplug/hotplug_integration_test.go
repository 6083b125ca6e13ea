//go:build linux && integration

package hotplug

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestMonitorIntegration needs a real camera. Run with
// go test -tags=integration -run TestMonitorIntegration -timeout 60s
// and plug or unplug a USB camera within the timeout.
func TestMonitorIntegration(t *testing.T) {
	m, err := NewMonitor()
	if err != nil {
		t.Fatalf("NewMonitor() error: %v", err)
	}
	defer func() { _ = m.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events := make(chan Event, 10)
	go func() {
		if runErr := m.Run(ctx, events); runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) && !errors.Is(runErr, context.Canceled) {
			t.Logf("Run() error: %v", runErr)
		}
	}()

	t.Log("waiting for camera events, plug or unplug a USB camera")

	select {
	case ev := <-events:
		t.Logf("received event: %s %s (%s)", ev.Action, ev.Node, ev.KObj)
	case <-ctx.Done():
		t.Log("no events received, expected when no camera was plugged or unplugged")
	}
}

//go:build linux

package device

import (
	"context"
	"time"

	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/pkg/linuxav/hotplug"
)

// Monitor publishes hotplug events for video devices and releases
// registry state when a camera is unplugged.
type Monitor struct {
	cams *Registry
	bus  *events.Bus
	log  logging.Logger
}

// NewMonitor builds a hotplug monitor for the registry.
func NewMonitor(cams *Registry, bus *events.Bus) *Monitor {
	return &Monitor{
		cams: cams,
		bus:  bus,
		log:  logging.GetLogger("device"),
	}
}

// Run listens for kernel uevents until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	mon, err := hotplug.NewMonitor()
	if err != nil {
		return err
	}
	defer mon.Close()

	ch := make(chan hotplug.Event, 16)
	go func() {
		for ev := range ch {
			m.handle(ev)
		}
	}()

	m.log.Info("hotplug monitor started")
	return mon.Run(ctx, ch)
}

func (m *Monitor) handle(ev hotplug.Event) {
	switch ev.Action {
	case hotplug.ActionAdd:
		m.log.Info("video device attached", "path", ev.Node)
	case hotplug.ActionRemove:
		m.log.Info("video device removed", "path", ev.Node)
		// Stop the capture loop so viewers see the failure instead
		// of a stalled stream.
		m.cams.Stop(ID(ev.Node))
	default:
		return
	}
	m.bus.Publish(events.DeviceHotplugEvent{
		Action:     ev.Action,
		DevicePath: ev.Node,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

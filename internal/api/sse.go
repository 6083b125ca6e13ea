package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/camkit/camserver/internal/events"
)

// registerSSERoutes registers the native huma SSE event feed.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-sent event stream",
		Description: "Capture results, stream lifecycle and config changes in real time",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"capture-success": events.CaptureSuccessEvent{},
		"capture-error":   events.CaptureErrorEvent{},
		"stream-started":  events.StreamStartedEvent{},
		"stream-stopped":  events.StreamStoppedEvent{},
		"transcoder-exit": events.TranscoderExitEvent{},
		"config-updated":  events.ConfigUpdatedEvent{},
		"timelapse-ready": events.TimelapseReadyEvent{},
		"device-hotplug":  events.DeviceHotplugEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.CaptureSuccessEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.StreamStartedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.StreamStoppedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.TranscoderExitEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.ConfigUpdatedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.TimelapseReadyEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.DeviceHotplugEvent](s.opts.Bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}

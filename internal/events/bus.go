package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(CaptureSuccessEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event's Publish is generic over the concrete type, so
	// dispatch through a type switch.
	switch e := ev.(type) {
	case CaptureSuccessEvent:
		event.Publish(b.dispatcher, e)
	case CaptureErrorEvent:
		event.Publish(b.dispatcher, e)
	case StreamStartedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStoppedEvent:
		event.Publish(b.dispatcher, e)
	case TranscoderExitEvent:
		event.Publish(b.dispatcher, e)
	case ConfigUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case TimelapseReadyEvent:
		event.Publish(b.dispatcher, e)
	case DeviceHotplugEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type determines which events it receives. Returns an
// unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e CaptureSuccessEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CaptureSuccessEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TranscoderExitEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TimelapseReadyEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceHotplugEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unrecognized handler signature gets a no-op unsubscribe.
		return func() {}
	}
}

// SubscribeToChannel subscribes events of type T onto ch, dropping
// events when the channel is full. Returns an unsubscribe function.
func SubscribeToChannel[T event.Event](b *Bus, ch chan<- any) func() {
	return event.Subscribe(b.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Close shuts down the underlying dispatcher.
func (b *Bus) Close() error {
	return b.dispatcher.Close()
}

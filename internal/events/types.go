// Package events is the typed in-process event bus. Subsystems publish
// lifecycle and capture events; the SSE endpoint and metrics collectors
// subscribe.
package events

// Event type constants for kelindar/event.
const (
	TypeCaptureSuccess uint32 = iota + 1
	TypeCaptureError
	TypeStreamStarted
	TypeStreamStopped
	TypeTranscoderExit
	TypeConfigUpdated
	TypeTimelapseReady
	TypeDeviceHotplug
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CaptureSuccessEvent represents a successful timelapse still capture.
type CaptureSuccessEvent struct {
	DeviceID  string `json:"device_id" example:"/dev/video0" doc:"Device identifier"`
	Name      string `json:"name" example:"print-42" doc:"Capture series name"`
	FilePath  string `json:"file_path" doc:"Path of the written JPEG"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Capture timestamp"`
}

// Type returns the event type identifier for CaptureSuccessEvent.
func (e CaptureSuccessEvent) Type() uint32 { return TypeCaptureSuccess }

// CaptureErrorEvent represents a failed timelapse still capture.
type CaptureErrorEvent struct {
	DeviceID  string `json:"device_id" example:"/dev/video0" doc:"Device identifier"`
	Name      string `json:"name" example:"print-42" doc:"Capture series name"`
	Error     string `json:"error" example:"no frame within 10s" doc:"Detailed error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Error timestamp"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// StreamStartedEvent is published when a device gains its first viewer
// on a transport.
type StreamStartedEvent struct {
	DeviceID  string `json:"device_id" example:"/dev/video0" doc:"Device identifier"`
	Transport string `json:"transport" example:"rawvideo" doc:"Viewer transport"`
	Viewers   int    `json:"viewers" example:"1" doc:"Viewer count after connect"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartedEvent.
func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStoppedEvent is published when a device loses its last viewer
// on a transport.
type StreamStoppedEvent struct {
	DeviceID  string `json:"device_id" example:"/dev/video0" doc:"Device identifier"`
	Transport string `json:"transport" example:"rawvideo" doc:"Viewer transport"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// TranscoderExitEvent is published when a transcoder subprocess exits.
type TranscoderExitEvent struct {
	DeviceID  string `json:"device_id" example:"/dev/video0" doc:"Device identifier"`
	Transport string `json:"transport" example:"rawvideo" doc:"Transport the transcoder served"`
	Requested bool   `json:"requested" example:"false" doc:"Whether the exit was a requested stop"`
	Error     string `json:"error,omitempty" doc:"Exit error, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TranscoderExitEvent.
func (e TranscoderExitEvent) Type() uint32 { return TypeTranscoderExit }

// ConfigUpdatedEvent is published when a runtime config key changes.
type ConfigUpdatedEvent struct {
	Key       string `json:"key" example:"captureEnable" doc:"Changed config key"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigUpdatedEvent.
func (e ConfigUpdatedEvent) Type() uint32 { return TypeConfigUpdated }

// TimelapseReadyEvent is published when a timelapse assembly finishes.
type TimelapseReadyEvent struct {
	Name      string `json:"name" example:"print-42" doc:"Capture series name"`
	FilePath  string `json:"file_path" doc:"Path of the assembled MP4"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TimelapseReadyEvent.
func (e TimelapseReadyEvent) Type() uint32 { return TypeTimelapseReady }

// DeviceHotplugEvent is published when a video device is attached to
// or removed from the system.
type DeviceHotplugEvent struct {
	Action     string `json:"action" example:"add" doc:"Kernel uevent action"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Device node path"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceHotplugEvent.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }

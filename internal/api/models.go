package api

import (
	"github.com/camkit/camserver/internal/capture"
	"github.com/camkit/camserver/internal/stream"
)

// DeviceInfo describes one attached video device.
type DeviceInfo struct {
	ID         string   `json:"id" doc:"Opaque device identifier used in stream URLs"`
	Path       string   `json:"path" example:"/dev/video0" doc:"Device node path"`
	Name       string   `json:"name" example:"HD Webcam" doc:"Device product name"`
	StableID   string   `json:"stable_id,omitempty" doc:"USB-port derived stable identifier"`
	Remote     bool     `json:"remote" doc:"Whether the device is a network camera"`
	Transports []string `json:"transports" doc:"Supported viewer transports"`
}

// DeviceListResponse wraps the device inventory.
type DeviceListResponse struct {
	Body struct {
		Devices []DeviceInfo `json:"devices"`
	}
}

// FormatInfo describes one capturable format combination.
type FormatInfo struct {
	Name   string  `json:"name" example:"MJPG" doc:"FourCC description"`
	Width  uint32  `json:"width"`
	Height uint32  `json:"height"`
	FPS    float64 `json:"fps" doc:"Frame rate for this combination"`
}

// FormatListResponse wraps a device's capture formats.
type FormatListResponse struct {
	Body struct {
		Formats []FormatInfo `json:"formats"`
	}
}

// ControlInfo describes one hardware control and its range.
type ControlInfo struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name" example:"Zoom, Absolute"`
	Min     int32  `json:"min"`
	Max     int32  `json:"max"`
	Step    int32  `json:"step"`
	Default int32  `json:"default"`
}

// ControlListResponse wraps a device's hardware controls.
type ControlListResponse struct {
	Body struct {
		Controls []ControlInfo `json:"controls"`
	}
}

// ControlInput carries one PTZ action, mirroring the WebSocket
// control contract.
type ControlInput struct {
	Device string `path:"device" doc:"Encoded device identifier"`
	Body   struct {
		Action string `json:"action" enum:"zoom,zoom_absolute,move,move_stop,move_step" doc:"Control action"`
		Axis   string `json:"axis,omitempty" enum:"pan,tilt" doc:"Movement axis for move actions"`
		Dir    int    `json:"dir,omitempty" doc:"Direction, +1 or -1"`
		Value  int32  `json:"value,omitempty" doc:"Absolute value for zoom_absolute"`
	}
}

// ControlResponse reports the zoom position after a control action.
type ControlResponse struct {
	Body struct {
		Zoom int32 `json:"zoom" doc:"Current zoom value"`
	}
}

// StreamListResponse wraps the active viewer sessions.
type StreamListResponse struct {
	Body struct {
		Streams []stream.Info `json:"streams"`
	}
}

// ConfigResponse wraps the full runtime settings map.
type ConfigResponse struct {
	Body map[string]any
}

// ConfigUpdateInput carries one runtime setting change.
type ConfigUpdateInput struct {
	Key  string `path:"key" doc:"Setting key"`
	Body struct {
		Value any `json:"value" doc:"New value"`
	}
}

// SequenceListResponse wraps the capture series inventory.
type SequenceListResponse struct {
	Body struct {
		Sequences []capture.Sequence `json:"sequences"`
	}
}

// TimelapseListResponse wraps the finished video inventory.
type TimelapseListResponse struct {
	Body struct {
		Videos []capture.Video `json:"videos"`
	}
}

// AssembleInput names the sequence to render.
type AssembleInput struct {
	Name string `path:"name" maxLength:"128" doc:"Capture series name"`
}

// AssembleResponse reports the rendered file.
type AssembleResponse struct {
	Body struct {
		FilePath string `json:"file_path" doc:"Path of the assembled MP4"`
	}
}

// PingResponse is the health check body.
type PingResponse struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

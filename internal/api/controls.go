package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/camkit/camserver/internal/config"
	"github.com/camkit/camserver/internal/device"
)

func (s *Server) registerControlRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-device-formats",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}/formats",
		Summary:     "List device formats",
		Description: "Enumerate the capture formats a local camera advertises",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500},
	}, func(ctx context.Context, input *struct {
		Device string `path:"device" doc:"Encoded device identifier"`
	}) (*FormatListResponse, error) {
		cam, err := s.localCamera(input.Device)
		if err != nil {
			return nil, err
		}
		formats, err := cam.Formats()
		if err != nil {
			return nil, huma.Error500InternalServerError("format enumeration failed", err)
		}
		resp := &FormatListResponse{}
		resp.Body.Formats = make([]FormatInfo, len(formats))
		for i, f := range formats {
			resp.Body.Formats[i] = FormatInfo{
				Name:   f.Name,
				Width:  f.Width,
				Height: f.Height,
				FPS:    f.FPS(),
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-device-controls",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}/controls",
		Summary:     "List device controls",
		Description: "Enumerate the hardware controls a local camera exposes",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500},
	}, func(ctx context.Context, input *struct {
		Device string `path:"device" doc:"Encoded device identifier"`
	}) (*ControlListResponse, error) {
		cam, err := s.localCamera(input.Device)
		if err != nil {
			return nil, err
		}
		controls, err := cam.Controls()
		if err != nil {
			return nil, huma.Error500InternalServerError("control enumeration failed", err)
		}
		resp := &ControlListResponse{}
		resp.Body.Controls = make([]ControlInfo, len(controls))
		for i, c := range controls {
			resp.Body.Controls[i] = ControlInfo{
				ID:      c.ID,
				Name:    c.Name,
				Min:     c.Min,
				Max:     c.Max,
				Step:    c.Step,
				Default: c.Default,
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "control-device",
		Method:      http.MethodPost,
		Path:        "/api/devices/{device}/control",
		Summary:     "Apply a PTZ action",
		Description: "Zoom or move a local camera, same contract as the WebSocket control channel",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 403, 500},
	}, func(ctx context.Context, input *ControlInput) (*ControlResponse, error) {
		if !s.opts.Settings.Bool(config.KeyControlsEnable) {
			return nil, huma.Error403Forbidden("camera controls are disabled")
		}
		cam, err := s.localCamera(input.Device)
		if err != nil {
			return nil, err
		}
		var cmdErr error
		switch input.Body.Action {
		case "zoom":
			cmdErr = cam.ZoomRelative(input.Body.Dir)
		case "zoom_absolute":
			cmdErr = cam.ZoomAbsolute(input.Body.Value)
		case "move":
			cmdErr = cam.MoveSpeed(device.Axis(input.Body.Axis), input.Body.Dir)
		case "move_stop":
			cmdErr = cam.MoveStop(device.Axis(input.Body.Axis))
		case "move_step":
			cmdErr = cam.MoveRelative(device.Axis(input.Body.Axis), input.Body.Dir)
		}
		if cmdErr != nil {
			return nil, huma.Error500InternalServerError("control failed", cmdErr)
		}
		resp := &ControlResponse{}
		resp.Body.Zoom = cam.Zoom()
		return resp, nil
	})
}

// localCamera resolves an encoded path segment to a local camera
// record, mapping failures to client errors.
func (s *Server) localCamera(encoded string) (*device.Camera, error) {
	id, err := device.DecodeID(encoded)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid device id", err)
	}
	cam, err := s.opts.Cams.Get(id)
	if err != nil {
		return nil, huma.Error400BadRequest("not a usable local device", err)
	}
	return cam, nil
}

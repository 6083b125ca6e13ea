package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/camkit/camserver/internal/stream"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List devices",
		Description: "Enumerate attached local cameras",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*DeviceListResponse, error) {
		resp := &DeviceListResponse{}
		if s.opts.ListDevices == nil {
			resp.Body.Devices = []DeviceInfo{}
			return resp, nil
		}
		devices, err := s.opts.ListDevices()
		if err != nil {
			return nil, huma.Error500InternalServerError("device enumeration failed", err)
		}
		for i := range devices {
			devices[i].Transports = transportNames()
		}
		resp.Body.Devices = devices
		return resp, nil
	})
}

func transportNames() []string {
	ts := stream.Transports()
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

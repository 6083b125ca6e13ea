package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List viewer sessions",
		Description: "Current viewer counts and transcoder state per device",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*StreamListResponse, error) {
		resp := &StreamListResponse{}
		resp.Body.Streams = s.opts.Sessions.List()
		return resp, nil
	})
}

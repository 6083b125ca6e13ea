package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/camkit/camserver/internal/capture"
	"github.com/camkit/camserver/internal/config"
)

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-captures",
		Method:      http.MethodGet,
		Path:        "/api/captures",
		Summary:     "List capture series",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*SequenceListResponse, error) {
		seqs, err := capture.ListSequences(s.opts.Job.Dir())
		if err != nil {
			return nil, huma.Error500InternalServerError("capture listing failed", err)
		}
		resp := &SequenceListResponse{}
		resp.Body.Sequences = seqs
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "trigger-capture",
		Method:      http.MethodPost,
		Path:        "/api/captures/trigger",
		Summary:     "Capture one frame now",
		Description: "Takes a snapshot with the current settings, outside the schedule",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*PingResponse, error) {
		s.opts.Job.CaptureOnce(ctx)
		resp := &PingResponse{}
		resp.Body.Status = "ok"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-timelapses",
		Method:      http.MethodGet,
		Path:        "/api/timelapses",
		Summary:     "List finished timelapse videos",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*TimelapseListResponse, error) {
		videos, err := capture.ListVideos(s.opts.Assembler.OutDir())
		if err != nil {
			return nil, huma.Error500InternalServerError("video listing failed", err)
		}
		resp := &TimelapseListResponse{}
		resp.Body.Videos = videos
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "assemble-timelapse",
		Method:      http.MethodPost,
		Path:        "/api/timelapses/{name}",
		Summary:     "Assemble a capture series into a video",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500},
	}, func(ctx context.Context, input *AssembleInput) (*AssembleResponse, error) {
		fps := float64(s.opts.Settings.Int(config.KeyTimelapseFPS))
		path, err := s.opts.Assembler.Assemble(ctx, input.Name, fps)
		if err != nil {
			return nil, huma.Error500InternalServerError("assembly failed", err)
		}
		resp := &AssembleResponse{}
		resp.Body.FilePath = path
		return resp, nil
	})
}

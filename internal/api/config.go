package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerConfigRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/api/config",
		Summary:     "Get runtime settings",
		Tags:        []string{"config"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*ConfigResponse, error) {
		return &ConfigResponse{Body: s.opts.Settings.All()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-config-key",
		Method:      http.MethodPut,
		Path:        "/api/config/{key}",
		Summary:     "Update one runtime setting",
		Description: "Persists the change and publishes a config update event",
		Tags:        []string{"config"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(ctx context.Context, input *ConfigUpdateInput) (*ConfigResponse, error) {
		if err := s.opts.Settings.Set(input.Key, input.Body.Value); err != nil {
			return nil, huma.Error400BadRequest("setting rejected", err)
		}
		return &ConfigResponse{Body: s.opts.Settings.All()}, nil
	})
}

// Package api serves the HTTP surface: the JSON management API, the
// snapshot/MJPEG/WebSocket stream endpoints and the SSE event feed.
package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/camkit/camserver/internal/capture"
	"github.com/camkit/camserver/internal/config"
	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/stream"
	"github.com/camkit/camserver/internal/version"
)

// DeviceLister enumerates attached local cameras. Injected so the api
// package stays portable off Linux.
type DeviceLister func() ([]DeviceInfo, error)

// Options carries the server's dependencies and settings.
type Options struct {
	AuthUsername string
	AuthPassword string

	Cams        *device.Registry
	Sessions    *stream.Sessions
	Settings    *config.Store
	Bus         *events.Bus
	Job         *capture.Job
	Assembler   *capture.Assembler
	ListDevices DeviceLister

	// Optional promhttp handler; served unauthenticated at /metrics.
	PrometheusHandler http.Handler
}

// Server is the huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	opts       *Options
	log        logging.Logger
}

// NewServer builds the server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	cfg := huma.DefaultConfig("camserver API", version.Get().Version)
	cfg.Info.Description = "Camera streaming and timelapse capture API"
	cfg.Servers = []*huma.Server{}
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	s := &Server{
		api:  humago.New(mux, cfg),
		mux:  mux,
		opts: opts,
		log:  logging.GetLogger("api"),
	}

	s.api.UseMiddleware(NewCORSMiddleware(corsConfig))
	s.api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		s.api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	s.registerStreamHandlers()
	return s
}

// Mux returns the underlying mux for extra handlers.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// API returns the huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop.
func (s *Server) Start(addr string) error {
	s.log.Info("api server listening", "addr", addr, "docs", "http://"+addr+"/docs")
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for streaming clients,
// which would otherwise hold the connection open indefinitely.
func (s *Server) Stop() error {
	s.log.Info("api server stopping")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/ping",
		Summary:     "Health check",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*PingResponse, error) {
		resp := &PingResponse{}
		resp.Body.Status = "ok"
		return resp, nil
	})

	s.registerDeviceRoutes()
	s.registerControlRoutes()
	s.registerConfigRoutes()
	s.registerCaptureRoutes()
	s.registerSessionRoutes()
	s.registerSSERoutes()
}

// withAuth marks an operation as requiring basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}

// basicAuthMiddleware enforces HTTP basic auth on operations that
// declare a security requirement. Browsers cannot set headers on
// EventSource or WebSocket requests, so a base64 "auth" query
// parameter is accepted as a fallback.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials, ok := decodeCredentials(ctx.Header("Authorization"), ctx.Query("auth"))
		if !ok {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="camserver API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}
		user, pass, ok := strings.Cut(credentials, ":")
		if !ok || user != username || pass != password {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="camserver API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

func decodeCredentials(authHeader, queryAuth string) (string, bool) {
	encoded := ""
	switch {
	case strings.HasPrefix(authHeader, "Basic "):
		encoded = strings.TrimPrefix(authHeader, "Basic ")
	case queryAuth != "":
		encoded = queryAuth
	default:
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// checkBasicAuth applies the same credentials check to raw mux
// handlers outside huma.
func (s *Server) checkBasicAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.AuthUsername == "" || s.opts.AuthPassword == "" {
		return true
	}
	credentials, ok := decodeCredentials(r.Header.Get("Authorization"), r.URL.Query().Get("auth"))
	if ok {
		user, pass, found := strings.Cut(credentials, ":")
		if found && user == s.opts.AuthUsername && pass == s.opts.AuthPassword {
			return true
		}
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="camserver API"`)
	http.Error(w, "Authentication required", http.StatusUnauthorized)
	return false
}

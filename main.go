package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/camkit/camserver/cmd"
	"github.com/camkit/camserver/internal/api"
	"github.com/camkit/camserver/internal/capture"
	"github.com/camkit/camserver/internal/config"
	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/metrics"
	"github.com/camkit/camserver/internal/rtsp"
	"github.com/camkit/camserver/internal/sched"
	"github.com/camkit/camserver/internal/stream"
	"github.com/camkit/camserver/internal/systemd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port     string `help:"HTTP listen address" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	RTSPPort string `help:"RTSP listen address" default:":8554" toml:"server.rtsp_port" env:"SERVER_RTSP_PORT"`

	// Storage settings; empty values resolve under the XDG base dirs.
	SettingsFile string `help:"Runtime settings file" default:"" toml:"storage.settings_file" env:"STORAGE_SETTINGS_FILE"`
	CapturesDir  string `help:"Captured frame directory" default:"" toml:"storage.captures_dir" env:"STORAGE_CAPTURES_DIR"`
	TimelapseDir string `help:"Finished timelapse directory" default:"" toml:"storage.timelapse_dir" env:"STORAGE_TIMELAPSE_DIR"`

	// Camera settings
	FPS           int    `help:"Target capture frame rate" default:"30" toml:"camera.fps" env:"CAMERA_FPS"`
	FFmpegBinary  string `help:"ffmpeg binary" default:"ffmpeg" toml:"camera.ffmpeg" env:"CAMERA_FFMPEG"`
	ReapIdleAfter string `help:"Stop cameras idle for this long" default:"1m" toml:"camera.reap_idle_after" env:"CAMERA_REAP_IDLE_AFTER"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingDevice  string `help:"Device layer logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingStream  string `help:"Stream layer logging level" default:"info" toml:"logging.stream" env:"LOGGING_STREAM"`
	LoggingFFmpeg  string `help:"ffmpeg output logging level" default:"warn" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingCapture string `help:"Capture job logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingRTSP    string `help:"RTSP server logging level" default:"info" toml:"logging.rtsp" env:"LOGGING_RTSP"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// The [logging] table may set levels for modules that have no
		// dedicated flag (reaper, sched, timelapse, config).
		logCfg := config.LoadLoggingConfig(opts.Config)
		logCfg.Level = opts.LoggingLevel
		logCfg.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			"device":   opts.LoggingDevice,
			"sessions": opts.LoggingStream,
			"ffmpeg":   opts.LoggingFFmpeg,
			"capture":  opts.LoggingCapture,
			"rtsp":     opts.LoggingRTSP,
			"api":      opts.LoggingAPI,
		} {
			logCfg.Modules[module] = level
		}
		logging.Initialize(logCfg)
		logger := logging.GetLogger("main")

		settingsFile := opts.SettingsFile
		if settingsFile == "" {
			settingsFile = filepath.Join(xdg.ConfigHome, "camserver", "settings.json")
		}
		capturesDir := opts.CapturesDir
		if capturesDir == "" {
			capturesDir = filepath.Join(xdg.DataHome, "camserver", "captures")
		}
		timelapseDir := opts.TimelapseDir
		if timelapseDir == "" {
			timelapseDir = filepath.Join(xdg.DataHome, "camserver", "timelapses")
		}

		bus := events.New()

		_, statErr := os.Stat(settingsFile)
		firstRun := os.IsNotExist(statErr)

		settings, err := config.NewStore(settingsFile, bus)
		if err != nil {
			logger.Error("Failed to load runtime settings", "error", err)
			os.Exit(1)
		}
		if firstRun {
			// Seed the device settings from whatever is attached
			// instead of the static default.
			if devs, devErr := device.ListDevices(); devErr == nil && len(devs) > 0 {
				first := devs[0].DevicePath
				settings.Set(config.KeyCaptureDevice, first)
				settings.Set(config.KeyControlsDevice, first)
			}
		}

		// Pick up external edits to the settings file.
		settingsWatcher := config.NewFileWatcher(settingsFile, settings.Reload)

		cams := device.NewRegistry(device.OpenV4L2, device.RegistryConfig{
			FPS: float64(opts.FPS),
		})

		rtspHost := "127.0.0.1" + opts.RTSPPort
		if opts.RTSPPort != "" && opts.RTSPPort[0] != ':' {
			rtspHost = opts.RTSPPort
		}
		sessions := stream.NewSessions(cams, bus, stream.Config{
			FFmpeg:          opts.FFmpegBinary,
			RTSPPublishBase: "rtsp://" + rtspHost,
		})

		job := capture.NewJob(cams, settings, bus, capturesDir)
		assembler := capture.NewAssembler(opts.FFmpegBinary, capturesDir, timelapseDir, bus)

		reaper := stream.NewReaper(cams, sessions, job.Holding,
			0, parseDurationOr(opts.ReapIdleAfter, stream.DefaultIdleAfter))

		runner := sched.NewRunner()
		runner.Add(job.Scheduled())
		runner.Add(reaper.Scheduled())
		runner.Add(assembler.Scheduled())

		detachMetrics := metrics.Observe(bus)

		monitor := device.NewMonitor(cams, bus)

		rtspServer := rtsp.NewServer(rtsp.NewHub(), sessions)

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Cams:              cams,
			Sessions:          sessions,
			Settings:          settings,
			Bus:               bus,
			Job:               job,
			Assembler:         assembler,
			ListDevices:       listLocalDevices,
			PrometheusHandler: promhttp.Handler(),
		})

		runCtx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			// The RTSP listener must be up before any viewer triggers
			// an ffmpeg push.
			if startErr := rtspServer.Start(opts.RTSPPort); startErr != nil {
				logger.Error("Failed to start RTSP server", "error", startErr)
				os.Exit(1)
			}
			if startErr := settingsWatcher.Start(); startErr != nil {
				logger.Warn("Settings watcher failed to start", "error", startErr)
			}
			go runner.Run(runCtx)
			go func() {
				if monErr := monitor.Run(runCtx); monErr != nil && runCtx.Err() == nil {
					logger.Warn("Hotplug monitor stopped", "error", monErr)
				}
			}()

			systemd.NotifyReady()
			go systemd.RunWatchdog(runCtx)

			logger.Info("Starting HTTP server", "addr", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			systemd.NotifyStopping()
			cancel()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			sessions.Shutdown()
			if stopErr := rtspServer.Stop(); stopErr != nil {
				logger.Error("Error stopping RTSP server", "error", stopErr)
			}
			for _, cam := range cams.Cameras() {
				cams.Stop(cam.ID())
			}
			_ = settingsWatcher.Stop()
			detachMetrics()
			bus.Close()
		})
	})

	cli.Root().AddCommand(cmd.CreateSnapshotCmd())
	cli.Run()
}

// listLocalDevices adapts the V4L2 enumeration to the API shape.
func listLocalDevices() ([]api.DeviceInfo, error) {
	found, err := device.ListDevices()
	if err != nil {
		return nil, err
	}
	out := make([]api.DeviceInfo, 0, len(found))
	for _, d := range found {
		id := device.ID(d.DevicePath)
		out = append(out, api.DeviceInfo{
			ID:       device.EncodeID(id),
			Path:     d.DevicePath,
			Name:     d.DeviceName,
			StableID: d.DeviceID,
		})
	}
	return out, nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/ffmpeg"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/process"
)

// Config carries the session manager tunables.
type Config struct {
	// FFmpeg is the transcoder binary.
	FFmpeg string
	// RTSPPublishBase is where RTSP-push pipelines publish, for
	// example "rtsp://127.0.0.1:8554". The encoded device ID is
	// appended as the path.
	RTSPPublishBase string
}

// ArgsBuilder produces the transcoder argv for a transport. Overridden
// in tests to avoid spawning FFmpeg.
type ArgsBuilder func(binary string, transport Transport, in ffmpeg.Input, rtspURL string) []string

func defaultArgsBuilder(binary string, transport Transport, in ffmpeg.Input, rtspURL string) []string {
	enc := ffmpeg.LiveEncodeDefaults(in.FPS)
	switch transport {
	case TransportRTSP:
		return append([]string{binary}, ffmpeg.RTSPPushArgs(in, enc, rtspURL)...)
	default:
		return append([]string{binary}, ffmpeg.RawVideoArgs(in, enc)...)
	}
}

// Session tracks the viewers of one device: a counter per transport,
// the time the last viewer left, the running transcoders and the H264
// fan-out.
type Session struct {
	deviceID device.ID

	mu             sync.Mutex
	counters       map[Transport]int
	lastDisconnect time.Time
	transcoders    map[Transport]*transcoder
	broadcaster    *Broadcaster
}

// DeviceID returns the device this session tracks.
func (s *Session) DeviceID() device.ID { return s.deviceID }

// Broadcaster returns the raw H264 chunk fan-out for this device.
func (s *Session) Broadcaster() *Broadcaster { return s.broadcaster }

// Viewers returns the viewer count for one transport.
func (s *Session) Viewers(t Transport) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[t]
}

// Active reports whether any transport has viewers.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *Session) activeLocked() bool {
	for _, n := range s.counters {
		if n > 0 {
			return true
		}
	}
	return false
}

// LastDisconnect returns when the most recent viewer left, or the zero
// time if no viewer has ever disconnected.
func (s *Session) LastDisconnect() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDisconnect
}

// TranscoderRunning reports whether a transcoder is up for a transport.
func (s *Session) TranscoderRunning(t Transport) bool {
	s.mu.Lock()
	tc := s.transcoders[t]
	s.mu.Unlock()
	return tc != nil && tc.running()
}

// Info is a point-in-time snapshot of a session for the status API.
type Info struct {
	DeviceID       string          `json:"device_id" doc:"Device identifier"`
	Viewers        map[string]int  `json:"viewers" doc:"Viewer count per transport"`
	Transcoders    map[string]bool `json:"transcoders" doc:"Running transcoder per transport"`
	LastDisconnect int64           `json:"last_disconnect_ms" doc:"Unix ms of the last viewer disconnect, 0 if never"`
}

// Snapshot captures the session state for the status API.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		DeviceID:    string(s.deviceID),
		Viewers:     make(map[string]int, len(s.counters)),
		Transcoders: make(map[string]bool, len(s.transcoders)),
	}
	for _, t := range Transports() {
		info.Viewers[string(t)] = s.counters[t]
	}
	for t, tc := range s.transcoders {
		info.Transcoders[string(t)] = tc.running()
	}
	if !s.lastDisconnect.IsZero() {
		info.LastDisconnect = s.lastDisconnect.UnixMilli()
	}
	return info
}

// Sessions is the streaming session manager. It owns one Session per
// device and starts and stops transcoders as viewer counts cross zero.
type Sessions struct {
	cams      *device.Registry
	bus       *events.Bus
	cfg       Config
	log       logging.Logger
	buildArgs ArgsBuilder

	mu       sync.Mutex
	sessions map[device.ID]*Session
}

// NewSessions builds the session manager.
func NewSessions(cams *device.Registry, bus *events.Bus, cfg Config) *Sessions {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = ffmpeg.DefaultBinary
	}
	return &Sessions{
		cams:      cams,
		bus:       bus,
		cfg:       cfg,
		log:       logging.GetLogger("sessions"),
		buildArgs: defaultArgsBuilder,
		sessions:  make(map[device.ID]*Session),
	}
}

// Get returns the session for a device, creating it on first use.
func (m *Sessions) Get(id device.ID) (*Session, error) {
	if _, err := device.Classify(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := &Session{
		deviceID:    id,
		counters:    make(map[Transport]int),
		transcoders: make(map[Transport]*transcoder),
		broadcaster: NewBroadcaster(),
	}
	m.sessions[id] = s
	return s, nil
}

// List snapshots every known session.
func (m *Sessions) List() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot())
	}
	return infos
}

// Connect registers a viewer on a device and transport. The first
// viewer of a transcoded transport starts its transcoder; the first
// MJPEG viewer of a local device starts the capture loop. On error the
// viewer is not counted.
func (m *Sessions) Connect(ctx context.Context, id device.ID, transport Transport) (*Session, error) {
	if !transport.Valid() {
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.counters[transport]++
	count := s.counters[transport]
	s.mu.Unlock()

	// The first viewer starts the transcoder; after an unexpected
	// exit the handle is gone and the next viewer respawns it. A
	// racing start losing to another viewer's spawn is fine.
	if transport.Transcoded() && !s.TranscoderRunning(transport) {
		if err := m.startTranscoder(ctx, s, transport); err != nil && !errors.Is(err, ErrTranscoderRunning) {
			m.uncount(s, transport)
			return nil, err
		}
	}
	if transport == TransportMJPEG && id.IsLocal() {
		if err := m.cams.Start(ctx, id); err != nil {
			m.uncount(s, transport)
			return nil, err
		}
	}

	m.log.Info("viewer connected", "device", id, "transport", transport, "viewers", count)
	m.bus.Publish(events.StreamStartedEvent{
		DeviceID:  string(id),
		Transport: string(transport),
		Viewers:   count,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return s, nil
}

// Disconnect removes a viewer. The count never goes below zero; the
// last viewer of a transcoded transport kills its transcoder.
func (m *Sessions) Disconnect(id device.ID, transport Transport) {
	s, err := m.Get(id)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.counters[transport] > 0 {
		s.counters[transport]--
	}
	count := s.counters[transport]
	s.lastDisconnect = time.Now()
	var tc *transcoder
	if count == 0 && transport.Transcoded() {
		tc = s.transcoders[transport]
		delete(s.transcoders, transport)
	}
	s.mu.Unlock()

	if tc != nil {
		tc.stop()
	}
	m.log.Info("viewer disconnected", "device", id, "transport", transport, "viewers", count)
	if count == 0 {
		m.bus.Publish(events.StreamStoppedEvent{
			DeviceID:  string(id),
			Transport: string(transport),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// uncount rolls back a failed Connect. The viewer never saw a frame,
// so lastDisconnect stays untouched and the reaper does not treat the
// device as recently active.
func (m *Sessions) uncount(s *Session, transport Transport) {
	s.mu.Lock()
	if s.counters[transport] > 0 {
		s.counters[transport]--
	}
	s.mu.Unlock()
}

// startTranscoder spawns the transcoder for a transport. Racing starts
// lose with ErrTranscoderRunning.
func (m *Sessions) startTranscoder(ctx context.Context, s *Session, transport Transport) error {
	s.mu.Lock()
	if s.transcoders[transport] != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrTranscoderRunning, s.deviceID, transport)
	}
	s.mu.Unlock()

	id := s.deviceID
	kind, err := device.Classify(id)
	if err != nil {
		return err
	}

	var in ffmpeg.Input
	var cam *device.Camera
	switch kind {
	case device.KindLocal:
		if err := m.cams.Start(ctx, id); err != nil {
			return fmt.Errorf("start camera for %s: %w", transport, err)
		}
		cam, err = m.cams.Get(id)
		if err != nil {
			return err
		}
		in = ffmpeg.StdinInput(cam.FPS())
	case device.KindRemoteMJPEG:
		url, err := id.StreamURL()
		if err != nil {
			return err
		}
		in = ffmpeg.URLInput(url, device.DefaultFPS)
	default:
		// WS-proxied remotes are relayed verbatim, never
		// transcoded here.
		return fmt.Errorf("%w: %s/%s", ErrUnsupportedTransport, id, transport)
	}

	rtspURL := m.cfg.RTSPPublishBase + "/" + device.EncodeID(id)
	argv := m.buildArgs(m.cfg.FFmpeg, transport, in, rtspURL)

	name := fmt.Sprintf("%s %s", transport, id)
	opts := []process.Option{
		process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLine),
	}
	if cam != nil {
		opts = append(opts, process.WithStdin())
	}
	if transport == TransportRawVideo {
		opts = append(opts, process.WithStdout(s.broadcaster.Publish))
	}

	tc := &transcoder{cam: cam, log: m.log}
	opts = append(opts, process.WithExitCallback(func(exitErr error, requested bool) {
		m.onTranscoderExit(s, transport, tc, exitErr, requested)
	}))
	tc.proc = process.New(name, argv, opts...)

	if err := tc.start(); err != nil {
		return fmt.Errorf("start transcoder %s: %w", name, err)
	}

	s.mu.Lock()
	if s.transcoders[transport] != nil {
		s.mu.Unlock()
		tc.stop()
		return fmt.Errorf("%w: %s/%s", ErrTranscoderRunning, id, transport)
	}
	s.transcoders[transport] = tc
	s.mu.Unlock()

	m.log.Info("transcoder started", "device", id, "transport", transport)
	return nil
}

// onTranscoderExit clears the dead handle. There is no automatic
// retry; attached viewers see the feed halt and the next Connect for
// the transport spawns a fresh transcoder.
func (m *Sessions) onTranscoderExit(s *Session, transport Transport, tc *transcoder, exitErr error, requested bool) {
	s.mu.Lock()
	if s.transcoders[transport] == tc {
		delete(s.transcoders, transport)
	}
	viewers := s.counters[transport]
	s.mu.Unlock()

	// Detach from the camera even on unexpected death.
	tc.stop()

	errText := ""
	if exitErr != nil {
		errText = exitErr.Error()
	}
	m.bus.Publish(events.TranscoderExitEvent{
		DeviceID:  string(s.deviceID),
		Transport: string(transport),
		Requested: requested,
		Error:     errText,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	if !requested && viewers > 0 {
		m.log.Warn("transcoder died with viewers connected",
			"device", s.deviceID, "transport", transport, "viewers", viewers, "error", errText)
	}
}

// Shutdown kills every running transcoder.
func (m *Sessions) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		tcs := make([]*transcoder, 0, len(s.transcoders))
		for t, tc := range s.transcoders {
			tcs = append(tcs, tc)
			delete(s.transcoders, t)
		}
		s.mu.Unlock()
		for _, tc := range tcs {
			tc.stop()
		}
		s.broadcaster.Reset()
	}
}

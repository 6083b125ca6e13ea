package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/flate"

	"github.com/camkit/camserver/internal/config"
	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/stream"
)

const wsWriteWait = 10 * time.Second

// wsPingInterval is a variable so tests can shorten the keepalive.
var wsPingInterval = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The basic auth check already gates the endpoint.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMsg is the JSON control frame exchanged with the viewer. Msg
// carries the per-type payload.
type wsMsg struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// wsPingMsg is the keepalive sent to the viewer every ping interval.
type wsPingMsg struct {
	Type string        `json:"type"`
	Msg  wsPingPayload `json:"msg"`
}

type wsPingPayload struct {
	TS        int64 `json:"ts"`
	LastLagMs int64 `json:"lastLagMs"`
}

// wsPongPayload echoes a ping timestamp back from the viewer.
type wsPongPayload struct {
	TS int64 `json:"ts"`
}

// wsControlPayload carries zoom and pan/tilt requests. Direction is
// "in"/"out" for zoomControl and "up"/"down"/"left"/"right" for the
// speed controls.
type wsControlPayload struct {
	Axis      string `json:"axis,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// pongTracker remembers the newest pong echo so pings can report the
// viewer's round-trip lag.
type pongTracker struct {
	mu sync.Mutex
	ts int64
}

func newPongTracker() *pongTracker {
	return &pongTracker{ts: time.Now().UnixMilli()}
}

func (p *pongTracker) set(ts int64) {
	p.mu.Lock()
	p.ts = ts
	p.mu.Unlock()
}

// lagMs is how far behind schedule the last pong echo is. A viewer
// answering every ping promptly reports close to zero.
func (p *pongTracker) lagMs(now int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now - p.ts - wsPingInterval.Milliseconds()
}

// handleWS streams raw H264 to a browser viewer and accepts control
// messages on the same socket. Local cameras and remote MJPEG cameras
// are served through the shared transcoder; plain WebSocket cameras
// have their own relay at ws_proxy.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.checkBasicAuth(w, r) {
		return
	}
	id, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}
	kind, err := device.Classify(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if kind == device.KindRemoteWS {
		http.Error(w, "use ws_proxy for WebSocket cameras", http.StatusBadRequest)
		return
	}

	session, err := s.opts.Sessions.Connect(r.Context(), id, stream.TransportRawVideo)
	if err != nil {
		s.log.Warn("ws connect failed", "device", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Sessions.Disconnect(id, stream.TransportRawVideo)
		return
	}
	defer conn.Close()
	defer s.opts.Sessions.Disconnect(id, stream.TransportRawVideo)

	compress := r.URL.Query().Get("compress") == "1"
	chunks := session.Broadcaster().Attach()
	defer session.Broadcaster().Detach(chunks)

	var writeMu sync.Mutex
	paused := false
	var pausedMu sync.Mutex

	pongs := newPongTracker()
	done := make(chan struct{})
	go s.readWSMessages(conn, id, done, pongs, func(p bool) {
		pausedMu.Lock()
		paused = p
		pausedMu.Unlock()
	})

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	var compressor *flate.Writer

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			n := time.Now().UnixMilli()
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteJSON(wsPingMsg{
				Type: "ping",
				Msg:  wsPingPayload{TS: n, LastLagMs: pongs.lagMs(n)},
			})
			writeMu.Unlock()
			if err != nil {
				return
			}
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			pausedMu.Lock()
			skip := paused
			pausedMu.Unlock()
			if skip {
				continue
			}

			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if compress {
				err = writeCompressed(conn, chunk, &compressor)
			} else {
				err = conn.WriteMessage(websocket.BinaryMessage, chunk)
			}
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// writeCompressed sends the chunk as a raw-deflate binary message. The
// compressor is allocated on first use and reset per message.
func writeCompressed(conn *websocket.Conn, chunk []byte, compressor **flate.Writer) error {
	wc, err := conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}
	if *compressor == nil {
		fw, err := flate.NewWriter(wc, flate.BestSpeed)
		if err != nil {
			wc.Close()
			return err
		}
		*compressor = fw
	} else {
		(*compressor).Reset(wc)
	}
	if _, err := (*compressor).Write(chunk); err != nil {
		wc.Close()
		return err
	}
	if err := (*compressor).Flush(); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

// readWSMessages consumes viewer control frames until the socket
// closes, signalling done. A frame that is not JSON is logged and
// skipped; the connection stays open.
func (s *Server) readWSMessages(conn *websocket.Conn, id device.ID, done chan struct{}, pongs *pongTracker, setPaused func(bool)) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var m wsMsg
		if err := json.Unmarshal(data, &m); err != nil {
			s.log.Debug("control frame is not JSON", "device", id, "error", err)
			continue
		}
		switch m.Type {
		case "pong":
			var p wsPongPayload
			if err := json.Unmarshal(m.Msg, &p); err == nil {
				pongs.set(p.TS)
			}
		case "play":
			if setPaused != nil {
				setPaused(false)
			}
		case "pause":
			if setPaused != nil {
				setPaused(true)
			}
		default:
			s.applyControl(id, m)
		}
	}
}

// applyControl executes a zoomControl or speedControl frame against a
// local camera. Unknown types are logged and dropped.
func (s *Server) applyControl(id device.ID, m wsMsg) {
	if !id.IsLocal() {
		return
	}
	if !s.opts.Settings.Bool(config.KeyControlsEnable) {
		s.log.Debug("camera controls disabled", "device", id, "type", m.Type)
		return
	}
	cam, err := s.opts.Cams.Get(id)
	if err != nil {
		return
	}

	var p wsControlPayload
	if len(m.Msg) > 0 {
		if err := json.Unmarshal(m.Msg, &p); err != nil {
			s.log.Debug("bad control payload", "device", id, "type", m.Type, "error", err)
			return
		}
	}

	var cmdErr error
	switch m.Type {
	case "zoomControl":
		dir := -1
		if p.Direction == "in" {
			dir = 1
		}
		cmdErr = cam.ZoomRelative(dir)
	case "speedControlStart":
		dir := -1
		if p.Direction == "up" || p.Direction == "right" {
			dir = 1
		}
		cmdErr = cam.MoveSpeed(device.Axis(p.Axis), dir)
	case "speedControlStop":
		cmdErr = cam.MoveStop(device.Axis(p.Axis))
	default:
		s.log.Debug("unknown control type", "device", id, "type", m.Type)
		return
	}
	if cmdErr != nil {
		s.log.Warn("control failed", "device", id, "type", m.Type, "error", cmdErr)
	}
}

// handleWSControls serves the control channel without video, for UIs
// that render the stream elsewhere (e.g. RTSP) but still need PTZ.
func (s *Server) handleWSControls(w http.ResponseWriter, r *http.Request) {
	if !s.checkBasicAuth(w, r) {
		return
	}
	id, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}
	if !id.IsLocal() {
		http.Error(w, "controls only apply to local devices", http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	pongs := newPongTracker()
	done := make(chan struct{})
	go s.readWSMessages(conn, id, done, pongs, nil)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			n := time.Now().UnixMilli()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteJSON(wsPingMsg{
				Type: "ping",
				Msg:  wsPingPayload{TS: n, LastLagMs: pongs.lagMs(n)},
			})
			if err != nil {
				return
			}
		}
	}
}

// handleWSProxy blindly relays between the viewer and a WebSocket
// camera, both directions, without interpreting the frames.
func (s *Server) handleWSProxy(w http.ResponseWriter, r *http.Request) {
	if !s.checkBasicAuth(w, r) {
		return
	}
	id, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}
	kind, err := device.Classify(id)
	if err != nil || kind != device.KindRemoteWS {
		http.Error(w, "device is not a WebSocket camera", http.StatusBadRequest)
		return
	}

	upstream, _, err := websocket.DefaultDialer.DialContext(r.Context(), string(id), nil)
	if err != nil {
		http.Error(w, "upstream unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer upstream.Close()

	client, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer client.Close()

	errc := make(chan error, 2)
	relay := func(dst, src *websocket.Conn) {
		for {
			mt, data, err := src.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			dst.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := dst.WriteMessage(mt, data); err != nil {
				errc <- err
				return
			}
		}
	}
	go relay(upstream, client)
	go relay(client, upstream)
	<-errc
}

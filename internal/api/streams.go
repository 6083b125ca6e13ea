package api

import (
	"fmt"
	"net/http"

	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/stream"
)

// mjpegBoundary keeps the longstanding quirky framing: the header
// declares boundary=--myboundary and each part line is the bare
// token, not the RFC's extra-dashed form. Existing clients expect
// exactly these bytes.
const mjpegBoundary = "--myboundary"

// registerStreamHandlers wires the raw streaming endpoints. These
// bypass huma: multipart and WebSocket responses do not fit its
// request/response model.
func (s *Server) registerStreamHandlers() {
	s.mux.HandleFunc("GET /stream/{device}/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /stream/{device}/mjpeg", s.handleMJPEG)
	s.mux.HandleFunc("GET /stream/{device}/ws", s.handleWS)
	s.mux.HandleFunc("GET /stream/{device}/ws_controls_only", s.handleWSControls)
	s.mux.HandleFunc("GET /stream/{device}/ws_proxy", s.handleWSProxy)
}

// deviceFromPath decodes the {device} path segment.
func (s *Server) deviceFromPath(w http.ResponseWriter, r *http.Request) (device.ID, bool) {
	id, err := device.DecodeID(r.PathValue("device"))
	if err != nil {
		http.Error(w, "unknown device: "+err.Error(), http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.checkBasicAuth(w, r) {
		return
	}
	id, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}

	frame, err := s.opts.Cams.TakeSnapshot(r.Context(), id)
	if err != nil {
		s.log.Warn("snapshot failed", "device", id, "error", err)
		http.Error(w, "snapshot failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Length", fmt.Sprint(len(frame)))
	w.Write(frame)
}

func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "device has no MJPEG stream", http.StatusBadRequest)
		return
	}

	if _, err := s.opts.Sessions.Connect(r.Context(), id, stream.TransportMJPEG); err != nil {
		s.log.Warn("mjpeg connect failed", "device", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer s.opts.Sessions.Disconnect(id, stream.TransportMJPEG)

	if kind == device.KindRemoteMJPEG {
		s.proxyMJPEG(w, r, id)
		return
	}
	s.serveLocalMJPEG(w, r, id)
}

// serveLocalMJPEG streams camera frames as multipart JPEG parts.
func (s *Server) serveLocalMJPEG(w http.ResponseWriter, r *http.Request, id device.ID) {
	cam, err := s.opts.Cams.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	frames := cam.Subscribe()
	defer cam.Unsubscribe(frames)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_, err := fmt.Fprintf(w, "%s\nContent-Type: image/jpeg\nContent-Length: %d\n\n", mjpegBoundary, len(frame))
			if err == nil {
				_, err = w.Write(frame)
			}
			if err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// proxyMJPEG relays a network camera's own MJPEG stream.
func (s *Server) proxyMJPEG(w http.ResponseWriter, r *http.Request, id device.ID) {
	url, err := id.StreamURL()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		http.Error(w, "upstream unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		http.Error(w, "upstream returned "+resp.Status, http.StatusBadGateway)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, 32*1024)
	flusher, _ := w.(http.Flusher)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

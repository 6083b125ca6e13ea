// Package rtsp serves the RTSP side of the streaming pipeline: ffmpeg
// pushes transcoded video in via ANNOUNCE, RTSP clients pull it back
// out via DESCRIBE.
package rtsp

import (
	"errors"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/camkit/camserver/internal/logging"
)

// ErrNoProducer is returned when a consumer asks for a stream nothing
// is publishing to.
var ErrNoProducer = errors.New("no producer for stream")

// Hub routes RTSP consumers to the producer publishing each stream.
// There is at most one producer per stream; a new ANNOUNCE for the
// same path replaces the old connection.
type Hub struct {
	mu        sync.RWMutex
	producers map[string]*rtsp.Conn
	log       logging.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		producers: make(map[string]*rtsp.Conn),
		log:       logging.GetLogger("rtsp"),
	}
}

// AddProducer registers the connection publishing streamID, replacing
// and closing any previous one.
func (h *Hub) AddProducer(streamID string, conn *rtsp.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.producers[streamID]; ok {
		h.log.Info("replacing producer", "stream", streamID)
		_ = existing.Stop()
	}
	h.producers[streamID] = conn
}

// RemoveProducer drops the producer for streamID if conn is still the
// registered one.
func (h *Hub) RemoveProducer(streamID string, conn *rtsp.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.producers[streamID] == conn {
		_ = conn.Stop()
		delete(h.producers, streamID)
	}
}

// HasProducer reports whether something is publishing streamID.
func (h *Hub) HasProducer(streamID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.producers[streamID]
	return ok
}

// Streams lists the stream IDs currently being published.
func (h *Hub) Streams() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.producers))
	for id := range h.producers {
		out = append(out, id)
	}
	return out
}

// WireConsumer attaches every producer track to the consumer.
func (h *Hub) WireConsumer(streamID string, cons core.Consumer) error {
	h.mu.RLock()
	prod := h.producers[streamID]
	h.mu.RUnlock()
	if prod == nil {
		return ErrNoProducer
	}

	for _, receiver := range prod.Receivers {
		media := &core.Media{
			Kind:      core.GetKind(receiver.Codec.Name),
			Direction: core.DirectionRecvonly,
			Codecs:    []*core.Codec{receiver.Codec},
		}
		if err := cons.AddTrack(media, receiver.Codec, receiver); err != nil {
			h.log.Warn("track attach failed", "stream", streamID, "error", err)
		}
	}
	return nil
}

// Stop closes every producer.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.producers {
		_ = conn.Stop()
		delete(h.producers, id)
	}
}

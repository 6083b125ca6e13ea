// Package stream owns the viewer-session lifecycle: refcounted viewer
// counts per device and transport, lazily started transcoder
// subprocesses, the H264 chunk fan-out and the idle reaper.
package stream

import "sync"

// Broadcaster fans binary chunks out to attached viewers. Each viewer
// gets a buffered channel; viewers that fall behind have chunks
// dropped rather than stalling the producer.
type Broadcaster struct {
	mu      sync.Mutex
	viewers map[chan []byte]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{viewers: make(map[chan []byte]struct{})}
}

// Attach registers a viewer and returns its chunk channel.
func (b *Broadcaster) Attach() chan []byte {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	b.viewers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Detach removes a viewer. The channel is closed so a blocked reader
// wakes up.
func (b *Broadcaster) Detach(ch chan []byte) {
	b.mu.Lock()
	if _, ok := b.viewers[ch]; ok {
		delete(b.viewers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers a chunk to every attached viewer. The chunk is
// copied once; viewers share the copy and must not modify it. Viewers
// are iterated over a snapshot so a concurrent Attach or Detach never
// blocks delivery.
func (b *Broadcaster) Publish(chunk []byte) {
	b.mu.Lock()
	if len(b.viewers) == 0 {
		b.mu.Unlock()
		return
	}
	owned := make([]byte, len(chunk))
	copy(owned, chunk)
	targets := make([]chan []byte, 0, len(b.viewers))
	for ch := range b.viewers {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- owned:
		default:
			// Viewer is not keeping up. Drop this chunk for it.
		}
	}
}

// Len returns the number of attached viewers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.viewers)
}

// Reset detaches every viewer.
func (b *Broadcaster) Reset() {
	b.mu.Lock()
	for ch := range b.viewers {
		delete(b.viewers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

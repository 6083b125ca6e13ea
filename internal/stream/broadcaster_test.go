package stream

import (
	"bytes"
	"testing"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	a := b.Attach()
	c := b.Attach()
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}

	b.Publish([]byte{0x00, 0x00, 0x01})
	for name, ch := range map[string]chan []byte{"first": a, "second": c} {
		select {
		case chunk := <-ch:
			if !bytes.Equal(chunk, []byte{0x00, 0x00, 0x01}) {
				t.Errorf("%s viewer got %v", name, chunk)
			}
		default:
			t.Errorf("%s viewer got nothing", name)
		}
	}
}

func TestBroadcasterDetachCloses(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Attach()
	b.Detach(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Detach")
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after Detach, want 0", b.Len())
	}
	// Double detach is a no-op.
	b.Detach(ch)
}

func TestBroadcasterDropsForSlowViewer(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Attach()
	defer b.Detach(slow)

	// Fill the viewer's buffer and keep publishing. Publish must not
	// block.
	for i := 0; i < 100; i++ {
		b.Publish([]byte{byte(i)})
	}
	if n := len(slow); n == 0 || n > cap(slow) {
		t.Errorf("buffered chunks = %d, want 1..%d", n, cap(slow))
	}
}

func TestBroadcasterCopiesChunk(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Attach()
	defer b.Detach(ch)

	chunk := []byte{1, 2, 3}
	b.Publish(chunk)
	chunk[0] = 99

	got := <-ch
	if got[0] != 1 {
		t.Error("published chunk aliases the caller's buffer")
	}
}

func TestBroadcasterPublishNoViewers(t *testing.T) {
	NewBroadcaster().Publish([]byte{1})
}

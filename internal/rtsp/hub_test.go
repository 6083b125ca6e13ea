package rtsp

import (
	"net"
	"testing"

	"github.com/AlexxIT/go2rtc/pkg/rtsp"
)

func pipeConn(t *testing.T) *rtsp.Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return rtsp.NewServer(server)
}

func TestHubProducerLifecycle(t *testing.T) {
	hub := NewHub()
	conn := pipeConn(t)

	if hub.HasProducer("cam-a") {
		t.Fatal("empty hub has a producer")
	}
	hub.AddProducer("cam-a", conn)
	if !hub.HasProducer("cam-a") {
		t.Fatal("producer not registered")
	}
	if got := hub.Streams(); len(got) != 1 || got[0] != "cam-a" {
		t.Fatalf("streams = %v", got)
	}

	hub.RemoveProducer("cam-a", conn)
	if hub.HasProducer("cam-a") {
		t.Fatal("producer survived removal")
	}
}

func TestHubRemoveIgnoresStaleConn(t *testing.T) {
	hub := NewHub()
	old := pipeConn(t)
	replacement := pipeConn(t)

	hub.AddProducer("cam-a", old)
	hub.AddProducer("cam-a", replacement)

	// The old connection disconnecting must not drop the replacement.
	hub.RemoveProducer("cam-a", old)
	if !hub.HasProducer("cam-a") {
		t.Fatal("replacement producer was dropped")
	}
}

func TestWireConsumerWithoutProducer(t *testing.T) {
	hub := NewHub()
	if err := hub.WireConsumer("cam-z", pipeConn(t)); err != ErrNoProducer {
		t.Fatalf("err = %v, want ErrNoProducer", err)
	}
}

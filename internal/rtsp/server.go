package rtsp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/stream"
)

// producerWait bounds how long a DESCRIBE waits for the transcoder it
// triggered to come up and ANNOUNCE.
const producerWait = 10 * time.Second

// Viewers is the part of the session layer the server drives: a
// DESCRIBE counts as a connecting viewer, which lazily starts the
// ffmpeg push; the producer then ANNOUNCEs back into the hub.
type Viewers interface {
	Connect(ctx context.Context, id device.ID, transport stream.Transport) (*stream.Session, error)
	Disconnect(id device.ID, transport stream.Transport)
}

// Server accepts RTSP connections for producers and consumers.
type Server struct {
	hub     *Hub
	viewers Viewers
	log     logging.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server routing consumer DESCRIBEs through the
// viewer session layer.
func NewServer(hub *Hub, viewers Viewers) *Server {
	return &Server{
		hub:     hub,
		viewers: viewers,
		log:     logging.GetLogger("rtsp"),
	}
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.closed = false
	s.mu.Unlock()

	s.log.Info("rtsp server listening", "addr", addr)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.log.Error("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	rtspConn := rtsp.NewServer(conn)

	var producerStream string
	var consumerID device.ID
	var consumerOK bool

	rtspConn.Listen(func(msg any) {
		switch msg {
		case rtsp.MethodAnnounce:
			if rtspConn.URL == nil || len(rtspConn.URL.Path) <= 1 {
				return
			}
			producerStream = rtspConn.URL.Path[1:]
			s.hub.AddProducer(producerStream, rtspConn)
			s.log.Info("producer connected",
				"stream", producerStream, "remote", conn.RemoteAddr())

		case rtsp.MethodDescribe:
			if rtspConn.URL == nil || len(rtspConn.URL.Path) <= 1 {
				return
			}
			streamID := rtspConn.URL.Path[1:]
			id, err := device.DecodeID(streamID)
			if err != nil {
				s.log.Warn("describe for unknown path", "path", streamID, "error", err)
				return
			}
			if err := s.serveConsumer(rtspConn, streamID, id); err != nil {
				s.log.Warn("consumer wiring failed",
					"stream", streamID, "error", err)
				return
			}
			consumerID, consumerOK = id, true
			s.log.Info("consumer connected",
				"device", id, "remote", conn.RemoteAddr())
		}
	})

	if err := rtspConn.Accept(); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.log.Debug("rtsp accept error", "error", err)
		}
	} else if err := rtspConn.Handle(); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.log.Debug("rtsp handle error", "error", err)
		}
	}

	if producerStream != "" {
		s.hub.RemoveProducer(producerStream, rtspConn)
		s.log.Info("producer disconnected", "stream", producerStream)
	}
	if consumerOK {
		s.viewers.Disconnect(consumerID, stream.TransportRTSP)
		s.log.Info("consumer disconnected", "device", consumerID)
	}
}

// serveConsumer counts the viewer in, which starts the transcoder push
// when it is the first one, then waits for the producer and wires the
// consumer to it.
func (s *Server) serveConsumer(conn *rtsp.Conn, streamID string, id device.ID) error {
	ctx, cancel := context.WithTimeout(context.Background(), producerWait)
	defer cancel()

	if _, err := s.viewers.Connect(ctx, id, stream.TransportRTSP); err != nil {
		return err
	}

	if err := s.waitProducer(ctx, streamID); err != nil {
		s.viewers.Disconnect(id, stream.TransportRTSP)
		return err
	}
	if err := s.hub.WireConsumer(streamID, conn); err != nil {
		s.viewers.Disconnect(id, stream.TransportRTSP)
		return err
	}
	return nil
}

func (s *Server) waitProducer(ctx context.Context, streamID string) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if s.hub.HasProducer(streamID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrNoProducer
		case <-tick.C:
		}
	}
}

// Stop closes the listener, waits for open connections and shuts the
// hub down.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil {
			return err
		}
	}
	s.wg.Wait()
	s.hub.Stop()
	s.log.Info("rtsp server stopped")
	return nil
}

//go:build linux

// Package hotplug reports video capture devices appearing and
// disappearing. It reads kernel uevents straight from a
// NETLINK_KOBJECT_UEVENT socket, so no cgo and no libudev.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"syscall"
)

// Actions carried on an Event.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

const (
	netlinkKobjectUEvent = 15
	video4linuxSubsystem = "video4linux"
)

// Event is a camera node appearing or disappearing.
type Event struct {
	Action string // ActionAdd or ActionRemove
	Node   string // device node, e.g. /dev/video0
	KObj   string // kernel object path
}

// Monitor watches kernel uevents for video4linux devices.
type Monitor struct {
	fd int
}

// NewMonitor opens the netlink uevent socket and joins the kernel
// broadcast group.
func NewMonitor() (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	addr := &syscall.SockaddrNetlink{
		Family: syscall.AF_NETLINK,
		Groups: 1,
	}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	return &Monitor{fd: fd}, nil
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return syscall.Close(m.fd)
}

// Run reads uevents and sends camera add and remove events to the
// channel until ctx is cancelled. The channel is closed when Run
// returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Short read timeout so cancellation is noticed.
		tv := syscall.Timeval{Sec: 1}
		if err := syscall.SetsockoptTimeval(m.fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
			return err
		}

		n, _, err := syscall.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		ev := parseVideoEvent(buf[:n])
		if ev == nil {
			continue
		}

		select {
		case events <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseVideoEvent decodes a uevent datagram, keeping only video4linux
// add and remove events that name a device node. The wire format is
// "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0...". Anything else returns nil.
func parseVideoEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}

	// Datagrams relayed by udev carry a binary "libudev" header in
	// front of the uevent proper. Skip to the ACTION@KOBJ line.
	if bytes.HasPrefix(data, []byte("libudev")) {
		for i := 0; i < len(data)-1; i++ {
			if data[i] != 0 {
				continue
			}
			rest := data[i+1:]
			if idx := bytes.IndexByte(rest, '@'); idx > 0 && idx < 20 {
				data = rest
				break
			}
		}
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts) == 0 || len(parts[0]) == 0 {
		return nil
	}

	header := string(parts[0])
	atIdx := strings.Index(header, "@")
	if atIdx < 1 {
		return nil
	}

	action := header[:atIdx]
	if action != ActionAdd && action != ActionRemove {
		return nil
	}

	var subsystem, devname string
	for _, part := range parts[1:] {
		kv := string(part)
		eqIdx := strings.Index(kv, "=")
		if eqIdx < 1 {
			continue
		}
		switch kv[:eqIdx] {
		case "SUBSYSTEM":
			subsystem = kv[eqIdx+1:]
		case "DEVNAME":
			devname = kv[eqIdx+1:]
		}
	}

	if subsystem != video4linuxSubsystem || devname == "" {
		return nil
	}

	node := devname
	if !strings.HasPrefix(node, "/") {
		node = "/dev/" + node
	}

	return &Event{
		Action: action,
		Node:   node,
		KObj:   header[atIdx+1:],
	}
}

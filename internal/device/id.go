// Package device tracks camera devices by identifier: local V4L2 device
// nodes, remote MJPEG cameras reachable over HTTP, and remote camserver
// instances reachable over a WebSocket proxy.
package device

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ID identifies a camera device. The identifier shape encodes its kind:
// a /dev path for local hardware, an http(s) URL for a remote MJPEG
// camera, or a ws(s) URL for a remote proxied camserver stream.
type ID string

// Kind is the structural classification of a device identifier.
type Kind int

const (
	KindLocal Kind = iota
	KindRemoteMJPEG
	KindRemoteWS
)

// ErrUnknownDeviceType is returned for identifiers that match none of
// the recognized shapes. Classification happens before any I/O.
var ErrUnknownDeviceType = errors.New("unrecognized device identifier")

// ErrNotLocalDevice is returned when a hardware-only operation is
// attempted on a remote identifier.
var ErrNotLocalDevice = errors.New("not a local device")

// Classify determines the kind of a device identifier.
func Classify(id ID) (Kind, error) {
	s := string(id)
	switch {
	case strings.HasPrefix(s, "/dev"):
		return KindLocal, nil
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return KindRemoteMJPEG, nil
	case strings.HasPrefix(s, "ws://"), strings.HasPrefix(s, "wss://"):
		return KindRemoteWS, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDeviceType, s)
	}
}

// IsLocal reports whether the identifier names local hardware.
func (id ID) IsLocal() bool {
	kind, err := Classify(id)
	return err == nil && kind == KindLocal
}

// Slug returns a filesystem-safe form of a local identifier:
// /dev/video0 becomes dev-video0.
func (id ID) Slug() string {
	return strings.ReplaceAll(strings.TrimPrefix(string(id), "/"), "/", "-")
}

// EncodeID encodes an identifier for use as a URL path segment.
func EncodeID(id ID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeID decodes an identifier from a URL path segment and classifies
// it, rejecting unrecognizable identifiers before any I/O happens.
func DecodeID(s string) (ID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownDeviceType, s)
	}
	id := ID(raw)
	if _, err := Classify(id); err != nil {
		return "", err
	}
	return id, nil
}

// SnapshotURL derives the one-shot JPEG URL for a remote device.
// Remote MJPEG cameras expose /snapshot next to /mjpeg; remote
// camserver WS URLs (.../stream/<id>/ws) expose a sibling snapshot
// endpoint over HTTP.
func (id ID) SnapshotURL() (string, error) {
	kind, err := Classify(id)
	if err != nil {
		return "", err
	}
	s := string(id)
	switch kind {
	case KindRemoteMJPEG:
		return strings.TrimSuffix(s, "/") + "/snapshot", nil
	case KindRemoteWS:
		s = strings.Replace(s, "ws", "http", 1) // ws->http, wss->https
		if strings.HasSuffix(s, "/ws") {
			s = strings.TrimSuffix(s, "/ws") + "/snapshot"
		}
		return s, nil
	default:
		return "", fmt.Errorf("no snapshot URL for local device %q", s)
	}
}

// StreamURL derives the live MJPEG stream URL for a remote MJPEG device.
func (id ID) StreamURL() (string, error) {
	kind, err := Classify(id)
	if err != nil {
		return "", err
	}
	if kind != KindRemoteMJPEG {
		return "", fmt.Errorf("no MJPEG stream URL for device %q", id)
	}
	return strings.TrimSuffix(string(id), "/") + "/mjpeg", nil
}

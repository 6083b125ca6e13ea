package stream

import "errors"

// Transport identifies how a viewer consumes a device's video.
type Transport string

const (
	// TransportRawVideo is the raw H264 elementary stream delivered
	// over the WebSocket, decoded by a muxer in the browser.
	TransportRawVideo Transport = "rawvideo"
	// TransportMJPEG is the multipart MJPEG HTTP stream.
	TransportMJPEG Transport = "mjpeg"
	// TransportRTSP is the embedded RTSP server.
	TransportRTSP Transport = "rtsp"
)

// Transports lists every transport with a viewer counter.
func Transports() []Transport {
	return []Transport{TransportRawVideo, TransportMJPEG, TransportRTSP}
}

// Transcoded reports whether the transport requires an FFmpeg
// subprocess. MJPEG is served from captured frames directly.
func (t Transport) Transcoded() bool {
	return t == TransportRawVideo || t == TransportRTSP
}

// Valid reports whether t is a known transport.
func (t Transport) Valid() bool {
	switch t {
	case TransportRawVideo, TransportMJPEG, TransportRTSP:
		return true
	}
	return false
}

// ErrTranscoderRunning is returned when a transcoder start races an
// already running one for the same device and transport.
var ErrTranscoderRunning = errors.New("transcoder already running")

// ErrTranscoderNotRunning is returned when a stop finds no transcoder.
var ErrTranscoderNotRunning = errors.New("transcoder not running")

// ErrUnsupportedTransport is returned when a device kind cannot serve
// a transport, for example a transcoded transport on a WS-proxied
// remote device.
var ErrUnsupportedTransport = errors.New("transport not supported for device")

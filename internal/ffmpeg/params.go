// Package ffmpeg builds FFmpeg argument lists for the transcoding
// pipelines and parses FFmpeg's stderr log format.
package ffmpeg

// Defaults for the live encode pipelines. The browser-side decoder
// expects baseline H264 at a modest resolution, so the live outputs
// are normalized regardless of the capture resolution.
const (
	DefaultBinary = "ffmpeg"

	liveWidth   = 640
	liveHeight  = 480
	liveEncoder = "libx264"
)

// EncodeParams carries the H264 encode settings shared by the live
// pipelines.
type EncodeParams struct {
	Width   int
	Height  int
	FPS     float64
	CRF     int
	QMin    int
	QMax    int
	BufSize string
	Preset  string
}

// LiveEncodeDefaults returns the encode settings used for viewer-facing
// streams: small, fast and latency-tuned rather than quality-tuned.
func LiveEncodeDefaults(fps float64) EncodeParams {
	return EncodeParams{
		Width:   liveWidth,
		Height:  liveHeight,
		FPS:     fps,
		CRF:     10,
		QMin:    0,
		QMax:    50,
		BufSize: "600k",
		Preset:  "ultrafast",
	}
}

// Input describes where a pipeline reads its video from.
type Input struct {
	// Stdin is true when MJPEG frames are written to the process's
	// standard input. URL is used otherwise.
	Stdin bool
	URL   string
	FPS   float64
}

// StdinInput is a pipe-fed MJPEG input at the given frame rate.
func StdinInput(fps float64) Input {
	return Input{Stdin: true, FPS: fps}
}

// URLInput is a network input read directly by FFmpeg.
func URLInput(url string, fps float64) Input {
	return Input{URL: url, FPS: fps}
}

package ffmpeg

import (
	"fmt"
	"strconv"
)

// globalArgs are prepended to every pipeline: structured stderr logging
// for the log parser, no progress spam, no interactive prompts.
func globalArgs() []string {
	return []string{"-hide_banner", "-loglevel", "level+info", "-nostats", "-y"}
}

func inputArgs(in Input) []string {
	if in.Stdin {
		args := []string{"-f", "mjpeg"}
		if in.FPS > 0 {
			args = append(args, "-framerate", formatFPS(in.FPS))
		}
		return append(args, "-i", "pipe:0")
	}
	return []string{"-i", in.URL}
}

func encodeArgs(p EncodeParams) []string {
	args := []string{
		"-c:v", liveEncoder,
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
		"-preset", p.Preset,
		"-tune", "zerolatency",
		"-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height),
		"-bufsize", p.BufSize,
		"-qmin", strconv.Itoa(p.QMin),
		"-qmax", strconv.Itoa(p.QMax),
		"-crf", strconv.Itoa(p.CRF),
	}
	if p.FPS > 0 {
		args = append(args, "-r", formatFPS(p.FPS))
	}
	return args
}

// RawVideoArgs builds the pipeline that turns MJPEG into a raw H264
// elementary stream on stdout, the format the browser-side muxer
// consumes over the WebSocket.
func RawVideoArgs(in Input, p EncodeParams) []string {
	args := globalArgs()
	args = append(args, inputArgs(in)...)
	args = append(args, encodeArgs(p)...)
	return append(args, "-an", "-f", "rawvideo", "pipe:1")
}

// RTSPPushArgs builds the pipeline that publishes H264 to the embedded
// RTSP server over TCP.
func RTSPPushArgs(in Input, p EncodeParams, rtspURL string) []string {
	args := globalArgs()
	args = append(args, inputArgs(in)...)
	args = append(args, encodeArgs(p)...)
	return append(args, "-an", "-rtsp_transport", "tcp", "-f", "rtsp", rtspURL)
}

// AssembleArgs builds the pipeline that concatenates captured JPEG
// stills or partial clips into an H264 MP4 at the given playback rate.
// listPath is a concat-demuxer list file.
func AssembleArgs(listPath string, fps float64, outPath string) []string {
	args := globalArgs()
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", liveEncoder,
		"-pix_fmt", "yuv420p",
		"-r", formatFPS(fps),
		"-an",
		outPath,
	)
	return args
}

// ConcatCopyArgs builds the pipeline that joins partial MP4 clips into
// the final timelapse without re-encoding.
func ConcatCopyArgs(listPath string, outPath string) []string {
	args := globalArgs()
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	return args
}

// formatFPS renders a frame rate without a trailing ".0" for whole
// rates, which is what FFmpeg's CLI expects for common cases.
func formatFPS(fps float64) string {
	if fps == float64(int64(fps)) {
		return strconv.FormatInt(int64(fps), 10)
	}
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

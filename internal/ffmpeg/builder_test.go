package ffmpeg

import (
	"log/slog"
	"slices"
	"strings"
	"testing"
)

func argString(args []string) string { return strings.Join(args, " ") }

func TestRawVideoArgsFromStdin(t *testing.T) {
	args := RawVideoArgs(StdinInput(30), LiveEncodeDefaults(30))
	s := argString(args)

	for _, want := range []string{
		"-f mjpeg -framerate 30 -i pipe:0",
		"-c:v libx264",
		"-profile:v baseline",
		"-tune zerolatency",
		"-preset ultrafast",
		"-vf scale=640:480",
		"-bufsize 600k",
		"-qmin 0 -qmax 50 -crf 10",
		"-f rawvideo pipe:1",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("args missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "-i pipe:0 -i ") {
		t.Error("stdin input also produced a URL input")
	}
}

func TestRawVideoArgsFromURL(t *testing.T) {
	args := RawVideoArgs(URLInput("http://10.0.0.5:4000/mjpeg", 30), LiveEncodeDefaults(30))
	s := argString(args)
	if !strings.Contains(s, "-i http://10.0.0.5:4000/mjpeg") {
		t.Errorf("args missing URL input:\n%s", s)
	}
	if strings.Contains(s, "pipe:0") {
		t.Error("URL input also produced a stdin input")
	}
}

func TestRTSPPushArgs(t *testing.T) {
	args := RTSPPushArgs(StdinInput(30), LiveEncodeDefaults(30), "rtsp://127.0.0.1:8554/dev-video0")
	s := argString(args)
	if !strings.Contains(s, "-rtsp_transport tcp -f rtsp rtsp://127.0.0.1:8554/dev-video0") {
		t.Errorf("args missing RTSP output:\n%s", s)
	}
	if got := args[len(args)-1]; got != "rtsp://127.0.0.1:8554/dev-video0" {
		t.Errorf("last arg = %q, want RTSP URL", got)
	}
}

func TestAssembleArgs(t *testing.T) {
	args := AssembleArgs("/tmp/list.txt", 30, "/tmp/out.mp4")
	s := argString(args)
	for _, want := range []string{"-f concat", "-safe 0", "-i /tmp/list.txt", "-r 30"} {
		if !strings.Contains(s, want) {
			t.Errorf("args missing %q:\n%s", want, s)
		}
	}
	if got := args[len(args)-1]; got != "/tmp/out.mp4" {
		t.Errorf("last arg = %q, want output path", got)
	}
}

func TestConcatCopyArgs(t *testing.T) {
	args := ConcatCopyArgs("/tmp/parts.txt", "/tmp/final.mp4")
	if !slices.Contains(args, "copy") {
		t.Errorf("args missing stream copy: %v", args)
	}
}

func TestFormatFPS(t *testing.T) {
	tests := []struct {
		fps  float64
		want string
	}{
		{30, "30"},
		{60, "60"},
		{29.97, "29.97"},
	}
	for _, tt := range tests {
		if got := formatFPS(tt.fps); got != tt.want {
			t.Errorf("formatFPS(%v) = %q, want %q", tt.fps, got, tt.want)
		}
	}
}

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantLevel slog.Level
		wantMsg   string
	}{
		{"plain info", "[info] Stream mapping:", slog.LevelInfo, "Stream mapping:"},
		{"warning", "[warning] deprecated pixel format used", slog.LevelWarn, "deprecated pixel format used"},
		{"error", "[error] Connection refused", slog.LevelError, "Connection refused"},
		{"fatal maps to error", "[fatal] Invalid data found", slog.LevelError, "Invalid data found"},
		{"verbose maps to debug", "[verbose] parsed frame", slog.LevelDebug, "parsed frame"},
		{
			"component prefix kept",
			"[mjpeg @ 0x55d] [warning] overread 8",
			slog.LevelWarn,
			"[mjpeg @ 0x55d] overread 8",
		},
		{"no bracket", "frame=  100 fps= 30", slog.LevelInfo, "frame=  100 fps= 30"},
		{"unknown bracket", "[swscaler] whatever", slog.LevelInfo, "[swscaler] whatever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, msg := ParseLogLine(tt.line)
			if level != tt.wantLevel {
				t.Errorf("level = %v, want %v", level, tt.wantLevel)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

package stream

import (
	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/process"
)

// transcoder is one running FFmpeg pipeline for a device and
// transport. Local devices are fed MJPEG frames over stdin from the
// capture loop; remote MJPEG devices are read by FFmpeg directly.
type transcoder struct {
	proc   *process.Process
	cam    *device.Camera // nil for remote inputs
	frames chan []byte
	log    logging.Logger
}

// start subscribes to the camera (when local) and launches the
// subprocess.
func (t *transcoder) start() error {
	if t.cam != nil {
		t.frames = t.cam.Subscribe()
	}
	if err := t.proc.Start(); err != nil {
		if t.cam != nil {
			t.cam.Unsubscribe(t.frames)
		}
		return err
	}
	if t.frames != nil {
		go t.feed()
	}
	return nil
}

// feed copies captured MJPEG frames into the subprocess. It ends when
// the camera unsubscribes the channel or the pipe breaks on process
// exit.
func (t *transcoder) feed() {
	stdin := t.proc.Stdin()
	for frame := range t.frames {
		if _, err := stdin.Write(frame); err != nil {
			t.log.Debug("frame feed ended", "name", t.proc.Name(), "error", err)
			// Keep draining so the capture loop never blocks on
			// a dead subscriber.
			for range t.frames {
			}
			return
		}
	}
}

// stop detaches from the camera and kills the subprocess.
func (t *transcoder) stop() {
	if t.cam != nil {
		t.cam.Unsubscribe(t.frames)
	}
	t.proc.Stop()
}

func (t *transcoder) running() bool {
	return t.proc.Running()
}

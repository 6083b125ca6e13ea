// Package capture runs the periodic snapshot job that feeds timelapse
// sequences, and assembles the captured frames into videos.
package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/camkit/camserver/internal/config"
	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/sched"
)

// Snapshotter is the part of the device registry the job needs.
type Snapshotter interface {
	TakeSnapshot(ctx context.Context, id device.ID) ([]byte, error)
}

// Job takes interval snapshots of the configured device while capture
// is enabled and the clock window is open. Each frame lands under
// <dir>/<sequence>/ as a JPEG named so a lexical sort is also a
// chronological sort.
type Job struct {
	cams     Snapshotter
	settings *config.Store
	bus      *events.Bus
	dir      string
	log      logging.Logger

	trigger *http.Client

	// busy marks the device a snapshot is currently using so the
	// stream reaper does not stop it mid-capture.
	busyMu   sync.Mutex
	busyID   device.ID
	busyHeld bool
}

// NewJob builds a capture job storing frames under dir.
func NewJob(cams Snapshotter, settings *config.Store, bus *events.Bus, dir string) *Job {
	return &Job{
		cams:     cams,
		settings: settings,
		bus:      bus,
		dir:      dir,
		log:      logging.GetLogger("capture"),
		trigger:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Dir returns the capture output root.
func (j *Job) Dir() string {
	return j.dir
}

// Holding reports whether the job is currently using id. The stream
// reaper consults this before stopping idle cameras.
func (j *Job) Holding(id device.ID) bool {
	j.busyMu.Lock()
	defer j.busyMu.Unlock()
	return j.busyHeld && j.busyID == id
}

// Scheduled returns the runner job driving periodic captures. The
// interval is re-read from settings on every cycle so runtime changes
// apply without a restart.
func (j *Job) Scheduled() sched.Job {
	return sched.Job{
		Name: "capture",
		Interval: func() time.Duration {
			interval := time.Duration(j.settings.Int(config.KeyCaptureIntervalMS)) * time.Millisecond
			if interval < time.Second {
				interval = time.Second
			}
			return interval
		},
		Run: j.tick,
	}
}

func (j *Job) tick(now time.Time) error {
	if !j.settings.Bool(config.KeyCaptureEnable) {
		return nil
	}
	if j.settings.Bool(config.KeyCaptureWindowOn) {
		window := sched.Window{
			Start: j.settings.String(config.KeyCaptureStartTime),
			End:   j.settings.String(config.KeyCaptureEndTime),
		}
		if !window.Contains(now) {
			return nil
		}
	}
	j.CaptureOnce(context.Background())
	return nil
}

// CaptureOnce takes a single snapshot with the current settings,
// writing the frame and publishing the outcome on the bus.
func (j *Job) CaptureOnce(ctx context.Context) {
	name := j.settings.String(config.KeyCaptureName)
	if name == "" {
		name = "default"
	}
	id := device.ID(j.settings.String(config.KeyCaptureDevice))

	j.busyMu.Lock()
	j.busyID = id
	j.busyHeld = true
	j.busyMu.Unlock()
	defer func() {
		j.busyMu.Lock()
		j.busyHeld = false
		j.busyMu.Unlock()
	}()

	triggerURL := j.settings.String(config.KeyCaptureTriggerURL)
	if triggerURL != "" {
		j.fireTrigger(ctx, triggerURL, true)
		defer j.fireTrigger(ctx, triggerURL, false)
	}

	frame, err := j.cams.TakeSnapshot(ctx, id)
	if err != nil {
		j.log.Error("snapshot failed", "device", id, "error", err)
		j.publishError(id, name, err)
		return
	}

	path, err := j.writeFrame(id, name, frame)
	if err != nil {
		j.log.Error("frame write failed", "device", id, "error", err)
		j.publishError(id, name, err)
		return
	}

	j.log.Debug("frame captured", "device", id, "path", path)
	j.bus.Publish(events.CaptureSuccessEvent{
		DeviceID:  string(id),
		Name:      name,
		FilePath:  path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (j *Job) publishError(id device.ID, name string, err error) {
	j.bus.Publish(events.CaptureErrorEvent{
		DeviceID:  string(id),
		Name:      name,
		Error:     err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// fireTrigger flips an external relay before and after a shot, e.g.
// to light the scene only while capturing.
func (j *Job) fireTrigger(ctx context.Context, baseURL string, on bool) {
	state := "OFF"
	if on {
		state = "ON"
	}
	url := baseURL
	if strings.Contains(url, "?") {
		url += "&RELAY=" + state
	} else {
		url += "?RELAY=" + state
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		j.log.Warn("trigger request build failed", "url", url, "error", err)
		return
	}
	resp, err := j.trigger.Do(req)
	if err != nil {
		j.log.Warn("trigger call failed", "url", url, "error", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (j *Job) writeFrame(id device.ID, name string, frame []byte) (string, error) {
	dir := filepath.Join(j.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}
	file := fmt.Sprintf("%s-%s-%d.jpg", id.Slug(), name, time.Now().UnixMilli())
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}
	return path, nil
}

// Sequence describes one named capture series on disk.
type Sequence struct {
	Name       string `json:"name" doc:"Sequence name"`
	FrameCount int    `json:"frameCount" doc:"Number of captured frames"`
	LastFrame  string `json:"lastFrame,omitempty" doc:"Most recent frame file name"`
}

// ListSequences scans the capture root for named series.
func ListSequences(dir string) ([]Sequence, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read capture directory: %w", err)
	}

	var out []Sequence
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		frames, err := ListFrames(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		seq := Sequence{Name: e.Name(), FrameCount: len(frames)}
		if len(frames) > 0 {
			seq.LastFrame = filepath.Base(frames[len(frames)-1])
		}
		out = append(out, seq)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

// ListFrames returns the JPEG frames of one sequence in capture order.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sequence directory: %w", err)
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	// File names embed a millisecond timestamp, so lexical order is
	// chronological for same-device sequences.
	sort.Strings(frames)
	return frames, nil
}

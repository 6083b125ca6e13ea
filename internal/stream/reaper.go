package stream

import (
	"time"

	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/sched"
)

// Reaper default cadence and idle threshold.
const (
	DefaultReapInterval = 2 * time.Minute
	DefaultIdleAfter    = time.Minute
)

// CaptureGate reports whether timelapse capture currently needs a
// device's hardware. The reaper never stops a camera the capture
// scheduler is using.
type CaptureGate func(id device.ID) bool

// Reaper periodically stops camera hardware that has no viewers, no
// capture duty and has been idle past the threshold.
type Reaper struct {
	cams     *device.Registry
	sessions *Sessions
	gate     CaptureGate
	interval time.Duration
	idle     time.Duration
	log      logging.Logger
}

// NewReaper builds a reaper. Zero interval or idle selects defaults; a
// nil gate means capture never holds hardware.
func NewReaper(cams *device.Registry, sessions *Sessions, gate CaptureGate, interval, idle time.Duration) *Reaper {
	if interval == 0 {
		interval = DefaultReapInterval
	}
	if idle == 0 {
		idle = DefaultIdleAfter
	}
	if gate == nil {
		gate = func(device.ID) bool { return false }
	}
	return &Reaper{
		cams:     cams,
		sessions: sessions,
		gate:     gate,
		interval: interval,
		idle:     idle,
		log:      logging.GetLogger("reaper"),
	}
}

// Scheduled returns the runner job sweeping on the configured cadence.
func (r *Reaper) Scheduled() sched.Job {
	return sched.Job{
		Name:     "reaper",
		Interval: func() time.Duration { return r.interval },
		Run: func(time.Time) error {
			r.Sweep()
			return nil
		},
	}
}

// Sweep stops every idle camera once. A camera is idle when it is
// running, capture doesn't need it, no transport has viewers, and the
// last disconnect is older than the threshold. A camera whose viewers
// never disconnected (started for a one-shot snapshot) counts as idle
// immediately.
func (r *Reaper) Sweep() {
	for _, cam := range r.cams.Cameras() {
		id := cam.ID()
		if cam.State() != device.StateOn {
			continue
		}
		if r.gate(id) {
			continue
		}
		s, err := r.sessions.Get(id)
		if err != nil || s.Active() {
			continue
		}
		if last := s.LastDisconnect(); !last.IsZero() && time.Since(last) < r.idle {
			continue
		}
		r.log.Info("stopping idle camera", "device", id)
		r.cams.Stop(id)
	}
}

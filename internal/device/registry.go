package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/camkit/camserver/internal/logging"
)

// ErrInitTimeout is returned when a caller gives up waiting for another
// caller's in-flight hardware initialization.
var ErrInitTimeout = errors.New("camera initialization timed out")

// DefaultInitTimeout bounds how long hardware initialization may take
// before concurrent waiters give up.
const DefaultInitTimeout = 10 * time.Second

// DefaultFPS is the frame rate every local device is expected to
// deliver. Transcoders and the capture scheduler assume this rate.
const DefaultFPS = 30

// State is the initialization state of a local camera.
type State int

const (
	// StateOff means the hardware is not streaming. Initialization
	// may be attempted.
	StateOff State = iota
	// StateInitializing means one caller is performing hardware
	// initialization; others wait on its outcome.
	StateInitializing
	// StateOn means the capture loop is running.
	StateOn
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateInitializing:
		return "initializing"
	case StateOn:
		return "on"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RegistryConfig carries registry tunables. Zero values select the
// defaults.
type RegistryConfig struct {
	FPS         float64
	InitTimeout time.Duration
}

// Registry owns one Camera record per local device and serializes
// hardware initialization so that concurrent viewers share a single
// init attempt instead of racing the hardware.
type Registry struct {
	open        Opener
	fps         float64
	initTimeout time.Duration
	log         logging.Logger

	mu   sync.Mutex
	cams map[ID]*Camera
}

// NewRegistry builds a registry that opens hardware through open.
func NewRegistry(open Opener, cfg RegistryConfig) *Registry {
	if cfg.FPS == 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.InitTimeout == 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	return &Registry{
		open:        open,
		fps:         cfg.FPS,
		initTimeout: cfg.InitTimeout,
		log:         logging.GetLogger("device"),
		cams:        make(map[ID]*Camera),
	}
}

// Get returns the Camera record for a local device, opening the
// hardware handle on first use. Remote identifiers are rejected.
func (r *Registry) Get(id ID) (*Camera, error) {
	if !id.IsLocal() {
		return nil, fmt.Errorf("%w: %q", ErrNotLocalDevice, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cam, ok := r.cams[id]; ok {
		return cam, nil
	}
	hw, err := r.open(string(id))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	cam := &Camera{
		id:          id,
		hw:          hw,
		fps:         r.fps,
		initTimeout: r.initTimeout,
		log:         r.log,
		subs:        make(map[chan []byte]struct{}),
	}
	r.cams[id] = cam
	return cam, nil
}

// Cameras returns every camera record the registry has opened.
func (r *Registry) Cameras() []*Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	cams := make([]*Camera, 0, len(r.cams))
	for _, cam := range r.cams {
		cams = append(cams, cam)
	}
	return cams
}

// Start ensures the device's capture loop is running, joining any
// in-flight initialization rather than starting a second one.
func (r *Registry) Start(ctx context.Context, id ID) error {
	cam, err := r.Get(id)
	if err != nil {
		return err
	}
	return cam.EnsureStarted(ctx)
}

// Stop requests the device's capture loop to wind down. The loop
// releases the hardware on its next iteration.
func (r *Registry) Stop(id ID) {
	r.mu.Lock()
	cam := r.cams[id]
	r.mu.Unlock()
	if cam != nil {
		cam.Stop()
	}
}

// TakeSnapshot returns one JPEG frame from the device. Local devices
// are started if needed and the latest capture-loop frame is returned;
// remote devices are fetched over HTTP from their derived snapshot URL.
func (r *Registry) TakeSnapshot(ctx context.Context, id ID) ([]byte, error) {
	kind, err := Classify(id)
	if err != nil {
		return nil, err
	}
	if kind == KindLocal {
		cam, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		return cam.Snapshot(ctx)
	}
	url, err := id.SnapshotURL()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote snapshot %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote snapshot %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Camera is the registry's record of one local device: the hardware
// handle, the initialization state machine and the frame fan-out.
type Camera struct {
	id          ID
	fps         float64
	initTimeout time.Duration
	log         logging.Logger

	// hwMu serializes every call into the hardware. The capture
	// loop holds it for the duration of each blocking Capture.
	hwMu sync.Mutex
	hw   Hardware

	mu         sync.Mutex
	state      State
	ready      chan struct{} // closed when the current init flight ends
	firstFrame chan struct{} // closed by publish on the first frame
	initErr    error
	on         bool
	format     Format
	zoomCtl    Control
	zoomOK     bool
	zoom       int32
	frame      []byte
	subs       map[chan []byte]struct{}
}

// ID returns the device identifier.
func (c *Camera) ID() ID { return c.id }

// State returns the current lifecycle state.
func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FPS returns the negotiated frame rate.
func (c *Camera) FPS() float64 { return c.fps }

// Format returns the negotiated capture format. Zero until started.
func (c *Camera) Format() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// LastFrame returns the most recent captured frame, or nil if no frame
// has been captured since the last stop.
func (c *Camera) LastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Formats enumerates the hardware's capture formats.
func (c *Camera) Formats() ([]Format, error) {
	c.hwMu.Lock()
	defer c.hwMu.Unlock()
	return c.hw.Formats()
}

// Controls enumerates the hardware's controls.
func (c *Camera) Controls() ([]Control, error) {
	c.hwMu.Lock()
	defer c.hwMu.Unlock()
	return c.hw.Controls()
}

// EnsureStarted brings the capture loop up if it is not already
// running. Exactly one caller performs the hardware initialization;
// concurrent callers block until that flight finishes and share its
// outcome. Waiters give up after the init timeout.
func (c *Camera) EnsureStarted(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case StateOn:
			c.mu.Unlock()
			return nil
		case StateInitializing:
			ready := c.ready
			c.mu.Unlock()
			select {
			case <-ready:
				c.mu.Lock()
				err := c.initErr
				state := c.state
				c.mu.Unlock()
				if state == StateOn {
					return nil
				}
				if err != nil {
					return err
				}
				// The flight succeeded but the camera was
				// stopped in between. Try again.
				continue
			case <-time.After(c.initTimeout):
				return ErrInitTimeout
			case <-ctx.Done():
				return ctx.Err()
			}
		case StateOff:
			c.state = StateInitializing
			c.ready = make(chan struct{})
			ready := c.ready
			c.mu.Unlock()

			err := c.initialize()
			if err != nil {
				c.mu.Lock()
				c.initErr = err
				c.state = StateOff
				close(ready)
				c.mu.Unlock()
				return err
			}

			c.mu.Lock()
			c.on = true
			first := make(chan struct{})
			c.firstFrame = first
			c.mu.Unlock()
			go c.captureLoop()

			// Start resolves only once a frame has actually been
			// captured, so every caller sees a non-nil LastFrame.
			select {
			case <-first:
				c.mu.Lock()
				c.state = StateOn
				c.initErr = nil
				close(ready)
				c.mu.Unlock()
				return nil
			case <-time.After(c.initTimeout):
				return c.failFirstFrame(ready, ErrInitTimeout)
			case <-ctx.Done():
				return c.failFirstFrame(ready, ctx.Err())
			}
		}
	}
}

// failFirstFrame winds the camera back down when the capture loop
// produced no frame in time. The loop releases the hardware and
// resets the state to off; waiters get err through initErr.
func (c *Camera) failFirstFrame(ready chan struct{}, err error) error {
	c.mu.Lock()
	c.on = false
	c.firstFrame = nil
	c.initErr = err
	close(ready)
	c.mu.Unlock()
	return err
}

// initialize negotiates a format, applies the default zoom and starts
// hardware streaming. Called by the single winning init flight.
func (c *Camera) initialize() error {
	c.hwMu.Lock()
	defer c.hwMu.Unlock()

	formats, err := c.hw.Formats()
	if err != nil {
		return fmt.Errorf("enumerate formats: %w", err)
	}
	format, err := SelectFormat(formats, c.fps)
	if err != nil {
		return fmt.Errorf("select format for %s: %w", c.id, err)
	}
	if err := c.hw.SetFormat(format); err != nil {
		return fmt.Errorf("set format %s: %w", format, err)
	}

	if controls, err := c.hw.Controls(); err != nil {
		c.log.Warn("control enumeration failed", "device", c.id, "error", err)
	} else if ctl, ok := FindControl(controls, "zoom absolute"); ok {
		if err := c.hw.SetControl(ctl.ID, ctl.Default); err != nil {
			c.log.Warn("setting default zoom failed", "device", c.id, "error", err)
		}
		c.mu.Lock()
		c.zoomCtl, c.zoomOK, c.zoom = ctl, true, ctl.Default
		c.mu.Unlock()
	}

	if err := c.hw.Start(); err != nil {
		return fmt.Errorf("start streaming on %s: %w", c.id, err)
	}
	c.mu.Lock()
	c.format = format
	c.mu.Unlock()
	c.log.Info("camera started", "device", c.id, "format", format.String())
	return nil
}

// Stop requests the capture loop to stop. The loop itself releases the
// hardware and resets the state so a later EnsureStarted reinitializes.
func (c *Camera) Stop() {
	c.mu.Lock()
	c.on = false
	c.mu.Unlock()
}

// captureLoop captures frames at the negotiated rate, retaining the
// latest and fanning it out to subscribers. When Stop is requested the
// loop releases the hardware and resets the camera to off.
func (c *Camera) captureLoop() {
	interval := time.Duration(float64(time.Second) / c.fps)
	for {
		c.hwMu.Lock()
		frame, err := c.hw.Capture()
		c.hwMu.Unlock()
		if err != nil {
			c.log.Warn("frame capture failed", "device", c.id, "error", err)
		} else {
			c.publish(frame)
		}

		c.mu.Lock()
		if !c.on {
			c.mu.Unlock()
			c.hwMu.Lock()
			if err := c.hw.Stop(); err != nil {
				c.log.Warn("hardware stop failed", "device", c.id, "error", err)
			}
			c.hwMu.Unlock()
			c.mu.Lock()
			c.state = StateOff
			c.frame = nil
			c.initErr = nil
			c.mu.Unlock()
			c.log.Info("camera stopped", "device", c.id)
			return
		}
		c.mu.Unlock()
		time.Sleep(interval)
	}
}

func (c *Camera) publish(frame []byte) {
	c.mu.Lock()
	c.frame = frame
	if c.firstFrame != nil {
		close(c.firstFrame)
		c.firstFrame = nil
	}
	for ch := range c.subs {
		select {
		case ch <- frame:
		default:
			// Slow subscriber. Drop the frame rather than
			// stalling the capture loop.
		}
	}
	c.mu.Unlock()
}

// Subscribe registers a frame channel. Frames are dropped for
// subscribers that fall behind.
func (c *Camera) Subscribe() chan []byte {
	ch := make(chan []byte, 8)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a frame channel registered with Subscribe and
// closes it. Closing is safe here: publish sends only while holding
// the same lock.
func (c *Camera) Unsubscribe(ch chan []byte) {
	c.mu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.mu.Unlock()
}

// Snapshot starts the camera if needed and waits for a frame.
func (c *Camera) Snapshot(ctx context.Context) ([]byte, error) {
	if err := c.EnsureStarted(ctx); err != nil {
		return nil, err
	}
	deadline := time.NewTimer(c.initTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if frame := c.LastFrame(); frame != nil {
			return frame, nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			return nil, fmt.Errorf("no frame from %s within %s", c.id, c.initTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

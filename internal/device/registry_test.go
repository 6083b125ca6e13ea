package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeHardware is an in-memory Hardware used to exercise the registry
// lifecycle without V4L2.
type fakeHardware struct {
	mu        sync.Mutex
	starts    int32
	stops     int32
	streaming bool
	failStart int32 // fail this many Start calls before succeeding
	frame     []byte
	controls  []Control
	setCtls   map[uint32]int32

	// captureDelay stalls the next Capture call once.
	captureDelay time.Duration
}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{
		frame:   []byte{0xff, 0xd8, 0xff, 0xd9},
		setCtls: make(map[uint32]int32),
	}
}

func (f *fakeHardware) Formats() ([]Format, error) {
	return []Format{
		{Name: "YUYV", Width: 1920, Height: 1080, Interval: Fraction{1, 5}},
		{Name: "MJPG", Width: 1280, Height: 720, Interval: Fraction{1, 30}},
		{Name: "MJPG", Width: 640, Height: 480, Interval: Fraction{1, 30}},
	}, nil
}

func (f *fakeHardware) SetFormat(Format) error { return nil }

func (f *fakeHardware) Controls() ([]Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.controls, nil
}

func (f *fakeHardware) SetControl(id uint32, v int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCtls[id] = v
	return nil
}

func (f *fakeHardware) Start() error {
	if atomic.LoadInt32(&f.failStart) > 0 {
		atomic.AddInt32(&f.failStart, -1)
		return errors.New("device busy")
	}
	atomic.AddInt32(&f.starts, 1)
	f.mu.Lock()
	f.streaming = true
	f.mu.Unlock()
	return nil
}

func (f *fakeHardware) Capture() ([]byte, error) {
	f.mu.Lock()
	delay := f.captureDelay
	f.captureDelay = 0
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.streaming {
		return nil, errors.New("not streaming")
	}
	return f.frame, nil
}

func (f *fakeHardware) Stop() error {
	atomic.AddInt32(&f.stops, 1)
	f.mu.Lock()
	f.streaming = false
	f.mu.Unlock()
	return nil
}

func (f *fakeHardware) Close() error { return nil }

func testRegistry(hw Hardware) *Registry {
	return NewRegistry(func(string) (Hardware, error) { return hw, nil }, RegistryConfig{
		FPS:         30,
		InitTimeout: 2 * time.Second,
	})
}

func waitForState(t *testing.T, cam *Camera, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cam.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("camera never reached state %v, stuck at %v", want, cam.State())
}

func TestGetRejectsRemote(t *testing.T) {
	r := testRegistry(newFakeHardware())
	if _, err := r.Get("http://10.0.0.5:4000"); !errors.Is(err, ErrNotLocalDevice) {
		t.Fatalf("Get err = %v, want ErrNotLocalDevice", err)
	}
}

func TestConcurrentStartInitializesOnce(t *testing.T) {
	hw := newFakeHardware()
	r := testRegistry(hw)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Start(context.Background(), "/dev/video0")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Start[%d] err = %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&hw.starts); n != 1 {
		t.Errorf("hardware started %d times, want 1", n)
	}

	// A later call on a running camera is a no-op.
	if err := r.Start(context.Background(), "/dev/video0"); err != nil {
		t.Fatalf("repeat Start err = %v", err)
	}
	if n := atomic.LoadInt32(&hw.starts); n != 1 {
		t.Errorf("hardware started %d times after repeat, want 1", n)
	}
	r.Stop("/dev/video0")
}

func TestStartResolvesAfterFirstFrame(t *testing.T) {
	hw := newFakeHardware()
	hw.captureDelay = 200 * time.Millisecond
	r := testRegistry(hw)

	if err := r.Start(context.Background(), "/dev/video0"); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	cam, _ := r.Get("/dev/video0")
	if cam.LastFrame() == nil {
		t.Fatal("Start returned before the first frame was captured")
	}
	if cam.State() != StateOn {
		t.Fatalf("state = %v, want %v", cam.State(), StateOn)
	}
	r.Stop("/dev/video0")
}

func TestFailedInitAllowsRetry(t *testing.T) {
	hw := newFakeHardware()
	hw.failStart = 1
	r := testRegistry(hw)

	if err := r.Start(context.Background(), "/dev/video0"); err == nil {
		t.Fatal("Start succeeded, want init failure")
	}
	cam, _ := r.Get("/dev/video0")
	if cam.State() != StateOff {
		t.Fatalf("state after failure = %v, want off", cam.State())
	}
	if err := r.Start(context.Background(), "/dev/video0"); err != nil {
		t.Fatalf("retry err = %v", err)
	}
	r.Stop("/dev/video0")
}

func TestStopReleasesHardwareAndAllowsRestart(t *testing.T) {
	hw := newFakeHardware()
	r := testRegistry(hw)

	if err := r.Start(context.Background(), "/dev/video0"); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	cam, _ := r.Get("/dev/video0")
	r.Stop("/dev/video0")
	waitForState(t, cam, StateOff)
	if n := atomic.LoadInt32(&hw.stops); n != 1 {
		t.Errorf("hardware stopped %d times, want 1", n)
	}
	if cam.LastFrame() != nil {
		t.Error("last frame retained after stop")
	}

	if err := r.Start(context.Background(), "/dev/video0"); err != nil {
		t.Fatalf("restart err = %v", err)
	}
	if n := atomic.LoadInt32(&hw.starts); n != 2 {
		t.Errorf("hardware started %d times, want 2", n)
	}
	r.Stop("/dev/video0")
	waitForState(t, cam, StateOff)
}

func TestSubscribeReceivesFrames(t *testing.T) {
	hw := newFakeHardware()
	r := testRegistry(hw)
	cam, err := r.Get("/dev/video0")
	if err != nil {
		t.Fatalf("Get err = %v", err)
	}
	ch := cam.Subscribe()
	defer cam.Unsubscribe(ch)
	if err := cam.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("EnsureStarted err = %v", err)
	}
	defer cam.Stop()

	select {
	case frame := <-ch:
		if len(frame) == 0 {
			t.Error("received empty frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered to subscriber")
	}
}

func TestSnapshotStartsCameraAndReturnsFrame(t *testing.T) {
	hw := newFakeHardware()
	r := testRegistry(hw)

	frame, err := r.TakeSnapshot(context.Background(), "/dev/video0")
	if err != nil {
		t.Fatalf("TakeSnapshot err = %v", err)
	}
	if len(frame) != len(hw.frame) {
		t.Errorf("snapshot length = %d, want %d", len(frame), len(hw.frame))
	}
	r.Stop("/dev/video0")
}

func TestZoomRelativeClampsToRange(t *testing.T) {
	hw := newFakeHardware()
	hw.controls = []Control{{ID: 7, Name: "Zoom, Absolute", Min: 100, Max: 115, Default: 100}}
	r := testRegistry(hw)
	if err := r.Start(context.Background(), "/dev/video0"); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	cam, _ := r.Get("/dev/video0")
	defer cam.Stop()

	if got := cam.Zoom(); got != 100 {
		t.Fatalf("initial zoom = %d, want default 100", got)
	}
	if err := cam.ZoomRelative(1); err != nil {
		t.Fatalf("ZoomRelative err = %v", err)
	}
	if got := cam.Zoom(); got != 110 {
		t.Errorf("zoom after step = %d, want 110", got)
	}
	if err := cam.ZoomRelative(1); err != nil {
		t.Fatalf("ZoomRelative err = %v", err)
	}
	if got := cam.Zoom(); got != 115 {
		t.Errorf("zoom after clamped step = %d, want 115", got)
	}
	hw.mu.Lock()
	applied := hw.setCtls[7]
	hw.mu.Unlock()
	if applied != 115 {
		t.Errorf("applied control value = %d, want 115", applied)
	}
}

func TestMoveSpeedStartStop(t *testing.T) {
	hw := newFakeHardware()
	hw.controls = []Control{{ID: 9, Name: "Pan (speed)", Min: -1, Max: 1}}
	r := testRegistry(hw)
	cam, err := r.Get("/dev/video0")
	if err != nil {
		t.Fatalf("Get err = %v", err)
	}

	if err := cam.MoveSpeed(AxisPan, -1); err != nil {
		t.Fatalf("MoveSpeed err = %v", err)
	}
	hw.mu.Lock()
	v := hw.setCtls[9]
	hw.mu.Unlock()
	if v != -1 {
		t.Errorf("speed value = %d, want -1", v)
	}
	if err := cam.MoveStop(AxisPan); err != nil {
		t.Fatalf("MoveStop err = %v", err)
	}
	hw.mu.Lock()
	v = hw.setCtls[9]
	hw.mu.Unlock()
	if v != 0 {
		t.Errorf("speed value after stop = %d, want 0", v)
	}
}

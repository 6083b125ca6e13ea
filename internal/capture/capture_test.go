package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/camkit/camserver/internal/config"
	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/events"
)

type fakeSnapshotter struct {
	frame []byte
	err   error
	calls atomic.Int32
}

func (f *fakeSnapshotter) TakeSnapshot(ctx context.Context, id device.ID) ([]byte, error) {
	f.calls.Add(1)
	return f.frame, f.err
}

func testJob(t *testing.T, snap *fakeSnapshotter) (*Job, *events.Bus, string) {
	t.Helper()
	dir := t.TempDir()
	settings, err := config.NewStore(filepath.Join(dir, "settings.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	bus := events.New()
	t.Cleanup(func() { bus.Close() })
	return NewJob(snap, settings, bus, filepath.Join(dir, "captures")), bus, dir
}

func TestCaptureOnceWritesFrameAndPublishes(t *testing.T) {
	snap := &fakeSnapshotter{frame: []byte("jpeg-bytes")}
	job, bus, _ := testJob(t, snap)

	got := make(chan events.CaptureSuccessEvent, 1)
	unsub := bus.Subscribe(func(e events.CaptureSuccessEvent) {
		got <- e
	})
	defer unsub()

	job.CaptureOnce(context.Background())

	var ev events.CaptureSuccessEvent
	select {
	case ev = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no capture success event")
	}
	data, err := os.ReadFile(ev.FilePath)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("frame content = %q", data)
	}
	if ev.Name != "default" {
		t.Errorf("sequence name = %q, want default", ev.Name)
	}
}

func TestCaptureOncePublishesErrors(t *testing.T) {
	snap := &fakeSnapshotter{err: errors.New("device unplugged")}
	job, bus, _ := testJob(t, snap)

	got := make(chan events.CaptureErrorEvent, 1)
	unsub := bus.Subscribe(func(e events.CaptureErrorEvent) {
		got <- e
	})
	defer unsub()

	job.CaptureOnce(context.Background())

	select {
	case ev := <-got:
		if ev.Error != "device unplugged" {
			t.Errorf("error = %q", ev.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no capture error event")
	}
}

func TestCaptureTriggerTogglesRelay(t *testing.T) {
	var states []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		states = append(states, r.URL.Query().Get("RELAY"))
	}))
	defer srv.Close()

	snap := &fakeSnapshotter{frame: []byte("x")}
	job, _, _ := testJob(t, snap)
	if err := job.settings.Set(config.KeyCaptureTriggerURL, srv.URL); err != nil {
		t.Fatal(err)
	}

	job.CaptureOnce(context.Background())

	if len(states) != 2 || states[0] != "ON" || states[1] != "OFF" {
		t.Errorf("relay states = %v, want [ON OFF]", states)
	}
}

func TestListSequencesAndFrames(t *testing.T) {
	root := t.TempDir()
	seq := filepath.Join(root, "garden")
	if err := os.MkdirAll(seq, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("dev-video0-garden-%d.jpg", 1000+i)
		if err := os.WriteFile(filepath.Join(seq, name), []byte("f"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-jpeg noise is ignored.
	os.WriteFile(filepath.Join(seq, "notes.txt"), []byte("n"), 0o644)

	seqs, err := ListSequences(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 1 || seqs[0].Name != "garden" || seqs[0].FrameCount != 3 {
		t.Fatalf("sequences = %+v", seqs)
	}
	if seqs[0].LastFrame != "dev-video0-garden-1002.jpg" {
		t.Errorf("last frame = %q", seqs[0].LastFrame)
	}

	frames, err := ListFrames(seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %v", frames)
	}
	if filepath.Base(frames[0]) != "dev-video0-garden-1000.jpg" {
		t.Errorf("first frame = %q", frames[0])
	}
}

func TestListSequencesMissingDir(t *testing.T) {
	seqs, err := ListSequences(filepath.Join(t.TempDir(), "missing"))
	if err != nil || seqs != nil {
		t.Errorf("missing dir: seqs=%v err=%v", seqs, err)
	}
}

func TestAssembleRejectsEmptySequence(t *testing.T) {
	a := NewAssembler("ffmpeg", t.TempDir(), t.TempDir(), nil)
	if _, err := a.Assemble(context.Background(), "nothing", 30); err == nil {
		t.Fatal("assembled an empty sequence")
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	path, err := writeConcatList(dir, "list.txt", []string{filepath.Join(dir, "a.jpg")})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("file '%s'\n", filepath.Join(dir, "a.jpg"))
	if string(data) != want {
		t.Errorf("list = %q, want %q", data, want)
	}
}

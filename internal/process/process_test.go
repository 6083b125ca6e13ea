package process

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/camkit/camserver/internal/logging"
)

func TestStdinFeedsStdoutChunks(t *testing.T) {
	var mu sync.Mutex
	var out bytes.Buffer

	p := New("cat", []string{"cat"},
		WithStdin(),
		WithStdout(func(chunk []byte) {
			mu.Lock()
			out.Write(chunk)
			mu.Unlock()
		}),
	)
	if err := p.Start(); err != nil {
		t.Fatalf("Start err = %v", err)
	}

	payload := []byte("binary\x00payload")
	if _, err := p.Stdin().Write(payload); err != nil {
		t.Fatalf("stdin write err = %v", err)
	}
	p.Stdin().(io.WriteCloser).Close()

	if err := p.Wait(); err != nil {
		t.Fatalf("Wait err = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(out.Bytes(), payload) {
		t.Errorf("stdout = %q, want %q", out.Bytes(), payload)
	}
}

func TestExitCallbackUnrequested(t *testing.T) {
	exited := make(chan bool, 1)
	p := New("false", []string{"false"},
		WithExitCallback(func(err error, requested bool) {
			if err == nil {
				t.Error("exit err = nil, want non-zero exit")
			}
			exited <- requested
		}),
	)
	if err := p.Start(); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	select {
	case requested := <-exited:
		if requested {
			t.Error("requested = true for a self-exiting process")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exit callback never ran")
	}
}

func TestStopKillsAndMarksRequested(t *testing.T) {
	exited := make(chan bool, 1)
	p := New("sleep", []string{"sleep", "60"},
		WithExitCallback(func(err error, requested bool) {
			exited <- requested
		}),
	)
	if err := p.Start(); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	if !p.Running() {
		t.Fatal("Running = false right after Start")
	}

	p.Stop()
	select {
	case requested := <-exited:
		if !requested {
			t.Error("requested = false for a stopped process")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exit callback never ran after Stop")
	}
	if p.Running() {
		t.Error("Running = true after Stop returned")
	}

	// Stop again is a no-op.
	p.Stop()
}

func TestStartTwiceFails(t *testing.T) {
	p := New("sleep", []string{"sleep", "60"})
	if err := p.Start(); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	defer p.Stop()
	if err := p.Start(); err == nil {
		t.Fatal("second Start succeeded")
	}
}

func TestRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Run(ctx, "sleep", []string{"sleep", "60"}, logging.GetLogger("test"), nil)
	if err != context.DeadlineExceeded {
		t.Fatalf("Run err = %v, want context deadline", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Run did not return promptly after cancel")
	}
}

func TestRunSuccess(t *testing.T) {
	if err := Run(context.Background(), "true", []string{"true"}, logging.GetLogger("test"), nil); err != nil {
		t.Fatalf("Run err = %v", err)
	}
}

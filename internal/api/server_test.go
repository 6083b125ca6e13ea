package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/camkit/camserver/internal/capture"
	"github.com/camkit/camserver/internal/config"
	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/stream"
)

// fakeHardware delivers a constant JPEG frame, standing in for V4L2.
type fakeHardware struct {
	mu        sync.Mutex
	streaming bool
}

func (f *fakeHardware) Formats() ([]device.Format, error) {
	return []device.Format{{
		Name: "MJPG", Width: 640, Height: 480,
		Interval: device.Fraction{Numerator: 1, Denominator: 30},
	}}, nil
}
func (f *fakeHardware) SetFormat(device.Format) error       { return nil }
func (f *fakeHardware) Controls() ([]device.Control, error) { return nil, nil }
func (f *fakeHardware) SetControl(uint32, int32) error      { return nil }
func (f *fakeHardware) Start() error {
	f.mu.Lock()
	f.streaming = true
	f.mu.Unlock()
	return nil
}
func (f *fakeHardware) Capture() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.streaming {
		return nil, errors.New("not streaming")
	}
	return []byte{0xff, 0xd8, 0xbb, 0xff, 0xd9}, nil
}
func (f *fakeHardware) Stop() error {
	f.mu.Lock()
	f.streaming = false
	f.mu.Unlock()
	return nil
}
func (f *fakeHardware) Close() error { return nil }

func testServer(t *testing.T, authUser, authPass string) *httptest.Server {
	t.Helper()
	cams := device.NewRegistry(
		func(string) (device.Hardware, error) { return &fakeHardware{}, nil },
		device.RegistryConfig{FPS: 30, InitTimeout: 2 * time.Second},
	)
	bus := events.New()
	t.Cleanup(func() { bus.Close() })
	sessions := stream.NewSessions(cams, bus, stream.Config{FFmpeg: "ffmpeg", RTSPPublishBase: "rtsp://127.0.0.1:8554"})
	t.Cleanup(sessions.Shutdown)
	t.Cleanup(func() { cams.Stop("/dev/video0") })

	dir := t.TempDir()
	settings, err := config.NewStore(filepath.Join(dir, "settings.json"), bus)
	if err != nil {
		t.Fatal(err)
	}
	job := capture.NewJob(cams, settings, bus, filepath.Join(dir, "captures"))
	assembler := capture.NewAssembler("ffmpeg", filepath.Join(dir, "captures"), filepath.Join(dir, "timelapses"), bus)

	srv := NewServer(&Options{
		AuthUsername: authUser,
		AuthPassword: authPass,
		Cams:         cams,
		Sessions:     sessions,
		Settings:     settings,
		Bus:          bus,
		Job:          job,
		Assembler:    assembler,
		ListDevices: func() ([]DeviceInfo, error) {
			return []DeviceInfo{{
				ID:   device.EncodeID("/dev/video0"),
				Path: "/dev/video0",
				Name: "Fake Camera",
			}}, nil
		},
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestPingWithoutAuth(t *testing.T) {
	ts := testServer(t, "admin", "secret")

	resp, err := http.Get(ts.URL + "/ping")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ping status = %d", resp.StatusCode)
	}
}

func TestDevicesRequireAuth(t *testing.T) {
	ts := testServer(t, "admin", "secret")

	resp, err := http.Get(ts.URL + "/api/devices")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/devices", nil)
	req.Header.Set("Authorization", basicAuth("admin", "secret"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d", resp.StatusCode)
	}

	var body struct {
		Devices []DeviceInfo `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Devices) != 1 || body.Devices[0].Path != "/dev/video0" {
		t.Fatalf("devices = %+v", body.Devices)
	}
	if len(body.Devices[0].Transports) == 0 {
		t.Error("device lists no transports")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ts := testServer(t, "", "")

	payload := strings.NewReader(`{"value": true}`)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config/"+config.KeyCaptureEnable, payload)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("put status = %d body = %s", resp.StatusCode, b)
	}

	get, err := http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	var settings map[string]any
	if err := json.NewDecoder(get.Body).Decode(&settings); err != nil {
		t.Fatal(err)
	}
	if settings[config.KeyCaptureEnable] != true {
		t.Fatalf("captureEnable = %v, want true", settings[config.KeyCaptureEnable])
	}
}

func TestConfigRejectsUnknownKey(t *testing.T) {
	ts := testServer(t, "", "")

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config/bogus", strings.NewReader(`{"value": 1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	ts := testServer(t, "", "")

	url := ts.URL + "/stream/" + device.EncodeID("/dev/video0") + "/snapshot"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
	frame, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) == 0 || frame[0] != 0xff || frame[1] != 0xd8 {
		t.Errorf("not a JPEG: % x", frame)
	}
}

func TestSnapshotRejectsBadDeviceID(t *testing.T) {
	ts := testServer(t, "", "")

	resp, err := http.Get(ts.URL + "/stream/!!!not-base64!!!/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStreamListEmpty(t *testing.T) {
	ts := testServer(t, "", "")

	resp, err := http.Get(ts.URL + "/api/streams")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDeviceFormats(t *testing.T) {
	ts := testServer(t, "", "")
	id := device.EncodeID("/dev/video0")

	resp, err := http.Get(ts.URL + "/api/devices/" + id + "/formats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Formats []struct {
			Name string  `json:"name"`
			FPS  float64 `json:"fps"`
		} `json:"formats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Formats) != 1 || body.Formats[0].Name != "MJPG" || body.Formats[0].FPS != 30 {
		t.Fatalf("formats = %+v", body.Formats)
	}
}

func TestDeviceControlIgnoresMissingZoom(t *testing.T) {
	ts := testServer(t, "", "")
	id := device.EncodeID("/dev/video0")

	resp, err := http.Post(ts.URL+"/api/devices/"+id+"/control",
		"application/json", strings.NewReader(`{"action":"zoom","dir":1}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDeviceFormatsRejectsRemoteID(t *testing.T) {
	ts := testServer(t, "", "")
	id := device.EncodeID("http://10.0.0.9/cam")

	resp, err := http.Get(ts.URL + "/api/devices/" + id + "/formats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMJPEGKeepsQuirkyBoundary(t *testing.T) {
	ts := testServer(t, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ts.URL+"/stream/"+device.EncodeID("/dev/video0")+"/mjpeg", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=--myboundary" {
		t.Fatalf("content type = %q", ct)
	}
	part := make([]byte, len("--myboundary\n"))
	if _, err := io.ReadFull(resp.Body, part); err != nil {
		t.Fatal(err)
	}
	if string(part) != "--myboundary\n" {
		t.Fatalf("part line = %q", part)
	}
}

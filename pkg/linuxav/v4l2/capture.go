//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// captureBufferCount is the number of mmap buffers requested for
// streaming. Three buffers keep the driver busy while one is being read.
const captureBufferCount = 3

// frameTimeout bounds how long ReadFrame waits for the driver before
// giving up, in milliseconds.
const frameTimeout = 2000

// Device is an open V4L2 capture device. Methods are not safe for
// concurrent use.
type Device struct {
	path      string
	fd        int
	bufs      [][]byte
	streaming bool
}

// Open opens a capture device by path.
func Open(path string) (*Device, error) {
	fd, err := openFd(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	cap := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&cap)); err != nil {
		closeFd(fd)
		return nil, fmt.Errorf("failed to query capabilities of %s: %w", path, err)
	}
	caps := cap.capabilities
	if caps&capDeviceCaps != 0 {
		caps = cap.deviceCaps
	}
	if caps&CapVideoCapture == 0 || caps&CapStreaming == 0 {
		closeFd(fd)
		return nil, fmt.Errorf("%s does not support streaming video capture", path)
	}

	return &Device{path: path, fd: fd}, nil
}

// Path returns the device path this handle was opened from.
func (d *Device) Path() string { return d.path }

// Formats enumerates the device's pixel formats.
func (d *Device) Formats() ([]FormatInfo, error) {
	return enumFormats(d.fd)
}

// Resolutions enumerates the resolutions for a pixel format.
func (d *Device) Resolutions(pixelFormat uint32) ([]Resolution, error) {
	return enumResolutions(d.fd, pixelFormat)
}

// Framerates enumerates the frame intervals for a format and resolution.
func (d *Device) Framerates(pixelFormat uint32, width, height uint32) ([]Fract, error) {
	return enumFramerates(d.fd, pixelFormat, width, height)
}

// Controls enumerates the device's controls.
func (d *Device) Controls() ([]ControlInfo, error) {
	return enumControls(d.fd)
}

// GetControl reads a control value by ID.
func (d *Device) GetControl(id uint32) (int32, error) {
	return getControl(d.fd, id)
}

// SetControl writes a control value by ID.
func (d *Device) SetControl(id uint32, value int32) error {
	return setControl(d.fd, id, value)
}

// SetFormat negotiates the pixel format, resolution and frame interval.
// Must be called before StreamOn.
func (d *Device) SetFormat(pixelFormat, width, height uint32, interval Fract) error {
	format := v4l2Format{typ: bufTypeVideoCapture}
	format.pix.width = width
	format.pix.height = height
	format.pix.pixelformat = pixelFormat
	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		return fmt.Errorf("failed to set format on %s: %w", d.path, err)
	}
	if format.pix.pixelformat != pixelFormat ||
		format.pix.width != width || format.pix.height != height {
		return fmt.Errorf("%s rejected format %s %dx%d, driver chose %s %dx%d",
			d.path, FormatFourCC(pixelFormat), width, height,
			FormatFourCC(format.pix.pixelformat), format.pix.width, format.pix.height)
	}

	parm := v4l2Streamparm{typ: bufTypeVideoCapture}
	parm.capture.timeperframe = v4l2Fract{
		numerator:   interval.Numerator,
		denominator: interval.Denominator,
	}
	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		// Some drivers don't implement S_PARM. The enumerated
		// interval is then the only one the format runs at.
		if !errors.Is(err, syscall.ENOTTY) {
			return fmt.Errorf("failed to set frame interval on %s: %w", d.path, err)
		}
	}
	return nil
}

// StreamOn requests and maps capture buffers, queues them and starts
// streaming.
func (d *Device) StreamOn() error {
	if d.streaming {
		return fmt.Errorf("%s is already streaming", d.path)
	}

	req := v4l2Requestbuffers{
		count:  captureBufferCount,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("failed to request buffers on %s: %w", d.path, err)
	}
	if req.count == 0 {
		return fmt.Errorf("%s granted no capture buffers", d.path)
	}

	d.bufs = make([][]byte, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{index: i, typ: bufTypeVideoCapture, memory: memoryMmap}
		if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			d.unmapBuffers()
			return fmt.Errorf("failed to query buffer %d on %s: %w", i, d.path, err)
		}
		data, err := unix.Mmap(d.fd, int64(buf.mmapOffset()), int(buf.length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			d.unmapBuffers()
			return fmt.Errorf("failed to mmap buffer %d on %s: %w", i, d.path, err)
		}
		d.bufs[i] = data

		if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			d.unmapBuffers()
			return fmt.Errorf("failed to queue buffer %d on %s: %w", i, d.path, err)
		}
	}

	typ := uint32(bufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		d.unmapBuffers()
		return fmt.Errorf("failed to start streaming on %s: %w", d.path, err)
	}
	d.streaming = true
	return nil
}

// ReadFrame waits for the next frame and returns a copy of its bytes.
func (d *Device) ReadFrame() ([]byte, error) {
	if !d.streaming {
		return nil, fmt.Errorf("%s is not streaming", d.path)
	}

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, frameTimeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("poll on %s failed: %w", d.path, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("no frame from %s within %dms", d.path, frameTimeout)
		}
		break
	}

	buf := v4l2Buffer{typ: bufTypeVideoCapture, memory: memoryMmap}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return nil, fmt.Errorf("failed to dequeue buffer on %s: %w", d.path, err)
	}
	if int(buf.index) >= len(d.bufs) {
		return nil, fmt.Errorf("driver returned out-of-range buffer index %d", buf.index)
	}

	frame := make([]byte, buf.bytesused)
	copy(frame, d.bufs[buf.index][:buf.bytesused])

	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return nil, fmt.Errorf("failed to requeue buffer %d on %s: %w", buf.index, d.path, err)
	}
	return frame, nil
}

// StreamOff stops streaming and releases the capture buffers.
func (d *Device) StreamOff() error {
	if !d.streaming {
		return nil
	}
	d.streaming = false

	typ := uint32(bufTypeVideoCapture)
	streamErr := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ))
	d.unmapBuffers()

	// Release the driver-side buffers so a later StreamOn can
	// renegotiate the count.
	req := v4l2Requestbuffers{typ: bufTypeVideoCapture, memory: memoryMmap}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil && streamErr == nil {
		streamErr = err
	}
	if streamErr != nil {
		return fmt.Errorf("failed to stop streaming on %s: %w", d.path, streamErr)
	}
	return nil
}

// Close stops streaming if needed and closes the device.
func (d *Device) Close() error {
	if d.streaming {
		if err := d.StreamOff(); err != nil {
			closeFd(d.fd)
			return err
		}
	}
	return closeFd(d.fd)
}

func (d *Device) unmapBuffers() {
	for i, b := range d.bufs {
		if b != nil {
			unix.Munmap(b)
			d.bufs[i] = nil
		}
	}
	d.bufs = nil
}

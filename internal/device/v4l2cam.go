//go:build linux

package device

import (
	"fmt"

	"github.com/camkit/camserver/pkg/linuxav/v4l2"
)

// v4l2Hardware adapts a V4L2 capture device to the Hardware interface.
type v4l2Hardware struct {
	dev *v4l2.Device
}

// OpenV4L2 opens local camera hardware through the V4L2 API. It is the
// Opener used for real devices.
func OpenV4L2(path string) (Hardware, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return &v4l2Hardware{dev: dev}, nil
}

func (h *v4l2Hardware) Formats() ([]Format, error) {
	infos, err := h.dev.Formats()
	if err != nil {
		return nil, err
	}
	var formats []Format
	for _, info := range infos {
		resolutions, err := h.dev.Resolutions(info.PixelFormat)
		if err != nil {
			return nil, err
		}
		for _, res := range resolutions {
			intervals, err := h.dev.Framerates(info.PixelFormat, res.Width, res.Height)
			if err != nil {
				return nil, err
			}
			for _, ival := range intervals {
				formats = append(formats, Format{
					Name:        v4l2.FormatFourCC(info.PixelFormat),
					PixelFormat: info.PixelFormat,
					Width:       res.Width,
					Height:      res.Height,
					Interval: Fraction{
						Numerator:   ival.Numerator,
						Denominator: ival.Denominator,
					},
				})
			}
		}
	}
	return formats, nil
}

func (h *v4l2Hardware) SetFormat(f Format) error {
	if f.PixelFormat == 0 {
		return fmt.Errorf("format %s carries no pixel format code", f)
	}
	return h.dev.SetFormat(f.PixelFormat, f.Width, f.Height, v4l2.Fract{
		Numerator:   f.Interval.Numerator,
		Denominator: f.Interval.Denominator,
	})
}

func (h *v4l2Hardware) Controls() ([]Control, error) {
	infos, err := h.dev.Controls()
	if err != nil {
		return nil, err
	}
	var controls []Control
	for _, info := range infos {
		if info.Type != v4l2.CtrlTypeInteger && info.Type != v4l2.CtrlTypeBoolean {
			continue
		}
		controls = append(controls, Control{
			ID:      info.ID,
			Name:    info.Name,
			Min:     info.Min,
			Max:     info.Max,
			Step:    info.Step,
			Default: info.Default,
		})
	}
	return controls, nil
}

func (h *v4l2Hardware) SetControl(id uint32, value int32) error {
	return h.dev.SetControl(id, value)
}

func (h *v4l2Hardware) Start() error {
	return h.dev.StreamOn()
}

func (h *v4l2Hardware) Capture() ([]byte, error) {
	return h.dev.ReadFrame()
}

func (h *v4l2Hardware) Stop() error {
	return h.dev.StreamOff()
}

func (h *v4l2Hardware) Close() error {
	return h.dev.Close()
}

// ListDevices enumerates local capture devices for the device listing
// API.
func ListDevices() ([]v4l2.DeviceInfo, error) {
	return v4l2.FindDevices()
}

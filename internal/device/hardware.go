package device

import (
	"fmt"
	"strings"
)

// Format describes one capturable pixel format, resolution and frame
// interval combination advertised by hardware.
type Format struct {
	// Name is the FourCC description, for example "MJPG" or "YUYV".
	Name string
	// PixelFormat is the driver's FourCC code for the format.
	PixelFormat uint32
	Width       uint32
	Height      uint32
	// Interval is the frame interval as a fraction of a second,
	// for example 1/30 for 30 FPS.
	Interval Fraction
}

// Fraction is a V4L2-style rational number.
type Fraction struct {
	Numerator   uint32
	Denominator uint32
}

// FPS converts a frame interval to frames per second.
func (f Format) FPS() float64 {
	if f.Interval.Numerator == 0 {
		return 0
	}
	return float64(f.Interval.Denominator) / float64(f.Interval.Numerator)
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dx%d@%.4g", f.Name, f.Width, f.Height, f.FPS())
}

// Control describes a hardware control such as zoom or pan.
type Control struct {
	ID      uint32
	Name    string
	Min     int32
	Max     int32
	Step    int32
	Default int32
}

// Hardware is the capture surface of one local camera. Implementations
// are not safe for concurrent use; the registry serializes access.
type Hardware interface {
	// Formats enumerates every capturable format combination.
	Formats() ([]Format, error)
	// SetFormat negotiates a format before streaming starts.
	SetFormat(Format) error
	// Controls enumerates the available hardware controls.
	Controls() ([]Control, error)
	// SetControl writes a control value by control ID.
	SetControl(id uint32, value int32) error
	// Start begins streaming. Capture may be called afterwards.
	Start() error
	// Capture blocks until the next frame and returns its bytes.
	// The returned slice is owned by the caller.
	Capture() ([]byte, error)
	// Stop ends streaming and releases buffers. Start may be called
	// again afterwards.
	Stop() error
	// Close releases the device handle.
	Close() error
}

// Opener opens the hardware behind a local device path.
type Opener func(path string) (Hardware, error)

// SelectFormat picks the capture format for a device: MJPEG only (raw
// formats would saturate USB at useful resolutions), largest frame
// area, preferring an exact frame-rate match on area ties. The chosen
// format must run at wantFPS because the downstream transcoders and
// the capture scheduler assume that rate.
func SelectFormat(formats []Format, wantFPS float64) (Format, error) {
	var best Format
	found := false
	for _, f := range formats {
		if !strings.Contains(strings.ToUpper(f.Name), "MJP") {
			continue
		}
		if !found {
			best, found = f, true
			continue
		}
		area, bestArea := int64(f.Width)*int64(f.Height), int64(best.Width)*int64(best.Height)
		if area > bestArea {
			best = f
		} else if area == bestArea && f.FPS() == wantFPS && best.FPS() != wantFPS {
			best = f
		}
	}
	if !found {
		return Format{}, fmt.Errorf("no MJPEG format available")
	}
	if best.FPS() != wantFPS {
		return Format{}, fmt.Errorf("best format %s does not run at %.4g FPS", best, wantFPS)
	}
	return best, nil
}

// FindControl locates a control whose name contains every word of the
// query, matched case-insensitively. Cameras disagree on exact control
// names ("Zoom, Absolute" vs "zoom_absolute"), so word containment is
// the most portable match.
func FindControl(controls []Control, query string) (Control, bool) {
	words := strings.Fields(strings.ToLower(query))
	for _, c := range controls {
		name := strings.ToLower(c.Name)
		ok := true
		for _, w := range words {
			if !strings.Contains(name, w) {
				ok = false
				break
			}
		}
		if ok {
			return c, true
		}
	}
	return Control{}, false
}

// Clamp bounds a control value to the control's advertised range.
func (c Control) Clamp(v int32) int32 {
	if v < c.Min {
		return c.Min
	}
	if v > c.Max {
		return c.Max
	}
	return v
}

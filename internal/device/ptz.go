package device

import "fmt"

// ZoomStep is the zoom increment applied per relative zoom request.
const ZoomStep = 10

// Axis names a pan/tilt movement axis.
type Axis string

const (
	AxisPan  Axis = "pan"
	AxisTilt Axis = "tilt"
)

// Zoom returns the current zoom value tracked for the device.
func (c *Camera) Zoom() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// ZoomRelative nudges the zoom by one step. dir is +1 to zoom in and
// -1 to zoom out; the result is clamped to the control's range.
// Cameras without a zoom control ignore the request.
func (c *Camera) ZoomRelative(dir int) error {
	c.mu.Lock()
	ok := c.zoomOK
	ctl := c.zoomCtl
	target := ctl.Clamp(c.zoom + int32(dir)*ZoomStep)
	c.mu.Unlock()
	if !ok {
		c.log.Warn("zoom requested but no zoom control", "device", c.id)
		return nil
	}
	return c.ZoomAbsolute(target)
}

// ZoomAbsolute sets the zoom to an absolute value, clamped to the
// control's range.
func (c *Camera) ZoomAbsolute(v int32) error {
	c.mu.Lock()
	ok := c.zoomOK
	ctl := c.zoomCtl
	c.mu.Unlock()
	if !ok {
		c.log.Warn("zoom requested but no zoom control", "device", c.id)
		return nil
	}
	v = ctl.Clamp(v)
	c.hwMu.Lock()
	err := c.hw.SetControl(ctl.ID, v)
	c.hwMu.Unlock()
	if err != nil {
		return fmt.Errorf("set zoom on %s: %w", c.id, err)
	}
	c.mu.Lock()
	c.zoom = v
	c.mu.Unlock()
	return nil
}

// MoveSpeed starts continuous movement along an axis using the
// camera's speed control. dir is +1 or -1. Movement continues until
// MoveStop is called. Cameras without a speed control for the axis
// ignore the request.
func (c *Camera) MoveSpeed(axis Axis, dir int) error {
	ctl, ok, err := c.lookupControl(string(axis) + " speed")
	if err != nil {
		return err
	}
	if !ok {
		c.log.Warn("no speed control for axis", "device", c.id, "axis", axis)
		return nil
	}
	return c.setControl(ctl, ctl.Clamp(int32(dir)))
}

// MoveStop halts continuous movement along an axis.
func (c *Camera) MoveStop(axis Axis) error {
	ctl, ok, err := c.lookupControl(string(axis) + " speed")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.setControl(ctl, 0)
}

// MoveRelative performs one relative movement step along an axis for
// cameras that expose relative rather than speed controls. dir is +1
// or -1; the control's advertised step size is used as the increment.
func (c *Camera) MoveRelative(axis Axis, dir int) error {
	ctl, ok, err := c.lookupControl(string(axis) + " relative")
	if err != nil {
		return err
	}
	if !ok {
		c.log.Warn("no relative control for axis", "device", c.id, "axis", axis)
		return nil
	}
	step := ctl.Step
	if step == 0 {
		step = 1
	}
	return c.setControl(ctl, ctl.Clamp(int32(dir)*step))
}

func (c *Camera) lookupControl(query string) (Control, bool, error) {
	c.hwMu.Lock()
	controls, err := c.hw.Controls()
	c.hwMu.Unlock()
	if err != nil {
		return Control{}, false, fmt.Errorf("enumerate controls on %s: %w", c.id, err)
	}
	ctl, ok := FindControl(controls, query)
	return ctl, ok, nil
}

func (c *Camera) setControl(ctl Control, v int32) error {
	c.hwMu.Lock()
	err := c.hw.SetControl(ctl.ID, v)
	c.hwMu.Unlock()
	if err != nil {
		return fmt.Errorf("set %s on %s: %w", ctl.Name, c.id, err)
	}
	return nil
}

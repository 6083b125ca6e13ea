//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// GetControls returns the user and camera-class controls of a device.
func GetControls(devicePath string) ([]ControlInfo, error) {
	fd, err := openFd(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer closeFd(fd)

	return enumControls(fd)
}

func enumControls(fd int) ([]ControlInfo, error) {
	controls := enumControlsNext(fd)
	if controls == nil {
		// Older drivers don't implement NEXT_CTRL enumeration.
		controls = enumControlsScan(fd)
	}
	return controls, nil
}

// enumControlsNext walks the control list with V4L2_CTRL_FLAG_NEXT_CTRL.
func enumControlsNext(fd int) []ControlInfo {
	var controls []ControlInfo

	qc := v4l2Queryctrl{id: ctrlFlagNextCtrl}
	for {
		if err := ioctl(fd, vidiocQueryctrl, unsafe.Pointer(&qc)); err != nil {
			break
		}
		if qc.flags&ctrlFlagDisabled == 0 {
			controls = append(controls, controlInfo(&qc))
		}
		qc.id |= ctrlFlagNextCtrl
	}
	return controls
}

// enumControlsScan probes the fixed user and camera-class ID ranges.
func enumControlsScan(fd int) []ControlInfo {
	var controls []ControlInfo

	for _, base := range []uint32{cidBase, cidCameraClassBase} {
		for id := base; id < base+64; id++ {
			qc := v4l2Queryctrl{id: id}
			if err := ioctl(fd, vidiocQueryctrl, unsafe.Pointer(&qc)); err != nil {
				if errors.Is(err, syscall.EINVAL) {
					continue
				}
				break
			}
			if qc.flags&ctrlFlagDisabled == 0 {
				controls = append(controls, controlInfo(&qc))
			}
		}
	}
	return controls
}

func controlInfo(qc *v4l2Queryctrl) ControlInfo {
	return ControlInfo{
		ID:      qc.id,
		Name:    cstr(qc.name[:]),
		Type:    qc.typ,
		Min:     qc.minimum,
		Max:     qc.maximum,
		Step:    qc.step,
		Default: qc.defaultValue,
		Flags:   qc.flags,
	}
}

func getControl(fd int, id uint32) (int32, error) {
	ctrl := v4l2Control{id: id}
	if err := ioctl(fd, vidiocGCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, fmt.Errorf("failed to get control 0x%x: %w", id, err)
	}
	return ctrl.value, nil
}

func setControl(fd int, id uint32, value int32) error {
	ctrl := v4l2Control{id: id, value: value}
	if err := ioctl(fd, vidiocSCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return fmt.Errorf("failed to set control 0x%x to %d: %w", id, value, err)
	}
	return nil
}

//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format negotiation, control access and
// memory-mapped frame capture.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Capture
//
// Open a device, negotiate a format and stream frames:
//
//	dev, _ := v4l2.Open("/dev/video0")
//	defer dev.Close()
//	dev.SetFormat(v4l2.PixFmtMJPEG, 1280, 720, v4l2.Fract{Numerator: 1, Denominator: 30})
//	dev.StreamOn()
//	frame, _ := dev.ReadFrame()
//	dev.StreamOff()
package v4l2

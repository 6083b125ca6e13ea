//go:build linux

package hotplug

import "testing"

func TestParseVideoEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected *Event
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: nil,
		},
		{
			name:     "no @ separator",
			input:    []byte("invalid"),
			expected: nil,
		},
		{
			name:     "missing action",
			input:    []byte("@/devices/foo"),
			expected: nil,
		},
		{
			name:  "camera add",
			input: []byte("add@/devices/pci0000:00/usb1/1-2/video4linux/video0\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00"),
			expected: &Event{
				Action: ActionAdd,
				Node:   "/dev/video0",
				KObj:   "/devices/pci0000:00/usb1/1-2/video4linux/video0",
			},
		},
		{
			name:  "camera remove with absolute devname",
			input: []byte("remove@/devices/pci0000:00/usb1/1-2/video4linux/video2\x00SUBSYSTEM=video4linux\x00DEVNAME=/dev/video2\x00"),
			expected: &Event{
				Action: ActionRemove,
				Node:   "/dev/video2",
				KObj:   "/devices/pci0000:00/usb1/1-2/video4linux/video2",
			},
		},
		{
			name:     "other subsystem is dropped",
			input:    []byte("add@/devices/usb/1-1\x00SUBSYSTEM=usb\x00DEVNAME=bus/usb/001/004\x00"),
			expected: nil,
		},
		{
			name:     "change action is dropped",
			input:    []byte("change@/devices/video4linux/video0\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00"),
			expected: nil,
		},
		{
			name:     "no device node",
			input:    []byte("add@/devices/video4linux/video0\x00SUBSYSTEM=video4linux\x00"),
			expected: nil,
		},
		{
			name: "libudev relay header is skipped",
			input: append(
				append([]byte("libudev\x00"), []byte{0xfe, 0xed, 0xca, 0xfe, 0x00}...),
				[]byte("add@/devices/video4linux/video1\x00SUBSYSTEM=video4linux\x00DEVNAME=video1\x00")...,
			),
			expected: &Event{
				Action: ActionAdd,
				Node:   "/dev/video1",
				KObj:   "/devices/video4linux/video1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseVideoEvent(tt.input)
			if tt.expected == nil {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %+v, got nil", tt.expected)
			}
			if *got != *tt.expected {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
		})
	}
}

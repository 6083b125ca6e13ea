package device

import "testing"

func mjpg(w, h, fps uint32) Format {
	return Format{Name: "MJPG", Width: w, Height: h, Interval: Fraction{1, fps}}
}

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats []Format
		want    Format
		wantErr bool
	}{
		{
			name: "largest MJPEG wins",
			formats: []Format{
				mjpg(640, 480, 30),
				mjpg(1920, 1080, 30),
				{Name: "YUYV", Width: 3840, Height: 2160, Interval: Fraction{1, 30}},
			},
			want: mjpg(1920, 1080, 30),
		},
		{
			name: "area tie prefers matching frame rate",
			formats: []Format{
				mjpg(1280, 720, 15),
				mjpg(1280, 720, 30),
			},
			want: mjpg(1280, 720, 30),
		},
		{
			name:    "no MJPEG format",
			formats: []Format{{Name: "YUYV", Width: 640, Height: 480, Interval: Fraction{1, 30}}},
			wantErr: true,
		},
		{
			name:    "best format runs at the wrong rate",
			formats: []Format{mjpg(1920, 1080, 15)},
			wantErr: true,
		},
		{
			name:    "empty",
			formats: nil,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectFormat(tt.formats, 30)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SelectFormat = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectFormat err = %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectFormat = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindControl(t *testing.T) {
	controls := []Control{
		{ID: 1, Name: "Brightness"},
		{ID: 2, Name: "Zoom, Absolute", Min: 100, Max: 500},
		{ID: 3, Name: "Pan (speed)"},
	}
	c, ok := FindControl(controls, "zoom absolute")
	if !ok || c.ID != 2 {
		t.Fatalf("FindControl zoom = %+v ok=%v", c, ok)
	}
	c, ok = FindControl(controls, "pan speed")
	if !ok || c.ID != 3 {
		t.Fatalf("FindControl pan speed = %+v ok=%v", c, ok)
	}
	if _, ok := FindControl(controls, "tilt speed"); ok {
		t.Fatal("FindControl matched a missing control")
	}
}

func TestControlClamp(t *testing.T) {
	c := Control{Min: 100, Max: 500}
	for _, tt := range []struct{ in, want int32 }{{50, 100}, {100, 100}, {300, 300}, {501, 500}} {
		if got := c.Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

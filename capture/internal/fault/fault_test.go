package fault

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		msg, debug string
		want       Category
	}{
		{"Could not open device '/dev/video0' for reading and writing.", "v4l2_calls.c(621): system error: Permission denied", Permission},
		{"Internal data stream error.", "streaming stopped, reason not-negotiated (-4)", Format},
		{"no element \"v4l2src\"", "missing plugin", Format},
		{"Device '/dev/video0' is busy", "", Device},
		{"Could not read from resource.", "Failed to dequeue buffer", Device},
		{"Something odd happened", "", Unknown},
		{"", "", Unknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.msg, tt.debug); got != tt.want {
			t.Errorf("Classify(%q, %q) = %v, want %v", tt.msg, tt.debug, got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	var c Counters
	for _, cat := range []Category{Device, Device, Format, Permission, Unknown, Category(42)} {
		c.Add(cat)
	}
	if c.Device != 2 || c.Format != 1 || c.Permission != 1 || c.Unknown != 2 {
		t.Errorf("Counters = %+v, want 2/1/1/2", c)
	}
	if Category(42).String() != "unknown" {
		t.Errorf("String() of invalid category = %q", Category(42).String())
	}
}

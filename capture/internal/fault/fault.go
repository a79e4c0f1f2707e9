// Package fault classifies source errors for telemetry.
//
// GStreamer errors carry no usable domain through the Go bindings, so the
// classification matches keywords in the message and debug string.
package fault

import "strings"

// Category groups source failures by what a restart can do about them.
type Category int

const (
	// Device: unplugged, busy or stalled camera. A restart may help.
	Device Category = iota
	// Format: caps negotiation or missing plugin. A restart will not help.
	Format
	// Permission: the process may not open the device.
	Permission
	Unknown
)

func (c Category) String() string {
	switch c {
	case Device:
		return "device"
	case Format:
		return "format"
	case Permission:
		return "permission"
	default:
		return "unknown"
	}
}

var keywords = []struct {
	cat   Category
	words []string
}{
	// Most specific first.
	{Permission, []string{"permission denied", "not permitted", "eacces", "forbidden", "unauthorized"}},
	{Format, []string{"not-negotiated", "not negotiated", "negotiation", "caps", "format", "missing plugin", "no such element"}},
	{Device, []string{"device", "busy", "no such file", "resource", "v4l2", "disconnected", "timeout", "could not read", "could not open", "end of stream"}},
}

// Classify maps an error message and its debug detail to a Category.
func Classify(msg, debug string) Category {
	combined := strings.ToLower(msg + " " + debug)
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(combined, w) {
				return k.cat
			}
		}
	}
	return Unknown
}

// Counters tallies classified failures.
type Counters struct {
	Device, Format, Permission, Unknown uint64
}

// Add counts one failure of category c.
func (n *Counters) Add(c Category) {
	switch c {
	case Device:
		n.Device++
	case Format:
		n.Format++
	case Permission:
		n.Permission++
	default:
		n.Unknown++
	}
}

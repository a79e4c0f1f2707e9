package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/capture"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/pipeline"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/renderer"
)

// snapshot is what one stats tick prints.
type snapshot struct {
	uptime   time.Duration
	capture  capture.Stats
	pipeline pipeline.Stats
	renderer renderer.Stats
	rendered bool
}

// reportStats prints a snapshot every interval until ctx ends.
func reportStats(ctx context.Context, interval time.Duration, take func() (snapshot, bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s, ok := take(); ok {
				printLiveStats(s)
			}
		}
	}
}

func printLiveStats(s snapshot) {
	c, p := s.capture, s.pipeline

	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ Edge Viewer Statistics (Session uptime: %v)\n", s.uptime.Round(time.Second))
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")

	fmt.Println("│ Capture:")
	fmt.Printf("│   Frames Captured:    %6d frames (%s)\n", c.FramesCaptured, c.Resolution)
	fmt.Printf("│   Not Submitted:      %6d frames (%.1f%%)\n", c.FramesCaptured-min(c.Submitted, c.FramesCaptured), c.DropRate)
	fmt.Printf("│   Copy Errors:        %6d\n", c.CopyErrors)
	fmt.Printf("│   Target FPS:         %6.2f fps\n", c.FPSTarget)
	fmt.Printf("│   Real FPS:           %6.2f fps\n", c.FPSReal)
	fmt.Printf("│   Latency:            %6d ms\n", c.LatencyMS)
	fmt.Printf("│   Reconnects:         %6d\n", c.Reconnects)
	fmt.Printf("│   Connected:          %6v\n", c.IsConnected)
	if e := c.Errors; e.Device+e.Format+e.Permission+e.Unknown > 0 {
		fmt.Printf("│   Errors:             device=%d format=%d permission=%d unknown=%d\n",
			e.Device, e.Format, e.Permission, e.Unknown)
	}

	fmt.Println("│")
	fmt.Println("│ Pipeline:")
	fmt.Printf("│   Submitted:          %6d\n", p.Submitted)
	fmt.Printf("│   Processed:          %6d (last %v)\n", p.Processed, p.LastLatency.Round(time.Microsecond))
	fmt.Printf("│   Dropped / Rejected: %6d / %d (%.1f%%)\n", p.Dropped, p.Rejected, dropRate(p.Submitted, p.Dropped+p.Rejected))
	fmt.Printf("│   Failed:             %6d\n", p.Failed)
	fmt.Printf("│   Pool:               %6d outstanding, %d retained\n", p.Pool.Outstanding, p.Pool.Retained)
	fmt.Printf("│   Handoff:            %6d published, %d unseen\n", p.Handoff.Published, p.Handoff.Dropped)

	fmt.Println("│")
	fmt.Println("│ Renderer:")
	if !s.rendered {
		fmt.Println("│   (no surface)")
	} else {
		r := s.renderer
		fmt.Printf("│   State:              %s\n", r.State)
		fmt.Printf("│   Uploads / Redraws:  %6d / %d\n", r.Uploads, r.Redraws)
		fmt.Printf("│   Texture:            %dx%d (seq %d)\n", r.TextureWidth, r.TextureHeight, r.DisplayedSeq)
		if r.Failures > 0 {
			fmt.Printf("│   Failures:           %6d\n", r.Failures)
		}
	}

	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
	fmt.Println()
}

// dropRate returns drops as a percentage of total.
func dropRate(total, drops uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(drops) / float64(total) * 100
}

// status is the JSON form of a snapshot, served by the web preview and
// published over MQTT.
type status struct {
	UptimeS    float64 `json:"uptime_s"`
	Resolution string  `json:"resolution"`
	Connected  bool    `json:"connected"`
	FPSTarget  float64 `json:"fps_target"`
	FPSReal    float64 `json:"fps_real"`
	Captured   uint64  `json:"captured"`
	Reconnects uint32  `json:"reconnects"`
	Processed  uint64  `json:"processed"`
	Dropped    uint64  `json:"dropped"`
	Failed     uint64  `json:"failed"`
	LatencyMS  float64 `json:"latency_ms"`
	Renderer   string  `json:"renderer,omitempty"`
	Displayed  uint64  `json:"displayed_seq,omitempty"`
}

func (s snapshot) status() status {
	st := status{
		UptimeS:    s.uptime.Seconds(),
		Resolution: s.capture.Resolution,
		Connected:  s.capture.IsConnected,
		FPSTarget:  s.capture.FPSTarget,
		FPSReal:    s.capture.FPSReal,
		Captured:   s.capture.FramesCaptured,
		Reconnects: s.capture.Reconnects,
		Processed:  s.pipeline.Processed,
		Dropped:    s.pipeline.Dropped + s.pipeline.Rejected,
		Failed:     s.pipeline.Failed,
		LatencyMS:  float64(s.pipeline.LastLatency.Microseconds()) / 1000,
	}
	if s.rendered {
		st.Renderer = s.renderer.State.String()
		st.Displayed = s.renderer.DisplayedSeq
	}
	return st
}

package framehandoff_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
)

func edges(tag byte) *frame.EdgeMap {
	m := frame.NewEdgeMap(2, 2)
	m.Pix[0] = tag
	return m
}

// TestPublishNonBlocking validates Publish() returns immediately with no
// consumer draining the slot.
//
// Scenario:
//  1. Subscribe a consumer that never consumes
//  2. Publish 1000 frames in a tight loop
//  3. Assert: total time < 100ms
func TestPublishNonBlocking(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()
	h.Subscribe("slow")

	m := edges(1)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Publish(m, time.Now())
	}
	elapsed := time.Since(start)

	if elapsed > 100*time.Millisecond {
		t.Errorf("Publish() blocked: elapsed=%v (expected <100ms)", elapsed)
	}
	t.Logf("✅ Publish() 1000 frames in %v", elapsed)
}

// TestDropLatestLaw validates keep-only-latest semantics.
//
// Scenario:
//  1. Publish N, then N+1 before any ConsumeLatest
//  2. ConsumeLatest returns N+1, never N
//  3. Stats: 1 drop, N went to the discard hook
func TestDropLatestLaw(t *testing.T) {
	var discarded []*frame.EdgeMap
	h := framehandoff.New(framehandoff.WithDiscardHook(func(m *frame.EdgeMap) {
		discarded = append(discarded, m)
	}))
	defer h.Close()
	c := h.Subscribe("renderer")

	first, second := edges('N'), edges('M')
	seqN := h.Publish(first, time.Now())
	seqN1 := h.Publish(second, time.Now())

	f, ok := c.ConsumeLatest()
	if !ok {
		t.Fatal("ConsumeLatest() reported nothing new")
	}
	if f.Seq != seqN1 || f.Edges != second {
		t.Errorf("ConsumeLatest() = seq %d, want %d (frame N must be dropped)", f.Seq, seqN1)
	}
	if seqN1 != seqN+1 {
		t.Errorf("seq N+1 = %d, want %d", seqN1, seqN+1)
	}

	if got := h.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
	if len(discarded) != 1 || discarded[0] != first {
		t.Errorf("discard hook got %d maps, want frame N only", len(discarded))
	}
}

// TestNoDoubleDelivery validates that a consumer never sees a frame twice.
func TestNoDoubleDelivery(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()
	c := h.Subscribe("renderer")

	h.Publish(edges(1), time.Now())
	if _, ok := c.ConsumeLatest(); !ok {
		t.Fatal("first ConsumeLatest() reported nothing new")
	}
	if f, ok := c.ConsumeLatest(); ok {
		t.Errorf("second ConsumeLatest() returned seq %d, want nothing new", f.Seq)
	}

	// A delivered frame is not a drop and is not recycled.
	var hooked int
	h2 := framehandoff.New(framehandoff.WithDiscardHook(func(*frame.EdgeMap) { hooked++ }))
	defer h2.Close()
	c2 := h2.Subscribe("renderer")
	h2.Publish(edges(1), time.Now())
	c2.ConsumeLatest()
	h2.Publish(edges(2), time.Now())

	if got := h2.Stats().Dropped; got != 0 {
		t.Errorf("Dropped = %d after delivery, want 0", got)
	}
	if hooked != 0 {
		t.Errorf("discard hook called %d times for a delivered frame", hooked)
	}
}

// TestIndependentConsumers validates per-consumer sequence tracking: one
// consumer taking a frame does not hide it from another.
func TestIndependentConsumers(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()
	a := h.Subscribe("renderer")
	b := h.Subscribe("recorder")

	h.Publish(edges(1), time.Now())
	fa, okA := a.ConsumeLatest()
	fb, okB := b.ConsumeLatest()
	if !okA || !okB || fa != fb {
		t.Fatalf("both consumers must receive the same frame: a=%v b=%v", okA, okB)
	}

	// a skips three frames, b consumes each.
	for i := 0; i < 3; i++ {
		h.Publish(edges(byte(i)), time.Now())
		b.ConsumeLatest()
	}
	h.Publish(edges(9), time.Now())
	a.ConsumeLatest()

	stats := h.Stats()
	if got := stats.Consumers["renderer"].Skipped; got != 3 {
		t.Errorf("renderer Skipped = %d, want 3", got)
	}
	if got := stats.Consumers["recorder"].Delivered; got != 4 {
		t.Errorf("recorder Delivered = %d, want 4", got)
	}
	if stats.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0 (every frame reached a consumer)", stats.Dropped)
	}
}

// TestLateSubscriberGetsHeldFrame validates that a consumer subscribing
// after a publish (e.g. a renderer created after surface recreation) still
// receives the held frame.
func TestLateSubscriberGetsHeldFrame(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()

	seq := h.Publish(edges(1), time.Now())
	c := h.Subscribe("late")

	select {
	case <-c.Updates():
	default:
		t.Error("Updates() not signalled for an already held frame")
	}

	f, ok := c.ConsumeLatest()
	if !ok || f.Seq != seq {
		t.Errorf("ConsumeLatest() = %v, want held seq %d", ok, seq)
	}
}

// TestUpdatesCoalesce validates the render-on-demand signal: a burst of
// publishes leaves exactly one pending signal.
func TestUpdatesCoalesce(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()
	c := h.Subscribe("renderer")

	for i := 0; i < 5; i++ {
		h.Publish(edges(byte(i)), time.Now())
	}

	<-c.Updates()
	select {
	case <-c.Updates():
		t.Error("second signal pending after a coalesced burst")
	default:
	}
}

// TestNextBlocksUntilPublish validates the blocking consume path.
func TestNextBlocksUntilPublish(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()
	c := h.Subscribe("worker")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.Publish(edges(7), time.Now())
	}()

	f, err := c.Next(ctx)
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if f.Edges.Pix[0] != 7 {
		t.Errorf("Next() returned tag %d, want 7", f.Edges.Pix[0])
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, err := c.Next(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() with nothing new = %v, want DeadlineExceeded", err)
	}
}

// TestUnsubscribeWakesConsumer validates that a blocked Next returns
// ErrClosed on Unsubscribe.
func TestUnsubscribeWakesConsumer(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()
	c := h.Subscribe("worker")

	done := make(chan error, 1)
	go func() {
		_, err := c.Next(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	h.Unsubscribe("worker")
	h.Unsubscribe("worker") // idempotent

	select {
	case err := <-done:
		if !errors.Is(err, framehandoff.ErrClosed) {
			t.Errorf("Next() = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next() still blocked after Unsubscribe")
	}

	if _, ok := h.Stats().Consumers["worker"]; ok {
		t.Error("unsubscribed consumer still listed in Stats()")
	}
}

// TestCloseStopsPublishing validates teardown semantics.
func TestCloseStopsPublishing(t *testing.T) {
	var hooked int
	h := framehandoff.New(framehandoff.WithDiscardHook(func(*frame.EdgeMap) { hooked++ }))
	c := h.Subscribe("renderer")

	h.Publish(edges(1), time.Now())
	h.Close()
	h.Close() // idempotent

	if hooked != 1 {
		t.Errorf("discard hook called %d times at Close, want 1 (held frame undelivered)", hooked)
	}
	if seq := h.Publish(edges(2), time.Now()); seq != 0 {
		t.Errorf("Publish() after Close = %d, want 0", seq)
	}
	if _, ok := c.ConsumeLatest(); ok {
		t.Error("ConsumeLatest() after Close returned a frame")
	}
	// A signal may still be buffered from the last Publish; the channel
	// must close right after it.
	timeout := time.After(time.Second)
	for open := true; open; {
		select {
		case _, open = <-c.Updates():
		case <-timeout:
			t.Fatal("Updates() channel still open after Close")
		}
	}
}

func TestPublishNilIgnored(t *testing.T) {
	h := framehandoff.New()
	defer h.Close()

	if seq := h.Publish(nil, time.Now()); seq != 0 {
		t.Errorf("Publish(nil) = %d, want 0", seq)
	}
	if got := h.Stats().Published; got != 0 {
		t.Errorf("Published = %d, want 0", got)
	}
}

func TestIdleDetection(t *testing.T) {
	h := framehandoff.New(framehandoff.WithIdleThreshold(20 * time.Millisecond))
	defer h.Close()
	h.Subscribe("renderer")

	if h.Stats().Consumers["renderer"].IsIdle {
		t.Error("fresh consumer reported idle")
	}
	time.Sleep(40 * time.Millisecond)
	if !h.Stats().Consumers["renderer"].IsIdle {
		t.Error("consumer not idle after threshold")
	}
}

// TestConcurrentSafety runs a producer and two consumers in parallel
// (run with -race).
//
// Asserts per consumer: sequence numbers strictly increase and no frame is
// delivered twice.
func TestConcurrentSafety(t *testing.T) {
	h := framehandoff.New()
	consumers := []*framehandoff.Consumer{h.Subscribe("a"), h.Subscribe("b")}

	var (
		wg       sync.WaitGroup
		stop     atomic.Bool
		failures atomic.Int64
	)

	for _, c := range consumers {
		wg.Add(1)
		go func(c *framehandoff.Consumer) {
			defer wg.Done()
			var last uint64
			for !stop.Load() {
				f, ok := c.ConsumeLatest()
				if !ok {
					continue
				}
				if f.Seq <= last {
					failures.Add(1)
				}
				last = f.Seq
			}
		}(c)
	}

	var lastPublished uint64
	for i := 0; i < 5000; i++ {
		seq := h.Publish(edges(byte(i)), time.Now())
		if seq <= lastPublished {
			t.Fatalf("Publish() seq %d not above %d", seq, lastPublished)
		}
		lastPublished = seq
	}
	stop.Store(true)
	wg.Wait()
	h.Close()

	if n := failures.Load(); n > 0 {
		t.Errorf("%d non-increasing deliveries", n)
	}
}

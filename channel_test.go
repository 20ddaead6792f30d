package framefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testFrame(ts int64) (RawFrame, *trackingBuffer) {
	buf := newTrackingBuffer(PixelFormatBGRA32, 1, 1, 4)
	return RawFrame{Buffer: buf, Timestamp: ts}, buf
}

func TestFrameChannel_DropOldest(t *testing.T) {
	ch := NewFrameChannel()
	f1, b1 := testFrame(1)
	f2, b2 := testFrame(2)

	ch.Deliver(f1)
	ch.Deliver(f2)

	got, err := ch.Take(context.Background())
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if got.Buffer != b2 || got.Timestamp != 2 {
		t.Errorf("Take returned frame %d, want 2", got.Timestamp)
	}
	if got.Seq != 2 {
		t.Errorf("Seq = %d, want 2", got.Seq)
	}
	if b1.releaseCount() != 1 {
		t.Errorf("replaced frame released %d times, want 1", b1.releaseCount())
	}

	if _, ok := ch.TryTake(); ok {
		t.Error("second take observed a frame; F1 must never be delivered")
	}

	got.Release()
	b2.assertSettled(t)

	s := ch.Stats()
	if s.Delivered != 2 || s.Dropped != 1 || s.Taken != 1 {
		t.Errorf("stats = %+v, want delivered=2 dropped=1 taken=1", s)
	}
}

func TestFrameChannel_TakeBlocksUntilDeliver(t *testing.T) {
	ch := NewFrameChannel()
	done := make(chan RawFrame, 1)

	go func() {
		f, err := ch.Take(context.Background())
		if err != nil {
			t.Errorf("Take failed: %v", err)
		}
		done <- f
	}()

	select {
	case <-done:
		t.Fatal("Take returned before any delivery")
	case <-time.After(20 * time.Millisecond):
	}

	f, _ := testFrame(7)
	ch.Deliver(f)

	select {
	case got := <-done:
		if got.Timestamp != 7 {
			t.Errorf("Timestamp = %d, want 7", got.Timestamp)
		}
		got.Release()
	case <-time.After(time.Second):
		t.Fatal("Take did not return after Deliver")
	}
}

func TestFrameChannel_TakeContext(t *testing.T) {
	ch := NewFrameChannel()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := ch.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Take error = %v, want DeadlineExceeded", err)
	}
}

func TestFrameChannel_Close(t *testing.T) {
	ch := NewFrameChannel()
	pending, pb := testFrame(1)
	ch.Deliver(pending)

	ch.Close()
	ch.Close() // idempotent

	if pb.releaseCount() != 1 {
		t.Errorf("pending frame released %d times on Close, want 1", pb.releaseCount())
	}
	if _, err := ch.Take(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Take after Close = %v, want ErrChannelClosed", err)
	}

	late, lb := testFrame(2)
	if ch.Deliver(late) {
		t.Error("Deliver after Close accepted the frame")
	}
	if lb.releaseCount() != 1 {
		t.Errorf("late frame released %d times, want 1", lb.releaseCount())
	}
	if s := ch.Stats(); s.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", s.Rejected)
	}
}

func TestFrameChannel_CloseWakesTake(t *testing.T) {
	ch := NewFrameChannel()
	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Take(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelClosed) {
			t.Errorf("Take error = %v, want ErrChannelClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake a blocked Take")
	}
}

// TestFrameChannel_Concurrent checks that under a racing producer the
// consumer only ever sees whole frames in increasing order, and that every
// buffer is released exactly once.
func TestFrameChannel_Concurrent(t *testing.T) {
	const n = 2000

	ch := NewFrameChannel()
	bufs := make([]*trackingBuffer, n)
	for i := range bufs {
		bufs[i] = newTrackingBuffer(PixelFormatBGRA32, 1, 1, 4)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last uint64
		for {
			f, err := ch.Take(ctx)
			if err != nil {
				return
			}
			if f.Seq <= last {
				t.Errorf("Seq %d after %d", f.Seq, last)
			}
			if f.Buffer != bufs[f.Timestamp] {
				t.Errorf("frame %d carries another frame's buffer", f.Timestamp)
			}
			if uint64(f.Timestamp)+1 != f.Seq {
				t.Errorf("torn frame: timestamp %d with seq %d", f.Timestamp, f.Seq)
			}
			last = f.Seq
			f.Release()
		}
	}()

	for i := 0; i < n; i++ {
		ch.Deliver(RawFrame{Buffer: bufs[i], Timestamp: int64(i)})
	}
	ch.Close()
	wg.Wait()

	for i, b := range bufs {
		if got := b.releaseCount(); got != 1 {
			t.Fatalf("frame %d released %d times, want 1", i, got)
		}
	}

	s := ch.Stats()
	if s.Taken+s.Dropped+1 < n || s.Delivered != n {
		t.Errorf("stats = %+v do not account for %d frames", s, n)
	}
}

func TestFrameChannel_NilBuffer(t *testing.T) {
	ch := NewFrameChannel()

	if ch.Deliver(RawFrame{Timestamp: 7}) {
		t.Error("Deliver accepted a frame without a buffer")
	}
	if _, ok := ch.TryTake(); ok {
		t.Error("a frame without a buffer became pending")
	}

	f, buf := testFrame(8)
	if !ch.Deliver(f) {
		t.Fatal("Deliver rejected a valid frame")
	}
	got, ok := ch.TryTake()
	if !ok || got.Buffer != buf || got.Seq != 1 {
		t.Errorf("TryTake() = %+v, %v", got, ok)
	}
	got.Release()

	if s := ch.Stats(); s.Rejected != 1 || s.Delivered != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestFrameChannel_ConcurrentProducers(t *testing.T) {
	const (
		producers = 4
		perProd   = 500
	)

	ch := NewFrameChannel()
	bufs := make([]*trackingBuffer, producers*perProd)
	for i := range bufs {
		bufs[i] = newTrackingBuffer(PixelFormatBGRA32, 1, 1, 4)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var last uint64
		for {
			f, err := ch.Take(ctx)
			if err != nil {
				return
			}
			if f.Seq <= last {
				t.Errorf("Seq %d after %d", f.Seq, last)
			}
			last = f.Seq
			f.Release()
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				ch.Deliver(RawFrame{Buffer: bufs[p*perProd+i]})
			}
		}(p)
	}
	wg.Wait()
	ch.Close()
	<-done

	for i, b := range bufs {
		if got := b.releaseCount(); got != 1 {
			t.Fatalf("frame %d released %d times, want 1", i, got)
		}
	}
	if s := ch.Stats(); s.Delivered != producers*perProd {
		t.Errorf("Delivered = %d, want %d", s.Delivered, producers*perProd)
	}
}

func BenchmarkFrameChannel_Deliver(b *testing.B) {
	ch := NewFrameChannel()
	pool, err := NewBufferPool(64, 64, PixelFormatBGRA32, 0)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch.Deliver(RawFrame{Buffer: pool.Get(), Timestamp: int64(i)})
	}
	ch.Close()
}

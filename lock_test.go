package framefeed

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// trackingBuffer is a PixelBuffer that records how it is used.
type trackingBuffer struct {
	format                PixelFormat
	width, height, stride int
	data                  []byte
	lockErr               error

	mu       sync.Mutex
	locks    int
	unlocks  int
	releases int
}

func newTrackingBuffer(format PixelFormat, width, height, stride int) *trackingBuffer {
	return &trackingBuffer{
		format: format,
		width:  width,
		height: height,
		stride: stride,
		data:   make([]byte, stride*height),
	}
}

func (b *trackingBuffer) Format() PixelFormat { return b.format }
func (b *trackingBuffer) Width() int          { return b.width }
func (b *trackingBuffer) Height() int         { return b.height }
func (b *trackingBuffer) BytesPerRow() int    { return b.stride }

func (b *trackingBuffer) Lock() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lockErr != nil {
		return nil, b.lockErr
	}
	b.locks++
	return b.data, nil
}

func (b *trackingBuffer) Unlock() {
	b.mu.Lock()
	b.unlocks++
	b.mu.Unlock()
}

func (b *trackingBuffer) Release() {
	b.mu.Lock()
	b.releases++
	b.mu.Unlock()
}

func (b *trackingBuffer) counts() (locks, unlocks, releases int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locks, b.unlocks, b.releases
}

func (b *trackingBuffer) releaseCount() int {
	_, _, r := b.counts()
	return r
}

// assertSettled checks the buffer was unlocked as often as locked and
// released exactly once.
func (b *trackingBuffer) assertSettled(t *testing.T) {
	t.Helper()
	locks, unlocks, releases := b.counts()
	if locks != unlocks {
		t.Errorf("locks = %d, unlocks = %d", locks, unlocks)
	}
	if releases != 1 {
		t.Errorf("releases = %d, want 1", releases)
	}
}

func TestAcquire(t *testing.T) {
	buf := newTrackingBuffer(PixelFormatBGRA32, 2, 3, 12)
	for i := range buf.data {
		buf.data[i] = byte(i)
	}

	lb, err := Acquire(buf)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if lb.Format() != PixelFormatBGRA32 || lb.Width() != 2 || lb.Height() != 3 || lb.BytesPerRow() != 12 {
		t.Errorf("geometry = %v %dx%d stride %d", lb.Format(), lb.Width(), lb.Height(), lb.BytesPerRow())
	}
	if got := len(lb.Bytes()); got != 36 {
		t.Errorf("len(Bytes()) = %d, want 36", got)
	}
	if row := lb.Row(1); len(row) != 12 || row[0] != 12 {
		t.Errorf("Row(1) = %v", row)
	}
	if locks, _, _ := buf.counts(); locks != 1 {
		t.Errorf("locks = %d, want 1", locks)
	}

	lb.Release()
	buf.assertSettled(t)
}

func TestAcquire_Errors(t *testing.T) {
	busy := newTrackingBuffer(PixelFormatBGRA32, 2, 2, 8)
	busy.lockErr = fmt.Errorf("%w: device reclaimed memory", ErrBufferBusy)

	short := newTrackingBuffer(PixelFormatBGRA32, 2, 2, 8)
	short.data = short.data[:12]

	tests := []struct {
		name string
		buf  *trackingBuffer
		want error
	}{
		{"lock failure", busy, ErrBufferBusy},
		{"negative width", newTrackingBuffer(PixelFormatBGRA32, -1, 2, 8), ErrInvalidGeometry},
		{"stride below width", newTrackingBuffer(PixelFormatARGB32, 4, 2, 8), ErrInvalidGeometry},
		{"memory shorter than stride*height", short, ErrInvalidGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb, err := Acquire(tt.buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Acquire error = %v, want %v", err, tt.want)
			}
			if lb != nil {
				t.Error("Acquire returned a buffer on error")
			}
			tt.buf.assertSettled(t)
		})
	}
}

func TestAcquire_ZeroArea(t *testing.T) {
	buf := newTrackingBuffer(PixelFormatBGRA32, 0, 0, 0)

	lb, err := Acquire(buf)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if len(lb.Bytes()) != 0 {
		t.Errorf("len(Bytes()) = %d, want 0", len(lb.Bytes()))
	}
	lb.Release()
	buf.assertSettled(t)
}

func TestLockedBuffer_RetainRelease(t *testing.T) {
	buf := newTrackingBuffer(PixelFormatBGRA32, 1, 1, 4)
	lb, err := Acquire(buf)
	if err != nil {
		t.Fatal(err)
	}

	if err := lb.Retain(); err != nil {
		t.Fatalf("Retain failed: %v", err)
	}
	lb.Release()
	if _, unlocks, _ := buf.counts(); unlocks != 0 {
		t.Fatal("buffer unlocked while a reference is still held")
	}

	lb.Release()
	buf.assertSettled(t)

	if err := lb.Retain(); !errors.Is(err, ErrBufferReleased) {
		t.Errorf("Retain after release = %v, want ErrBufferReleased", err)
	}
}

func TestLockedBuffer_OverRelease(t *testing.T) {
	lb, err := Acquire(newTrackingBuffer(PixelFormatBGRA32, 1, 1, 4))
	if err != nil {
		t.Fatal(err)
	}
	lb.Release()

	defer func() {
		if recover() == nil {
			t.Error("second Release did not panic")
		}
	}()
	lb.Release()
}

func TestLockedBuffer_ConcurrentRetain(t *testing.T) {
	buf := newTrackingBuffer(PixelFormatARGB32, 4, 4, 16)
	lb, err := Acquire(buf)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lb.Retain(); err != nil {
				t.Errorf("Retain failed: %v", err)
				return
			}
			_ = lb.Bytes()
			lb.Release()
		}()
	}
	wg.Wait()

	lb.Release()
	buf.assertSettled(t)
}

package framefeed

import (
	"fmt"
	"sync/atomic"
)

// LockedBuffer is a read-only view over a locked PixelBuffer.
//
// The view is reference counted. Acquire returns it holding one reference;
// every image derived from it takes another with Retain. When the last
// reference is released the buffer is unlocked and handed back to its
// producer, so the memory stays valid exactly as long as someone reads it.
type LockedBuffer struct {
	buf    PixelBuffer
	format PixelFormat
	width  int
	height int
	stride int
	data   []byte

	refs atomic.Int32
}

// Acquire locks buf for reading and takes ownership of it.
//
// On failure buf is released before returning: a lock failure wraps
// ErrBufferBusy and a buffer whose geometry does not fit its memory wraps
// ErrInvalidGeometry. Callers drop the frame in both cases; Acquire must not
// be retried for the same buffer.
func Acquire(buf PixelBuffer) (*LockedBuffer, error) {
	format := buf.Format()
	width, height, stride := buf.Width(), buf.Height(), buf.BytesPerRow()

	if width < 0 || height < 0 || stride < 0 {
		buf.Release()
		return nil, fmt.Errorf("%w: %dx%d stride %d", ErrInvalidGeometry, width, height, stride)
	}
	if bpp := format.BytesPerPixel(); bpp > 0 && stride < width*bpp {
		buf.Release()
		return nil, fmt.Errorf("%w: stride %d below %d bytes for %d %v pixels", ErrInvalidGeometry, stride, width*bpp, width, format)
	}

	mem, err := buf.Lock()
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("lock %v buffer: %w", format, err)
	}

	size := stride * height
	if len(mem) < size {
		buf.Unlock()
		buf.Release()
		return nil, fmt.Errorf("%w: locked %d bytes, need %d", ErrInvalidGeometry, len(mem), size)
	}

	lb := &LockedBuffer{
		buf:    buf,
		format: format,
		width:  width,
		height: height,
		stride: stride,
		data:   mem[:size:size],
	}
	lb.refs.Store(1)
	return lb, nil
}

func (b *LockedBuffer) Format() PixelFormat { return b.format }
func (b *LockedBuffer) Width() int          { return b.width }
func (b *LockedBuffer) Height() int         { return b.height }
func (b *LockedBuffer) BytesPerRow() int    { return b.stride }

// Bytes returns the locked window of exactly BytesPerRow*Height bytes.
// The slice must not be written and must not be used after the last Release.
func (b *LockedBuffer) Bytes() []byte {
	return b.data
}

// Row returns row y including its padding bytes.
func (b *LockedBuffer) Row(y int) []byte {
	off := y * b.stride
	return b.data[off : off+b.stride : off+b.stride]
}

// Retain adds a reference. It fails with ErrBufferReleased once the buffer
// has been unlocked.
func (b *LockedBuffer) Retain() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return ErrBufferReleased
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference. The last one unlocks the buffer and releases it.
func (b *LockedBuffer) Release() {
	n := b.refs.Add(-1)
	switch {
	case n == 0:
		b.data = nil
		b.buf.Unlock()
		b.buf.Release()
	case n < 0:
		panic("framefeed: LockedBuffer released more times than retained")
	}
}

package framefeed

import (
	"fmt"
	"sync"
)

// PixelBuffer is a hardware frame buffer as handed over by a capture stack.
//
// Its memory may only be read between Lock and the matching Unlock. Release
// hands the buffer back to the producer; it is called exactly once by the
// current owner, after the final Unlock.
type PixelBuffer interface {
	// Format returns the pixel format tag of the buffer.
	Format() PixelFormat

	// Width returns the frame width in pixels.
	Width() int

	// Height returns the frame height in pixels.
	Height() int

	// BytesPerRow returns the row stride in bytes, which may include padding.
	BytesPerRow() int

	// Lock locks the base address for reading. It must not block for long and
	// returns an error wrapping ErrBufferBusy when the memory is unavailable.
	Lock() ([]byte, error)

	// Unlock releases a lock obtained with Lock.
	Unlock()

	// Release returns the buffer to its producer.
	Release()
}

// HeapPixelBuffer is a PixelBuffer backed by Go memory.
// It is used by synthetic sources, by the native capture copy path and in tests.
type HeapPixelBuffer struct {
	format PixelFormat
	width  int
	height int
	stride int
	data   []byte

	mu        sync.Mutex
	locks     int
	reclaimed bool
	pool      *BufferPool
}

// NewHeapPixelBuffer allocates a buffer for a width x height frame.
// A stride of 0 selects a tight stride for packed formats.
func NewHeapPixelBuffer(width, height int, format PixelFormat, stride int) (*HeapPixelBuffer, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	if stride == 0 {
		stride = width * format.BytesPerPixel()
	}
	if stride < width*format.BytesPerPixel() {
		return nil, fmt.Errorf("%w: stride %d too small for %d %v pixels", ErrInvalidGeometry, stride, width, format)
	}
	return &HeapPixelBuffer{
		format: format,
		width:  width,
		height: height,
		stride: stride,
		data:   make([]byte, stride*height),
	}, nil
}

// WrapPixelBuffer wraps existing memory without copying.
// data must hold at least stride*height bytes.
func WrapPixelBuffer(data []byte, width, height, stride int, format PixelFormat) *HeapPixelBuffer {
	return &HeapPixelBuffer{
		format: format,
		width:  width,
		height: height,
		stride: stride,
		data:   data,
	}
}

func (b *HeapPixelBuffer) Format() PixelFormat { return b.format }
func (b *HeapPixelBuffer) Width() int          { return b.width }
func (b *HeapPixelBuffer) Height() int         { return b.height }
func (b *HeapPixelBuffer) BytesPerRow() int    { return b.stride }

// Pix returns the writable backing memory. Producers fill it before delivery.
func (b *HeapPixelBuffer) Pix() []byte { return b.data }

// Lock implements PixelBuffer.
func (b *HeapPixelBuffer) Lock() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reclaimed {
		return nil, fmt.Errorf("%w: memory reclaimed by producer", ErrBufferBusy)
	}
	b.locks++
	return b.data, nil
}

// Unlock implements PixelBuffer.
func (b *HeapPixelBuffer) Unlock() {
	b.mu.Lock()
	if b.locks > 0 {
		b.locks--
	}
	b.mu.Unlock()
}

// Locked reports whether the buffer currently holds at least one lock.
func (b *HeapPixelBuffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locks > 0
}

// Reclaim marks the memory as taken back by the producer; later Lock calls fail.
func (b *HeapPixelBuffer) Reclaim() {
	b.mu.Lock()
	b.reclaimed = true
	b.mu.Unlock()
}

// Release implements PixelBuffer. Pooled buffers go back to their pool.
func (b *HeapPixelBuffer) Release() {
	b.mu.Lock()
	b.reclaimed = false
	b.locks = 0
	pool := b.pool
	b.mu.Unlock()

	if pool != nil {
		pool.put(b)
	}
}

// BufferPool provides pooled allocation of same-shaped HeapPixelBuffers.
type BufferPool struct {
	pool sync.Pool

	width, height int
	stride        int
	format        PixelFormat
}

// NewBufferPool creates a pool of width x height buffers in the given format.
// A stride of 0 selects a tight stride.
func NewBufferPool(width, height int, format PixelFormat, stride int) (*BufferPool, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	if stride == 0 {
		stride = width * format.BytesPerPixel()
	}
	if stride < width*format.BytesPerPixel() {
		return nil, fmt.Errorf("%w: stride %d too small for %d %v pixels", ErrInvalidGeometry, stride, width, format)
	}

	p := &BufferPool{
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}
	p.pool.New = func() interface{} {
		return &HeapPixelBuffer{
			format: format,
			width:  width,
			height: height,
			stride: stride,
			data:   make([]byte, stride*height),
			pool:   p,
		}
	}
	return p, nil
}

// Get returns a buffer from the pool. Its contents are unspecified.
func (p *BufferPool) Get() *HeapPixelBuffer {
	return p.pool.Get().(*HeapPixelBuffer)
}

// Matches reports whether the pool produces buffers of the given shape.
func (p *BufferPool) Matches(width, height int, format PixelFormat, stride int) bool {
	return p.width == width && p.height == height && p.format == format && p.stride == stride
}

func (p *BufferPool) put(b *HeapPixelBuffer) {
	p.pool.Put(b)
}

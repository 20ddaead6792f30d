package framefeed

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// DataProvider is the backing memory reference of a ConvertedImage.
// It references bytes it does not own and runs its release callback once.
type DataProvider struct {
	mu      sync.RWMutex
	data    []byte
	release func(data []byte)
}

// NewDataProvider wraps data. release, which may be nil, runs on the first Release.
func NewDataProvider(data []byte, release func(data []byte)) *DataProvider {
	return &DataProvider{data: data, release: release}
}

// Bytes returns the backing bytes, or nil after Release.
func (p *DataProvider) Bytes() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data
}

// Size returns the number of backing bytes, or 0 after Release.
func (p *DataProvider) Size() int {
	return len(p.Bytes())
}

// Release drops the reference to the backing bytes.
func (p *DataProvider) Release() {
	p.mu.Lock()
	data, release := p.data, p.release
	p.data, p.release = nil, nil
	p.mu.Unlock()

	if release != nil {
		release(data)
	}
}

// ConvertedImage is a bitmap descriptor over 32-bit packed pixel memory.
//
// It implements image.Image by decoding pixels according to ByteOrder and
// AlphaInfo. The pixel memory is not copied: it stays valid until Release,
// after which the image decodes as transparent black.
type ConvertedImage struct {
	Width             int
	Height            int
	BitsPerComponent  int
	BitsPerPixel      int
	BytesPerRow       int
	ByteOrder         ByteOrder
	AlphaInfo         AlphaInfo
	ColorSpace        ColorSpace
	ShouldInterpolate bool
	Intent            RenderingIntent

	SourceFormat PixelFormat // Pixel format of the frame the image was built from
	Timestamp    int64       // Capture timestamp in nanoseconds
	Seq          uint64      // Arrival order of the source frame

	provider *DataProvider
}

// Convert builds a ConvertedImage over the locked buffer's memory.
//
// ARGB32 frames are described as big-endian 32-bit words and BGRA32 frames as
// little-endian ones; in both cases the most significant byte of the word is
// padding. Any other format returns an error wrapping ErrUnsupportedFormat.
// The image retains lb, so the caller may Release its own reference as soon
// as Convert returns.
func Convert(lb *LockedBuffer) (*ConvertedImage, error) {
	var order ByteOrder
	switch lb.Format() {
	case PixelFormatARGB32:
		order = ByteOrder32Big
	case PixelFormatBGRA32:
		order = ByteOrder32Little
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, lb.Format())
	}

	if err := lb.Retain(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackingFailure, err)
	}
	data := lb.Bytes()
	if len(data) != lb.BytesPerRow()*lb.Height() {
		lb.Release()
		return nil, fmt.Errorf("%w: window is %d bytes, want %d", ErrBackingFailure, len(data), lb.BytesPerRow()*lb.Height())
	}

	return &ConvertedImage{
		Width:             lb.Width(),
		Height:            lb.Height(),
		BitsPerComponent:  8,
		BitsPerPixel:      32,
		BytesPerRow:       lb.BytesPerRow(),
		ByteOrder:         order,
		AlphaInfo:         AlphaNoneSkipFirst,
		ColorSpace:        ColorSpaceDeviceRGB,
		ShouldInterpolate: true,
		Intent:            RenderingIntentDefault,
		SourceFormat:      lb.Format(),
		provider: NewDataProvider(data, func([]byte) {
			lb.Release()
		}),
	}, nil
}

// Provider returns the image's backing reference.
func (img *ConvertedImage) Provider() *DataProvider {
	return img.provider
}

// Empty reports whether the image covers no pixels.
func (img *ConvertedImage) Empty() bool {
	return img.Width == 0 || img.Height == 0
}

// Release drops the image's reference to the frame memory.
func (img *ConvertedImage) Release() {
	if img.provider != nil {
		img.provider.Release()
	}
}

// ColorModel implements image.Image.
func (img *ConvertedImage) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (img *ConvertedImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// At implements image.Image.
func (img *ConvertedImage) At(x, y int) color.Color {
	return img.RGBAAt(x, y)
}

// RGBAAt decodes the pixel at (x, y).
func (img *ConvertedImage) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(img.Bounds())) || img.provider == nil {
		return color.RGBA{}
	}
	data := img.provider.Bytes()
	if data == nil {
		return color.RGBA{}
	}
	i := y*img.BytesPerRow + x*4
	return decodePixel(data[i:i+4:i+4], img.ByteOrder, img.AlphaInfo)
}

// ToRGBA copies the image into a newly allocated *image.RGBA.
// It returns nil after Release.
func (img *ConvertedImage) ToRGBA() *image.RGBA {
	if img.provider == nil {
		return nil
	}
	data := img.provider.Bytes()
	if data == nil {
		return nil
	}

	out := image.NewRGBA(img.Bounds())
	for y := 0; y < img.Height; y++ {
		src := data[y*img.BytesPerRow:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			c := decodePixel(src[x*4:x*4+4], img.ByteOrder, img.AlphaInfo)
			dst[x*4+0] = c.R
			dst[x*4+1] = c.G
			dst[x*4+2] = c.B
			dst[x*4+3] = c.A
		}
	}
	return out
}

// decodePixel interprets 4 bytes as a 32-bit word in the given byte order and
// extracts the components according to the alpha layout.
func decodePixel(p []byte, order ByteOrder, alpha AlphaInfo) color.RGBA {
	var word uint32
	switch order {
	case ByteOrder32Little:
		word = uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
	default:
		word = uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
	}

	switch alpha {
	case AlphaNoneSkipFirst:
		return color.RGBA{R: uint8(word >> 16), G: uint8(word >> 8), B: uint8(word), A: 0xff}
	case AlphaNoneSkipLast:
		return color.RGBA{R: uint8(word >> 24), G: uint8(word >> 16), B: uint8(word >> 8), A: 0xff}
	case AlphaPremultipliedFirst:
		return color.RGBA{R: uint8(word >> 16), G: uint8(word >> 8), B: uint8(word), A: uint8(word >> 24)}
	case AlphaPremultipliedLast:
		return color.RGBA{R: uint8(word >> 24), G: uint8(word >> 16), B: uint8(word >> 8), A: uint8(word)}
	default:
		return color.RGBA{R: uint8(word >> 24), G: uint8(word >> 16), B: uint8(word >> 8), A: 0xff}
	}
}

// Core frame and bitmap descriptor types used across the framefeed package.
package framefeed

import "fmt"

// PixelFormat represents the pixel layout of a captured frame.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatARGB32                      // Packed X/A, R, G, B; 4 bytes per pixel
	PixelFormatBGRA32                      // Packed B, G, R, X/A; 4 bytes per pixel
	PixelFormatI420                        // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                        // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                       // Packed RGB, 3 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatARGB32:
		return "ARGB32"
	case PixelFormatBGRA32:
		return "BGRA32"
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	default:
		return "Unknown"
	}
}

// BytesPerPixel returns the packed pixel size, or 0 for planar and unknown formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatARGB32, PixelFormatBGRA32:
		return 4
	case PixelFormatRGB24:
		return 3
	default:
		return 0
	}
}

// Packed reports whether all pixel data lives in a single interleaved plane.
func (p PixelFormat) Packed() bool {
	return p.BytesPerPixel() > 0
}

// Pixel format type codes as reported by CoreVideo-style capture stacks.
const (
	pixelTypeARGB32 uint32 = 0x00000020 // kCVPixelFormatType_32ARGB
	pixelTypeRGB24  uint32 = 0x00000018 // kCVPixelFormatType_24RGB
	pixelTypeBGRA32 uint32 = 'B'<<24 | 'G'<<16 | 'R'<<8 | 'A'
	pixelTypeI420   uint32 = 'y'<<24 | '4'<<16 | '2'<<8 | '0'
	pixelTypeNV12V  uint32 = '4'<<24 | '2'<<16 | '0'<<8 | 'v'
	pixelTypeNV12F  uint32 = '4'<<24 | '2'<<16 | '0'<<8 | 'f'
)

// PixelFormatFromType maps a native pixel format type code to a PixelFormat.
// Unrecognised codes map to PixelFormatUnknown.
func PixelFormatFromType(code uint32) PixelFormat {
	switch code {
	case pixelTypeARGB32:
		return PixelFormatARGB32
	case pixelTypeBGRA32:
		return PixelFormatBGRA32
	case pixelTypeI420:
		return PixelFormatI420
	case pixelTypeNV12V, pixelTypeNV12F:
		return PixelFormatNV12
	case pixelTypeRGB24:
		return PixelFormatRGB24
	default:
		return PixelFormatUnknown
	}
}

// Type returns the native pixel format type code for p, or 0 if there is none.
func (p PixelFormat) Type() uint32 {
	switch p {
	case PixelFormatARGB32:
		return pixelTypeARGB32
	case PixelFormatBGRA32:
		return pixelTypeBGRA32
	case PixelFormatI420:
		return pixelTypeI420
	case PixelFormatNV12:
		return pixelTypeNV12V
	case PixelFormatRGB24:
		return pixelTypeRGB24
	default:
		return 0
	}
}

// FourCC renders a type code as a four character string ("BGRA", "420v").
// Small numeric codes such as the ARGB32 type are rendered in hex.
func FourCC(code uint32) string {
	b := []byte{byte(code >> 24), byte(code >> 16), byte(code >> 8), byte(code)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", code)
		}
	}
	return string(b)
}

// ByteOrder describes how the 4 bytes of a 32-bit pixel word are laid out in memory.
type ByteOrder int

const (
	ByteOrderDefault  ByteOrder = iota // Byte-addressed components, first byte first
	ByteOrder32Big                     // 32-bit words stored most significant byte first
	ByteOrder32Little                  // 32-bit words stored least significant byte first
)

func (b ByteOrder) String() string {
	switch b {
	case ByteOrder32Big:
		return "32Big"
	case ByteOrder32Little:
		return "32Little"
	default:
		return "Default"
	}
}

// AlphaInfo describes the alpha channel placement of a 32-bit pixel word.
type AlphaInfo int

const (
	AlphaNone               AlphaInfo = iota // No alpha, no padding
	AlphaNoneSkipFirst                       // Most significant byte is padding, pixel is opaque
	AlphaNoneSkipLast                        // Least significant byte is padding, pixel is opaque
	AlphaPremultipliedFirst                  // Premultiplied alpha in the most significant byte
	AlphaPremultipliedLast                   // Premultiplied alpha in the least significant byte
)

func (a AlphaInfo) String() string {
	switch a {
	case AlphaNone:
		return "None"
	case AlphaNoneSkipFirst:
		return "NoneSkipFirst"
	case AlphaNoneSkipLast:
		return "NoneSkipLast"
	case AlphaPremultipliedFirst:
		return "PremultipliedFirst"
	case AlphaPremultipliedLast:
		return "PremultipliedLast"
	default:
		return "Unknown"
	}
}

// ColorSpace identifies the color space the components are expressed in.
type ColorSpace int

const (
	ColorSpaceDeviceRGB ColorSpace = iota
)

func (c ColorSpace) String() string {
	if c == ColorSpaceDeviceRGB {
		return "DeviceRGB"
	}
	return "Unknown"
}

// RenderingIntent is a display hint for out-of-gamut color mapping.
type RenderingIntent int

const (
	RenderingIntentDefault RenderingIntent = iota
	RenderingIntentPerceptual
)

// RawFrame is one hardware-delivered frame before conversion.
//
// The Buffer reference is owned by whoever holds the RawFrame. Passing a
// RawFrame to a FrameCallback or FrameChannel.Deliver transfers ownership;
// the new owner releases the buffer exactly once.
type RawFrame struct {
	Buffer    PixelBuffer // Hardware-backed pixel memory
	Timestamp int64       // Capture timestamp in nanoseconds
	Seq       uint64      // Arrival order, assigned by FrameChannel
}

// Release hands the frame's buffer back to its producer.
func (f RawFrame) Release() {
	if f.Buffer != nil {
		f.Buffer.Release()
	}
}

// FrameCallback is called once per captured frame (push mode).
type FrameCallback func(frame RawFrame)

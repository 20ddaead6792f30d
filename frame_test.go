package framefeed

import (
	"testing"
)

func TestPixelFormat_String(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatARGB32, "ARGB32"},
		{PixelFormatBGRA32, "BGRA32"},
		{PixelFormatI420, "I420"},
		{PixelFormatNV12, "NV12"},
		{PixelFormatRGB24, "RGB24"},
		{PixelFormat(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("PixelFormat.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPixelFormat_BytesPerPixel(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   int
		packed bool
	}{
		{PixelFormatARGB32, 4, true},
		{PixelFormatBGRA32, 4, true},
		{PixelFormatRGB24, 3, true},
		{PixelFormatI420, 0, false},
		{PixelFormatNV12, 0, false},
		{PixelFormatUnknown, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BytesPerPixel(); got != tt.want {
				t.Errorf("BytesPerPixel() = %v, want %v", got, tt.want)
			}
			if got := tt.format.Packed(); got != tt.packed {
				t.Errorf("Packed() = %v, want %v", got, tt.packed)
			}
		})
	}
}

func TestPixelFormatFromType(t *testing.T) {
	tests := []struct {
		code uint32
		want PixelFormat
	}{
		{0x00000020, PixelFormatARGB32},
		{'B'<<24 | 'G'<<16 | 'R'<<8 | 'A', PixelFormatBGRA32},
		{'y'<<24 | '4'<<16 | '2'<<8 | '0', PixelFormatI420},
		{'4'<<24 | '2'<<16 | '0'<<8 | 'v', PixelFormatNV12},
		{'4'<<24 | '2'<<16 | '0'<<8 | 'f', PixelFormatNV12},
		{0x00000018, PixelFormatRGB24},
		{0, PixelFormatUnknown},
		{0xdeadbeef, PixelFormatUnknown},
	}

	for _, tt := range tests {
		t.Run(FourCC(tt.code), func(t *testing.T) {
			if got := PixelFormatFromType(tt.code); got != tt.want {
				t.Errorf("PixelFormatFromType(%#x) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestPixelFormat_TypeRoundTrip(t *testing.T) {
	for _, f := range []PixelFormat{PixelFormatARGB32, PixelFormatBGRA32, PixelFormatI420, PixelFormatNV12, PixelFormatRGB24} {
		if got := PixelFormatFromType(f.Type()); got != f {
			t.Errorf("PixelFormatFromType(%v.Type()) = %v", f, got)
		}
	}
	if PixelFormatUnknown.Type() != 0 {
		t.Errorf("Unknown.Type() = %#x, want 0", PixelFormatUnknown.Type())
	}
}

func TestFourCC(t *testing.T) {
	if got := FourCC(PixelFormatBGRA32.Type()); got != "BGRA" {
		t.Errorf("FourCC(BGRA32) = %q, want BGRA", got)
	}
	if got := FourCC(PixelFormatARGB32.Type()); got != "0x00000020" {
		t.Errorf("FourCC(ARGB32) = %q, want 0x00000020", got)
	}
}

func TestRawFrame_Release(t *testing.T) {
	RawFrame{}.Release() // no buffer, no panic

	buf := newTrackingBuffer(PixelFormatBGRA32, 2, 2, 8)
	RawFrame{Buffer: buf}.Release()
	if got := buf.releaseCount(); got != 1 {
		t.Errorf("releases = %d, want 1", got)
	}
}

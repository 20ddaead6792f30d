package framefeed

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

const (
	// MaxCanvasDimension is the largest accepted canvas side in pixels.
	MaxCanvasDimension = 16384

	// MaxCanvasBytes caps the pixel memory of a single canvas (256 MiB).
	MaxCanvasBytes = 256 << 20
)

// Canvas is a writable RGBA bitmap for overlays and annotations, independent
// of any captured frame. Pixels are 4 bytes, alpha premultiplied and stored
// last.
type Canvas struct {
	img       *image.RGBA
	antialias bool
}

// NewBlankCanvas allocates a transparent width x height canvas with
// antialiasing disabled. Zero, negative or oversized requests return an
// error wrapping ErrCanvasSize.
func NewBlankCanvas(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrCanvasSize, width, height)
	}
	if width > MaxCanvasDimension || height > MaxCanvasDimension {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d per side", ErrCanvasSize, width, height, MaxCanvasDimension)
	}
	if size := int64(width) * int64(height) * 4; size > MaxCanvasBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrCanvasSize, size, MaxCanvasBytes)
	}
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

func (c *Canvas) Width() int           { return c.img.Rect.Dx() }
func (c *Canvas) Height() int          { return c.img.Rect.Dy() }
func (c *Canvas) BytesPerRow() int     { return c.img.Stride }
func (c *Canvas) AlphaInfo() AlphaInfo { return AlphaPremultipliedLast }

// Image returns the canvas pixels. Writes through it are visible on the canvas.
func (c *Canvas) Image() *image.RGBA { return c.img }

// AllowsAntialiasing reports whether scaled drawing is smoothed.
func (c *Canvas) AllowsAntialiasing() bool { return c.antialias }

// SetAllowsAntialiasing toggles smoothing for DrawImage.
func (c *Canvas) SetAllowsAntialiasing(allow bool) { c.antialias = allow }

// Clear resets every pixel to transparent black.
func (c *Canvas) Clear() {
	clear(c.img.Pix)
}

// Fill paints r with col, replacing what was there.
func (c *Canvas) Fill(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

// DrawImage composites src over the dst rectangle, scaling src to fit.
// With antialiasing disabled pixels are sampled nearest-neighbour.
func (c *Canvas) DrawImage(dst image.Rectangle, src image.Image) {
	var scaler draw.Interpolator = draw.NearestNeighbor
	if c.antialias {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(c.img, dst, src, src.Bounds(), draw.Over, nil)
}

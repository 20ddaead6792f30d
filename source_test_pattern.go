package framefeed

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternNoise:
		return "Noise"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// ParsePatternType returns the PatternType with the given String name.
func ParsePatternType(name string) (PatternType, error) {
	for p := PatternColorBars; p <= PatternMovingBox; p++ {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown test pattern %q", name)
}

func patternTypeDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if s, ok := data.(string); ok && to == reflect.TypeOf(PatternColorBars) {
		return ParsePatternType(s)
	}
	return data, nil
}

// TestPatternConfig configures a test pattern source.
type TestPatternConfig struct {
	Width    int         `mapstructure:"width"`    // Frame width (default: 1280)
	Height   int         `mapstructure:"height"`   // Frame height (default: 720)
	FPS      int         `mapstructure:"fps"`      // Frames per second (default: 30)
	Pattern  PatternType `mapstructure:"pattern"`  // Pattern type (default: ColorBars)
	Format   PixelFormat `mapstructure:"format"`   // ARGB32 or BGRA32 (default: BGRA32)
	Padding  int         `mapstructure:"padding"`  // Extra bytes at the end of each row
	Animated bool        `mapstructure:"animated"` // Animate static patterns (MovingBox/Noise always animate)

	// For SolidColor pattern
	SolidR uint8 `mapstructure:"solid_r"`
	SolidG uint8 `mapstructure:"solid_g"`
	SolidB uint8 `mapstructure:"solid_b"`

	// For Checkerboard pattern
	CheckerSize int `mapstructure:"checker_size"` // Size of each checker square (default: 32)

	LoggerFactory logging.LoggerFactory `mapstructure:"-"`
}

// DefaultTestPatternConfig returns a default test pattern configuration.
func DefaultTestPatternConfig() TestPatternConfig {
	return TestPatternConfig{
		Width:       1280,
		Height:      720,
		FPS:         30,
		Pattern:     PatternColorBars,
		Format:      PixelFormatBGRA32,
		CheckerSize: 32,
	}
}

// TestPatternSource generates synthetic packed 32-bit frames. Each frame is
// a pooled HeapPixelBuffer handed to the callback, which owns it.
type TestPatternSource struct {
	id     string
	config TestPatternConfig
	log    logging.LeveledLogger
	pool   *BufferPool

	// template holds the current pattern; frames are copies of it.
	template []byte
	stride   int

	frameDuration time.Duration
	frameCount    uint64
	startTime     time.Time
	rngState      uint64

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	doneCh   chan struct{}
	callback FrameCallback

	mu sync.RWMutex
}

// NewTestPatternSource creates a new test pattern source.
func NewTestPatternSource(config TestPatternConfig) (*TestPatternSource, error) {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = 32
	}
	if config.Format == PixelFormatUnknown {
		config.Format = PixelFormatBGRA32
	}
	if config.Format != PixelFormatARGB32 && config.Format != PixelFormatBGRA32 {
		return nil, fmt.Errorf("%w: test pattern cannot produce %v", ErrUnsupportedFormat, config.Format)
	}
	if config.Padding < 0 {
		return nil, fmt.Errorf("%w: negative row padding %d", ErrInvalidGeometry, config.Padding)
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	stride := config.Width*4 + config.Padding
	pool, err := NewBufferPool(config.Width, config.Height, config.Format, stride)
	if err != nil {
		return nil, err
	}

	s := &TestPatternSource{
		id:            uuid.New().String(),
		config:        config,
		log:           config.LoggerFactory.NewLogger("framefeed-source"),
		pool:          pool,
		template:      make([]byte, stride*config.Height),
		stride:        stride,
		frameDuration: time.Second / time.Duration(config.FPS),
		rngState:      uint64(time.Now().UnixNano()) | 1,
	}

	s.generatePattern(0)

	return s, nil
}

// ID returns the source identifier.
func (s *TestPatternSource) ID() string { return s.id }

// Start begins generating frames.
func (s *TestPatternSource) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("source already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	s.running.Store(true)
	s.startTime = time.Now()
	s.frameCount = 0

	go s.generateLoop()

	s.log.Debugf("test pattern %s started: %v %dx%d@%d %v", s.id, s.config.Pattern,
		s.config.Width, s.config.Height, s.config.FPS, s.config.Format)
	return nil
}

// Stop stops generating frames and waits for the goroutine to exit.
func (s *TestPatternSource) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}

	if s.doneCh != nil {
		<-s.doneCh
	}

	return nil
}

// Close closes the source.
func (s *TestPatternSource) Close() error {
	return s.Stop()
}

// SetCallback sets the frame callback.
func (s *TestPatternSource) SetCallback(cb FrameCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Config returns the source configuration.
func (s *TestPatternSource) Config() SourceConfig {
	return SourceConfig{
		Width:      s.config.Width,
		Height:     s.config.Height,
		FPS:        s.config.FPS,
		Format:     s.config.Format,
		SourceType: SourceTypeTestPattern,
	}
}

// NextFrame renders the next frame synchronously. The caller owns it.
// It must not be used while the source is running.
func (s *TestPatternSource) NextFrame() RawFrame {
	s.frameCount++
	return s.renderFrame(int64(s.frameCount) * s.frameDuration.Nanoseconds())
}

func (s *TestPatternSource) renderFrame(timestamp int64) RawFrame {
	if s.config.Animated || s.config.Pattern == PatternMovingBox || s.config.Pattern == PatternNoise {
		s.generatePattern(s.frameCount)
	}

	buf := s.pool.Get()
	copy(buf.Pix(), s.template)
	return RawFrame{Buffer: buf, Timestamp: timestamp}
}

func (s *TestPatternSource) generateLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.frameCount++
			frame := s.renderFrame(time.Since(s.startTime).Nanoseconds())

			s.mu.RLock()
			cb := s.callback
			s.mu.RUnlock()

			if cb != nil {
				cb(frame)
			} else {
				frame.Release()
			}
		}
	}
}

func (s *TestPatternSource) generatePattern(frameNum uint64) {
	switch s.config.Pattern {
	case PatternGradient:
		s.generateGradient(frameNum)
	case PatternCheckerboard:
		s.generateCheckerboard(frameNum)
	case PatternSolidColor:
		s.fill(s.config.SolidR, s.config.SolidG, s.config.SolidB)
	case PatternNoise:
		s.generateNoise()
	case PatternMovingBox:
		s.generateMovingBox(frameNum)
	default:
		s.generateColorBars(frameNum)
	}
}

// setPixel writes one opaque pixel in the source's byte layout. Padding
// bytes are left zero.
func (s *TestPatternSource) setPixel(x, y int, r, g, b uint8) {
	i := y*s.stride + x*4
	p := s.template[i : i+4 : i+4]
	if s.config.Format == PixelFormatARGB32 {
		p[0], p[1], p[2], p[3] = 0xff, r, g, b
	} else {
		p[0], p[1], p[2], p[3] = b, g, r, 0xff
	}
}

func (s *TestPatternSource) fill(r, g, b uint8) {
	for y := 0; y < s.config.Height; y++ {
		for x := 0; x < s.config.Width; x++ {
			s.setPixel(x, y, r, g, b)
		}
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (s *TestPatternSource) generateColorBars(frameNum uint64) {
	w, h := s.config.Width, s.config.Height
	barWidth := max(w/8, 1)
	shift := 0
	if s.config.Animated {
		shift = int(frameNum % uint64(max(w, 1)))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			barIdx := min(((x+shift)%w)/barWidth, 7)
			rgb := colorBarsRGB[barIdx]
			s.setPixel(x, y, rgb[0], rgb[1], rgb[2])
		}
	}
}

func (s *TestPatternSource) generateGradient(frameNum uint64) {
	w, h := s.config.Width, s.config.Height
	offset := 0
	if s.config.Animated {
		offset = int(frameNum % 256)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*255)/w + offset)
			s.setPixel(x, y, v, v, v)
		}
	}
}

func (s *TestPatternSource) generateCheckerboard(frameNum uint64) {
	w, h := s.config.Width, s.config.Height
	size := s.config.CheckerSize
	phase := 0
	if s.config.Animated {
		phase = int(frameNum % 2)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/size)+(y/size)+phase)%2 == 0 {
				s.setPixel(x, y, 235, 235, 235)
			} else {
				s.setPixel(x, y, 16, 16, 16)
			}
		}
	}
}

func (s *TestPatternSource) generateNoise() {
	// xorshift64
	for y := 0; y < s.config.Height; y++ {
		for x := 0; x < s.config.Width; x++ {
			s.rngState ^= s.rngState << 13
			s.rngState ^= s.rngState >> 7
			s.rngState ^= s.rngState << 17
			v := uint8(s.rngState)
			s.setPixel(x, y, v, v, v)
		}
	}
}

func (s *TestPatternSource) generateMovingBox(frameNum uint64) {
	w, h := s.config.Width, s.config.Height

	s.fill(16, 16, 16)

	// The box moves in a circle around the frame centre.
	boxSize := max(min(w, h)/8, 1)
	radius := float64(min(w, h)) / 4

	angle := float64(frameNum) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			s.setPixel(x, y, 235, 235, 235)
		}
	}
}

func init() {
	RegisterFrameSource(SourceTypeTestPattern, func(config interface{}, loggerFactory logging.LoggerFactory) (FrameSource, error) {
		cfg := DefaultTestPatternConfig()
		if err := decodeSourceConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.LoggerFactory == nil {
			cfg.LoggerFactory = loggerFactory
		}
		return NewTestPatternSource(cfg)
	})
}

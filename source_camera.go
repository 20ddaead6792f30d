package framefeed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
)

// CameraConfig configures a camera frame source.
type CameraConfig struct {
	DeviceID    string      `mapstructure:"device_id"` // Device ID (empty for default camera)
	Width       int         `mapstructure:"width"`     // Requested frame width (default: 1280)
	Height      int         `mapstructure:"height"`    // Requested frame height (default: 720)
	FPS         int         `mapstructure:"fps"`       // Requested frames per second (default: 30)
	PixelFormat PixelFormat `mapstructure:"format"`    // Requested pixel format (default: BGRA32)

	LoggerFactory logging.LoggerFactory `mapstructure:"-"`
}

// DefaultCameraConfig returns a default camera configuration.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Width:       1280,
		Height:      720,
		FPS:         30,
		PixelFormat: PixelFormatBGRA32,
	}
}

// CameraSource delivers frames from a capture device track.
//
// Frames arrive on the capture thread and are forwarded as they are, without
// copying or scaling; the device may not honour the requested size or format
// and the converter handles whatever arrives.
type CameraSource struct {
	id     string
	config CameraConfig
	log    logging.LeveledLogger
	track  VideoTrack

	startTime time.Time
	frames    atomic.Uint64

	// running is read by the capture thread under mu so that Stop can wait
	// out an in-flight delivery.
	running  bool
	callback FrameCallback
	mu       sync.RWMutex
}

func (c *CameraConfig) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.PixelFormat == PixelFormatUnknown {
		c.PixelFormat = PixelFormatBGRA32
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// NewCameraSource opens a camera through the registered device provider.
func NewCameraSource(config CameraConfig) (*CameraSource, error) {
	config.applyDefaults()

	track, err := OpenVideoDevice(context.Background(), VideoConstraints{
		DeviceID:    config.DeviceID,
		Width:       config.Width,
		Height:      config.Height,
		FrameRate:   config.FPS,
		PixelFormat: config.PixelFormat,

		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	return NewCameraSourceFromTrack(track, config), nil
}

// NewCameraSourceFromTrack wraps an already opened track. The source owns the
// track and closes it on Close.
func NewCameraSourceFromTrack(track VideoTrack, config CameraConfig) *CameraSource {
	config.applyDefaults()

	s := &CameraSource{
		id:     uuid.New().String(),
		config: config,
		log:    config.LoggerFactory.NewLogger("framefeed-source"),
		track:  track,
	}
	track.OnFrame(s.forward)
	track.OnEnded(func() {
		s.log.Infof("camera %s (%s) ended", s.id, track.Label())
	})

	settings := track.Settings()
	if settings.PixelFormat != PixelFormatUnknown && settings.PixelFormat != config.PixelFormat {
		s.log.Warnf("camera %s delivers %v, requested %v", track.Label(), settings.PixelFormat, config.PixelFormat)
	}
	return s
}

// ID returns the source identifier.
func (s *CameraSource) ID() string { return s.id }

// Track returns the underlying device track.
func (s *CameraSource) Track() VideoTrack { return s.track }

// Start begins forwarding frames.
func (s *CameraSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("source already running")
	}
	if s.track.State() == TrackStateEnded {
		return fmt.Errorf("camera track %s has ended", s.track.ID())
	}
	s.running = true
	s.startTime = time.Now()
	s.frames.Store(0)

	s.log.Debugf("camera %s started (%s)", s.id, s.track.Label())
	return nil
}

// Stop stops forwarding frames. Frames captured afterwards are released.
func (s *CameraSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.running = false
		s.log.Debugf("camera %s stopped after %d frames", s.id, s.frames.Load())
	}
	return nil
}

// Close stops the source and closes the device track.
func (s *CameraSource) Close() error {
	var result *multierror.Error
	if err := s.Stop(); err != nil {
		result = multierror.Append(result, err)
	}
	if s.track != nil {
		if err := s.track.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close camera track: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// SetCallback sets the frame callback.
func (s *CameraSource) SetCallback(cb FrameCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Config returns the source configuration. Width, height and format reflect
// the device's actual settings once it reports them.
func (s *CameraSource) Config() SourceConfig {
	cfg := SourceConfig{
		Width:      s.config.Width,
		Height:     s.config.Height,
		FPS:        s.config.FPS,
		Format:     s.config.PixelFormat,
		SourceType: SourceTypeCamera,
	}
	settings := s.track.Settings()
	if settings.Width > 0 && settings.Height > 0 {
		cfg.Width, cfg.Height = settings.Width, settings.Height
	}
	if settings.FrameRate > 0 {
		cfg.FPS = settings.FrameRate
	}
	if settings.PixelFormat != PixelFormatUnknown {
		cfg.Format = settings.PixelFormat
	}
	return cfg
}

// forward runs on the capture thread.
func (s *CameraSource) forward(frame RawFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running || s.callback == nil {
		frame.Release()
		return
	}
	s.frames.Add(1)
	if frame.Timestamp == 0 {
		frame.Timestamp = time.Since(s.startTime).Nanoseconds()
	}
	s.callback(frame)
}

// ListCameras returns a list of available camera devices.
func ListCameras(ctx context.Context) ([]DeviceInfo, error) {
	provider := GetDeviceProvider()
	if provider == nil {
		return nil, fmt.Errorf("no device provider registered: %w", ErrNotSupported)
	}
	return provider.ListVideoDevices(ctx)
}

func init() {
	RegisterFrameSource(SourceTypeCamera, func(config interface{}, loggerFactory logging.LoggerFactory) (FrameSource, error) {
		cfg := DefaultCameraConfig()
		if err := decodeSourceConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.LoggerFactory == nil {
			cfg.LoggerFactory = loggerFactory
		}
		return NewCameraSource(cfg)
	})
}

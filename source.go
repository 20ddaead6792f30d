package framefeed

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pion/logging"
)

// SourceType identifies the type of frame source.
type SourceType int

const (
	SourceTypeUnknown     SourceType = iota
	SourceTypeCamera                 // Camera capture (platform-specific)
	SourceTypeTestPattern            // Synthetic test pattern generator
	SourceTypeCustom                 // User-provided source
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeCamera:
		return "Camera"
	case SourceTypeTestPattern:
		return "TestPattern"
	case SourceTypeCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// ParseSourceType returns the SourceType with the given String name.
func ParseSourceType(name string) (SourceType, error) {
	for _, t := range []SourceType{SourceTypeCamera, SourceTypeTestPattern, SourceTypeCustom} {
		if t.String() == name {
			return t, nil
		}
	}
	return SourceTypeUnknown, fmt.Errorf("unknown source type %q", name)
}

func (s *SourceType) UnmarshalText(text []byte) error {
	t, err := ParseSourceType(string(text))
	if err != nil {
		return err
	}
	*s = t
	return nil
}

func (s SourceType) MarshalText() ([]byte, error) {
	if s == SourceTypeUnknown {
		return nil, fmt.Errorf("unknown source type: %d", int(s))
	}
	return []byte(s.String()), nil
}

// SourceConfig describes a frame source's configuration.
type SourceConfig struct {
	Width      int         // Frame width in pixels
	Height     int         // Frame height in pixels
	FPS        int         // Frames per second
	Format     PixelFormat // Pixel format of delivered frames
	SourceType SourceType  // Type of source
}

// FrameSource produces raw frames and pushes them to a callback.
type FrameSource interface {
	io.Closer

	// ID returns the unique identifier for this source.
	ID() string

	// Start begins capture/generation.
	Start(ctx context.Context) error

	// Stop halts capture/generation. No callback runs after Stop returns.
	Stop() error

	// SetCallback sets the frame callback. The callback owns each frame it
	// receives and must not block for long.
	SetCallback(cb FrameCallback)

	// Config returns the source configuration.
	Config() SourceConfig
}

// FrameSourceFactory creates a frame source from a configuration value. The
// value is either the source's typed config (or a pointer to it), a
// map[string]interface{} decoded onto the defaults, or nil for defaults.
// loggerFactory, when non-nil, is used unless the config carries its own.
type FrameSourceFactory func(config interface{}, loggerFactory logging.LoggerFactory) (FrameSource, error)

// sourceRegistry holds registered source factories.
type sourceRegistry struct {
	factories map[SourceType]FrameSourceFactory
	mu        sync.RWMutex
}

var globalSourceRegistry = &sourceRegistry{
	factories: make(map[SourceType]FrameSourceFactory),
}

// RegisterFrameSource registers a frame source factory for a source type.
func RegisterFrameSource(stype SourceType, factory FrameSourceFactory) {
	globalSourceRegistry.mu.Lock()
	defer globalSourceRegistry.mu.Unlock()
	globalSourceRegistry.factories[stype] = factory
}

// CreateFrameSource creates a frame source of the specified type.
func CreateFrameSource(stype SourceType, config interface{}) (FrameSource, error) {
	return CreateFrameSourceWithLogger(stype, config, nil)
}

// CreateFrameSourceWithLogger creates a frame source of the specified type
// whose loggers come from loggerFactory.
func CreateFrameSourceWithLogger(stype SourceType, config interface{}, loggerFactory logging.LoggerFactory) (FrameSource, error) {
	globalSourceRegistry.mu.RLock()
	factory, ok := globalSourceRegistry.factories[stype]
	globalSourceRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("frame source type not available: %v", stype)
	}

	return factory(config, loggerFactory)
}

// IsFrameSourceAvailable checks if a frame source type is available.
func IsFrameSourceAvailable(stype SourceType) bool {
	globalSourceRegistry.mu.RLock()
	defer globalSourceRegistry.mu.RUnlock()
	_, ok := globalSourceRegistry.factories[stype]
	return ok
}

// AvailableFrameSources returns a list of available frame source types.
func AvailableFrameSources() []SourceType {
	globalSourceRegistry.mu.RLock()
	defer globalSourceRegistry.mu.RUnlock()

	types := make([]SourceType, 0, len(globalSourceRegistry.factories))
	for t := range globalSourceRegistry.factories {
		types = append(types, t)
	}
	return types
}

// decodeSourceConfig resolves a factory config value onto dst, which already
// holds the defaults. Maps are decoded with mapstructure; pixel formats may be
// given by name ("BGRA32") and numbers as strings.
func decodeSourceConfig[T any](config interface{}, dst *T) error {
	switch c := config.(type) {
	case nil:
		return nil
	case T:
		*dst = c
		return nil
	case *T:
		if c != nil {
			*dst = *c
		}
		return nil
	case map[string]interface{}:
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           dst,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				pixelFormatDecodeHook,
				patternTypeDecodeHook,
			),
		})
		if err != nil {
			return err
		}
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("decode source config: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported source config type %T", config)
	}
}

// ParsePixelFormat returns the PixelFormat with the given String name.
func ParsePixelFormat(name string) (PixelFormat, error) {
	for _, f := range []PixelFormat{PixelFormatARGB32, PixelFormatBGRA32, PixelFormatI420, PixelFormatNV12, PixelFormatRGB24} {
		if f.String() == name {
			return f, nil
		}
	}
	return PixelFormatUnknown, fmt.Errorf("unknown pixel format %q", name)
}

func pixelFormatDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if s, ok := data.(string); ok && to == reflect.TypeOf(PixelFormatUnknown) {
		return ParsePixelFormat(s)
	}
	return data, nil
}

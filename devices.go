package framefeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// DeviceKind represents the type of capture device.
type DeviceKind int

const (
	DeviceKindVideoInput DeviceKind = iota // Camera
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	DeviceID string     // Unique identifier for the device
	GroupID  string     // Group identifier (devices with same groupID belong together)
	Kind     DeviceKind // Device type
	Label    string     // Human-readable device name
}

// VideoConstraints describes the capture a caller asks a device for.
// Zero values mean "device default".
type VideoConstraints struct {
	DeviceID    string      // Specific device ID
	Width       int         // Requested width
	Height      int         // Requested height
	FrameRate   int         // Requested framerate
	PixelFormat PixelFormat // Requested pixel format (default: BGRA32)

	// LoggerFactory creates the opened track's logger (default: the provider's).
	LoggerFactory logging.LoggerFactory
}

// DeviceProvider is implemented by platform-specific capture backends.
type DeviceProvider interface {
	// ListVideoDevices returns available video input devices.
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)

	// OpenVideoDevice opens a video input device.
	OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error)
}

// deviceRegistry holds the registered device provider.
type deviceRegistry struct {
	provider DeviceProvider
	mu       sync.RWMutex
}

var globalDeviceRegistry = &deviceRegistry{}

// RegisterDeviceProvider registers a platform-specific device provider.
func RegisterDeviceProvider(provider DeviceProvider) {
	globalDeviceRegistry.mu.Lock()
	defer globalDeviceRegistry.mu.Unlock()
	globalDeviceRegistry.provider = provider
}

// GetDeviceProvider returns the registered device provider, or nil.
func GetDeviceProvider() DeviceProvider {
	globalDeviceRegistry.mu.RLock()
	defer globalDeviceRegistry.mu.RUnlock()
	return globalDeviceRegistry.provider
}

// OpenVideoDevice opens the device named by constraints.DeviceID through the
// registered provider, or the first listed device when no ID is given.
func OpenVideoDevice(ctx context.Context, constraints VideoConstraints) (VideoTrack, error) {
	provider := GetDeviceProvider()
	if provider == nil {
		return nil, fmt.Errorf("no device provider registered: %w", ErrNotSupported)
	}

	if constraints.PixelFormat == PixelFormatUnknown {
		constraints.PixelFormat = PixelFormatBGRA32
	}

	deviceID := constraints.DeviceID
	if deviceID == "" {
		devices, err := provider.ListVideoDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list video devices: %w", err)
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no video devices available")
		}
		deviceID = devices[0].DeviceID
	}

	track, err := provider.OpenVideoDevice(ctx, deviceID, &constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to open video device %s: %w", deviceID, err)
	}
	return track, nil
}

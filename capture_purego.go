//go:build (darwin || linux) && !nodevices

package framefeed

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
)

// Camera permission status values reported by the capture library.
const (
	CapturePermissionNotDetermined = 0
	CapturePermissionRestricted    = 1
	CapturePermissionDenied        = 2
	CapturePermissionAuthorized    = 3
)

var (
	captureOnce    sync.Once
	captureHandle  uintptr
	captureInitErr error
	captureLoaded  bool
)

// libstream_capture function pointers
var (
	streamCaptureDeviceCount       func() int32
	streamCaptureDeviceID          func(index int32) uintptr
	streamCaptureDeviceLabel       func(index int32) uintptr
	streamCaptureFreeString        func(ptr uintptr)
	streamCapturePermissionStatus  func() int32
	streamCaptureRequestPermission func()
	streamCaptureCreate            func(deviceID uintptr, width, height, fps int32, pixelType uint32, callback, userData uintptr) uint64
	streamCaptureStart             func(handle uint64) int32
	streamCaptureStop              func(handle uint64) int32
	streamCaptureDestroy           func(handle uint64)
	streamCaptureGetWidth          func(handle uint64) int32
	streamCaptureGetHeight         func(handle uint64) int32
	streamCaptureGetFPS            func(handle uint64) int32
	streamCaptureGetPixelType      func(handle uint64) uint32
	streamCaptureGetError          func() uintptr
)

func captureLibName() string {
	if runtime.GOOS == "darwin" {
		return "libstream_capture.dylib"
	}
	return "libstream_capture.so"
}

func initCapture() {
	captureOnce.Do(func() {
		libName := captureLibName()
		libPath := findLibrary(libName)
		if libPath == "" {
			captureInitErr = fmt.Errorf("%s not found", libName)
			return
		}

		var err error
		captureHandle, err = purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			captureInitErr = fmt.Errorf("failed to load %s: %w", libPath, err)
			return
		}

		purego.RegisterLibFunc(&streamCaptureDeviceCount, captureHandle, "stream_capture_device_count")
		purego.RegisterLibFunc(&streamCaptureDeviceID, captureHandle, "stream_capture_device_id")
		purego.RegisterLibFunc(&streamCaptureDeviceLabel, captureHandle, "stream_capture_device_label")
		purego.RegisterLibFunc(&streamCaptureFreeString, captureHandle, "stream_capture_free_string")
		purego.RegisterLibFunc(&streamCapturePermissionStatus, captureHandle, "stream_capture_permission_status")
		purego.RegisterLibFunc(&streamCaptureRequestPermission, captureHandle, "stream_capture_request_permission")
		purego.RegisterLibFunc(&streamCaptureCreate, captureHandle, "stream_capture_create")
		purego.RegisterLibFunc(&streamCaptureStart, captureHandle, "stream_capture_start")
		purego.RegisterLibFunc(&streamCaptureStop, captureHandle, "stream_capture_stop")
		purego.RegisterLibFunc(&streamCaptureDestroy, captureHandle, "stream_capture_destroy")
		purego.RegisterLibFunc(&streamCaptureGetWidth, captureHandle, "stream_capture_get_width")
		purego.RegisterLibFunc(&streamCaptureGetHeight, captureHandle, "stream_capture_get_height")
		purego.RegisterLibFunc(&streamCaptureGetFPS, captureHandle, "stream_capture_get_fps")
		purego.RegisterLibFunc(&streamCaptureGetPixelType, captureHandle, "stream_capture_get_pixel_type")
		purego.RegisterLibFunc(&streamCaptureGetError, captureHandle, "stream_capture_get_error")

		captureLoaded = true
	})
}

// IsNativeCaptureAvailable returns true if the native capture library is available.
func IsNativeCaptureAvailable() bool {
	initCapture()
	return captureLoaded
}

func lastCaptureError() string {
	if ptr := streamCaptureGetError(); ptr != 0 {
		return goStringFromPtr(ptr)
	}
	return "unknown error"
}

// Global callback state for purego
var (
	capturesMu     sync.RWMutex
	captures       = make(map[uintptr]*NativeCaptureTrack)
	captureCounter uintptr
	frameCallback  uintptr
	callbackOnce   sync.Once
)

func initFrameCallback() {
	callbackOnce.Do(func() {
		frameCallback = purego.NewCallback(captureFrameCallback)
	})
}

// captureFrameCallback is called by the capture library on its delivery
// thread. base is only valid until the callback returns.
func captureFrameCallback(
	base uintptr, bytesPerRow int32,
	width, height int32,
	pixelType uint32,
	timestampNs int64,
	userData uintptr,
) {
	capturesMu.RLock()
	track, ok := captures[userData]
	capturesMu.RUnlock()

	if !ok || track == nil {
		return
	}

	track.handleFrame(base, bytesPerRow, width, height, pixelType, timestampNs)
}

// NativeCaptureProvider implements DeviceProvider on top of libstream_capture,
// a thin native shim over AVFoundation or V4L2, loaded with purego.
type NativeCaptureProvider struct {
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
	mu            sync.RWMutex
}

// NewNativeCaptureProvider creates a provider. A nil loggerFactory selects
// the pion default.
func NewNativeCaptureProvider(loggerFactory logging.LoggerFactory) *NativeCaptureProvider {
	initCapture()
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &NativeCaptureProvider{
		loggerFactory: loggerFactory,
		log:           loggerFactory.NewLogger("framefeed-capture"),
	}
}

// ListVideoDevices returns available cameras.
func (p *NativeCaptureProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	if !captureLoaded {
		return nil, fmt.Errorf("native capture not available: %v", captureInitErr)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	count := streamCaptureDeviceCount()
	devices := make([]DeviceInfo, 0, count)

	for i := int32(0); i < count; i++ {
		idPtr := streamCaptureDeviceID(i)
		labelPtr := streamCaptureDeviceLabel(i)

		if idPtr != 0 && labelPtr != 0 {
			devices = append(devices, DeviceInfo{
				DeviceID: goStringFromPtr(idPtr),
				Label:    goStringFromPtr(labelPtr),
				Kind:     DeviceKindVideoInput,
			})
		}
		if idPtr != 0 {
			streamCaptureFreeString(idPtr)
		}
		if labelPtr != 0 {
			streamCaptureFreeString(labelPtr)
		}
	}

	return devices, nil
}

// OpenVideoDevice opens a camera and starts capturing. The requested pixel
// format defaults to BGRA32; the device may deliver another one.
func (p *NativeCaptureProvider) OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error) {
	if !captureLoaded {
		return nil, fmt.Errorf("native capture not available: %v", captureInitErr)
	}

	switch streamCapturePermissionStatus() {
	case CapturePermissionNotDetermined:
		streamCaptureRequestPermission()
		return nil, fmt.Errorf("camera permission not yet determined, please grant permission and try again")
	case CapturePermissionDenied, CapturePermissionRestricted:
		return nil, fmt.Errorf("camera permission denied")
	}

	initFrameCallback()

	width, height, fps := 640, 480, 30
	format := PixelFormatBGRA32
	loggerFactory := p.loggerFactory
	if constraints != nil {
		if constraints.LoggerFactory != nil {
			loggerFactory = constraints.LoggerFactory
		}
		if constraints.Width > 0 {
			width = constraints.Width
		}
		if constraints.Height > 0 {
			height = constraints.Height
		}
		if constraints.FrameRate > 0 {
			fps = constraints.FrameRate
		}
		if constraints.PixelFormat != PixelFormatUnknown {
			format = constraints.PixelFormat
		}
	}

	track := newNativeCaptureTrack(deviceID, loggerFactory)

	var deviceIDBytes []byte
	var deviceIDPtr uintptr
	if deviceID != "" {
		deviceIDBytes = cString(deviceID)
		deviceIDPtr = uintptr(unsafe.Pointer(&deviceIDBytes[0]))
	}

	handle := streamCaptureCreate(
		deviceIDPtr,
		int32(width),
		int32(height),
		int32(fps),
		format.Type(),
		frameCallback,
		track.captureID,
	)
	runtime.KeepAlive(deviceIDBytes)

	if handle == 0 {
		track.unregister()
		return nil, fmt.Errorf("failed to create video capture: %s", lastCaptureError())
	}
	track.handle = handle

	// The device settles on its own geometry, which may differ from the request.
	track.settings = VideoTrackSettings{
		Width:       int(streamCaptureGetWidth(handle)),
		Height:      int(streamCaptureGetHeight(handle)),
		FrameRate:   int(streamCaptureGetFPS(handle)),
		DeviceID:    deviceID,
		PixelFormat: PixelFormatFromType(streamCaptureGetPixelType(handle)),
	}

	if result := streamCaptureStart(handle); result != 0 {
		err := fmt.Errorf("failed to start video capture: %s", lastCaptureError())
		track.Close()
		return nil, err
	}

	p.log.Infof("opened camera %q: %dx%d@%d %v (requested %dx%d@%d %v)", deviceID,
		track.settings.Width, track.settings.Height, track.settings.FrameRate, track.settings.PixelFormat,
		width, height, fps, format)
	return track, nil
}

// NativeCaptureTrack implements VideoTrack for a native capture session.
//
// Each callback's memory is copied into a pooled HeapPixelBuffer, since the
// native buffer is only valid for the duration of the callback.
type NativeCaptureTrack struct {
	*BaseTrack

	handle    uint64
	captureID uintptr
	settings  VideoTrackSettings
	log       logging.LeveledLogger

	// pool is only used on the capture thread.
	pool *BufferPool

	frames   atomic.Uint64
	dropped  atomic.Uint64
	callback FrameCallback
	mu       sync.RWMutex

	closeOnce sync.Once
	closeErr  error
}

// newNativeCaptureTrack creates a track and registers it for callback routing.
func newNativeCaptureTrack(deviceID string, loggerFactory logging.LoggerFactory) *NativeCaptureTrack {
	capturesMu.Lock()
	captureCounter++
	captureID := captureCounter
	t := &NativeCaptureTrack{
		BaseTrack: NewBaseTrack(uuid.New().String(), "Camera "+deviceID, RTPCodecTypeVideo),
		captureID: captureID,
		settings:  VideoTrackSettings{DeviceID: deviceID},
		log:       loggerFactory.NewLogger("framefeed-capture"),
	}
	captures[captureID] = t
	capturesMu.Unlock()
	return t
}

func (t *NativeCaptureTrack) unregister() {
	capturesMu.Lock()
	delete(captures, t.captureID)
	capturesMu.Unlock()
}

func (t *NativeCaptureTrack) handleFrame(
	base uintptr, bytesPerRow int32,
	width, height int32,
	pixelType uint32,
	timestampNs int64,
) {
	if t.Muted() || t.State() == TrackStateEnded {
		return
	}

	t.mu.RLock()
	cb := t.callback
	t.mu.RUnlock()
	if cb == nil {
		return
	}

	format := PixelFormatFromType(pixelType)
	stride, w, h := int(bytesPerRow), int(width), int(height)
	if base == 0 || stride <= 0 || w < 0 || h <= 0 {
		t.dropped.Add(1)
		t.log.Debugf("dropping frame: base=%#x stride=%d size=%dx%d", base, stride, w, h)
		return
	}

	if t.pool == nil || !t.pool.Matches(w, h, format, stride) {
		pool, err := NewBufferPool(w, h, format, stride)
		if err != nil {
			t.dropped.Add(1)
			t.log.Warnf("dropping %v frame: %v", format, err)
			return
		}
		if t.pool != nil {
			t.log.Infof("capture geometry changed to %dx%d stride %d %v", w, h, stride, format)
		}
		t.pool = pool
	}

	buf := t.pool.Get()
	copy(buf.Pix(), unsafe.Slice((*byte)(unsafe.Pointer(base)), stride*h))

	t.frames.Add(1)
	t.log.Tracef("captured %v frame %dx%d stride %d (%d bytes) fourcc %s",
		format, w, h, stride, stride*h, FourCC(pixelType))

	cb(RawFrame{Buffer: buf, Timestamp: timestampNs})
}

// OnFrame implements VideoTrack.
func (t *NativeCaptureTrack) OnFrame(callback FrameCallback) {
	t.mu.Lock()
	t.callback = callback
	t.mu.Unlock()
}

// Settings implements VideoTrack.
func (t *NativeCaptureTrack) Settings() VideoTrackSettings {
	return t.settings
}

// Close stops the capture session. No frame callback runs after Close returns.
func (t *NativeCaptureTrack) Close() error {
	t.closeOnce.Do(func() {
		var result *multierror.Error
		if t.handle != 0 {
			if rc := streamCaptureStop(t.handle); rc != 0 {
				result = multierror.Append(result, fmt.Errorf("stop capture: %s", lastCaptureError()))
			}
			streamCaptureDestroy(t.handle)
			t.handle = 0
		}

		t.unregister()
		t.SetState(TrackStateEnded)

		t.log.Debugf("camera track %s closed: %d frames, %d dropped", t.ID(), t.frames.Load(), t.dropped.Load())
		t.closeErr = result.ErrorOrNil()
	})
	return t.closeErr
}

func init() {
	initCapture()
	if captureLoaded {
		RegisterDeviceProvider(NewNativeCaptureProvider(nil))
	}
}

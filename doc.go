// Package framefeed turns a live stream of captured video frames into
// displayable images, always showing the newest frame and never building a
// backlog.
//
// Key pieces include:
//   - PixelBuffer and LockedBuffer: the lock discipline around a capture buffer
//   - Convert: zero-copy ConvertedImage descriptors over ARGB32/BGRA32 memory
//   - FrameChannel: a single-slot, overwrite-on-deliver frame hand-off
//   - Pipeline: worker conversion plus Presenter/FrameSink presentation
//   - NewBlankCanvas: writable RGBA bitmaps for overlays
//   - Frame sources: test patterns, cameras and a native capture provider
//
// # Architecture
//
//	FrameSource/VideoTrack -> FrameChannel -> Acquire -> Convert -> Presenter -> FrameSink
//
// Frames that arrive while the worker is busy replace the pending one; images
// that arrive while the presenter is busy replace the waiting one. Every
// replaced frame or image is released immediately.
//
// Stop the Pipeline before closing its Presenter, so the last displayed image
// is released on the presentation goroutine. When the presenter may drop
// queued tasks on shutdown, call Pipeline.ReleaseDisplayed after its loop
// exits.
//
// # Configuration
//
// Sources take a typed config or a map decoded onto their defaults. A whole
// feed (source, pipeline and log levels) can be loaded from TOML with
// LoadFeedConfigFile; see FeedConfig.
//
// # Native Libraries
//
// Camera capture loads libstream_capture (a shim over AVFoundation or V4L2)
// through purego, without cgo. Set FRAMEFEED_LIB_PATH or STREAM_SDK_LIB_PATH
// to the directory containing it.
//
// # Build Tags
//
//   - nodevices: disable native device capture
package framefeed

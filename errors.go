package framefeed

import "errors"

var (
	// ErrNotSupported is returned when an optional operation is not supported.
	ErrNotSupported = errors.New("operation not supported")

	// ErrBufferBusy is returned when a pixel buffer's memory cannot be locked,
	// typically because the device is reclaiming it. The frame must be dropped.
	ErrBufferBusy = errors.New("pixel buffer busy")

	// ErrInvalidGeometry is returned when a buffer's reported dimensions do not
	// fit the memory it exposes.
	ErrInvalidGeometry = errors.New("invalid pixel buffer geometry")

	// ErrBufferReleased is returned when retaining a LockedBuffer whose last
	// reference has already been released.
	ErrBufferReleased = errors.New("locked buffer already released")

	// ErrUnsupportedFormat is returned by Convert for pixel formats other than
	// ARGB32 and BGRA32.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrBackingFailure is returned by Convert when the image's backing
	// reference cannot be established.
	ErrBackingFailure = errors.New("image backing failure")

	// ErrSustainedBackingFailure is reported through PipelineConfig.OnError when
	// backing failures keep repeating.
	ErrSustainedBackingFailure = errors.New("sustained image backing failures")

	// ErrCanvasSize is returned by NewBlankCanvas for degenerate or oversized requests.
	ErrCanvasSize = errors.New("invalid canvas size")

	// ErrChannelClosed is returned by FrameChannel.Take after Close.
	ErrChannelClosed = errors.New("frame channel closed")

	// ErrPresenterClosed is returned by Presenter.Post once the presenter stopped.
	ErrPresenterClosed = errors.New("presenter closed")
)

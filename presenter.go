package framefeed

import (
	"context"
	"sync"
)

// FrameSink receives converted images for display.
//
// Display is only ever called on the presentation goroutine. The image stays
// valid until the next Display call or until the pipeline stops; sinks that
// need the pixels for longer copy them with ToRGBA. Zero-area images
// (img.Empty()) should be ignored.
type FrameSink interface {
	Display(img *ConvertedImage)
}

// SinkFunc adapts a function to FrameSink.
type SinkFunc func(img *ConvertedImage)

// Display implements FrameSink.
func (f SinkFunc) Display(img *ConvertedImage) { f(img) }

// Presenter runs tasks on the presentation goroutine.
//
// Post must not block: it schedules fn and returns. Tasks run in the order
// they were posted. After the presenter stops Post returns ErrPresenterClosed
// and fn never runs.
type Presenter interface {
	Post(fn func()) error
}

// PresenterFunc adapts a toolkit's "run on main thread" function, such as
// fyne.Do, to Presenter.
type PresenterFunc func(fn func())

// Post implements Presenter.
func (f PresenterFunc) Post(fn func()) error {
	f(fn)
	return nil
}

// MainLoop is a Presenter whose tasks run on whichever goroutine calls Run.
// Callers that need an OS main thread lock it before calling Run.
//
// Every task accepted by Post runs exactly once: tasks still queued when the
// loop closes run before Run returns, or inside Close when no Run is active.
type MainLoop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	running bool
	wake    chan struct{}
	done    chan struct{}
}

// NewMainLoop creates a loop. Tasks posted before Run starts are kept.
func NewMainLoop() *MainLoop {
	return &MainLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post implements Presenter. It never blocks.
func (l *MainLoop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrPresenterClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run executes posted tasks until ctx is done or Close is called, then runs
// whatever is still queued and returns.
func (l *MainLoop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()

	for {
		l.runBatch()

		select {
		case <-ctx.Done():
			l.Close()
			l.finish()
			return ctx.Err()
		case <-l.done:
			l.finish()
			return nil
		case <-l.wake:
		}
	}
}

// finish runs the tasks left after Close on the Run goroutine.
func (l *MainLoop) finish() {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.running = false
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

// RunPending executes the tasks queued so far on the calling goroutine and
// returns how many ran. It suits callers that drive their own frame loop.
func (l *MainLoop) RunPending() int {
	return l.runBatch()
}

func (l *MainLoop) runBatch() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Close stops the loop. Later Post calls fail with ErrPresenterClosed. When
// no Run is active the tasks still queued run on the calling goroutine
// before Close returns; otherwise Run runs them on its way out.
func (l *MainLoop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	if l.running {
		l.mu.Unlock()
		return
	}
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

package framefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
)

// PipelineState represents the state of a frame pipeline.
type PipelineState int

const (
	PipelineStateIdle    PipelineState = iota // Not started
	PipelineStateRunning                      // Converting frames
	PipelineStateStopped                      // Stopped, cannot be restarted
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultBackingFailureThreshold is the number of consecutive backing
// failures after which the pipeline reports sustained memory pressure.
const DefaultBackingFailureThreshold = 30

// PipelineConfig configures a frame pipeline.
type PipelineConfig struct {
	Sink      FrameSink // Receives converted images (required)
	Presenter Presenter // Runs Sink.Display on the presentation goroutine (required)

	// LoggerFactory creates the pipeline logger (default: pion default factory).
	LoggerFactory logging.LoggerFactory

	// BackingFailureThreshold is the consecutive backing failure count that
	// triggers an operator-visible report (default: DefaultBackingFailureThreshold).
	BackingFailureThreshold int

	// OnError receives diagnostically significant errors, such as sustained
	// backing failures. Single dropped frames are never reported here.
	OnError func(error)
}

// PipelineStats provides pipeline statistics.
type PipelineStats struct {
	FramesDelivered   uint64 // Frames accepted by OnFrame
	FramesDropped     uint64 // Frames replaced in the channel before conversion
	FramesConverted   uint64 // Frames converted to images
	FramesDisplayed   uint64 // Images handed to the sink
	ImagesDropped     uint64 // Images replaced before the presenter got to them
	LockBusy          uint64 // Frames dropped because the buffer could not be locked
	InvalidGeometry   uint64 // Frames dropped because of inconsistent geometry
	UnsupportedFormat uint64 // Frames dropped because of their pixel format
	BackingFailures   uint64 // Frames dropped because the image backing failed
}

// Pipeline converts captured frames and displays them.
//
// Frames enter through OnFrame, wait in a FrameChannel, are converted on a
// worker goroutine and reach the sink through the Presenter. Every per-frame
// failure drops that frame only.
type Pipeline struct {
	sink      FrameSink
	presenter Presenter
	log       logging.LeveledLogger
	threshold int
	onError   func(error)

	frames *FrameChannel
	images *slot[*ConvertedImage]

	// displayed is the image the sink currently shows; retired is set once
	// Stop has let go of it.
	displayMu sync.Mutex
	displayed *ConvertedImage
	retired   bool

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	// convert is Convert outside of tests.
	convert func(*LockedBuffer) (*ConvertedImage, error)

	converted     atomic.Uint64
	shown         atomic.Uint64
	imagesDropped atomic.Uint64
	lockBusy      atomic.Uint64
	invalid       atomic.Uint64
	unsupported   atomic.Uint64
	backing       atomic.Uint64
	backingStreak int // worker goroutine only
	warnedFormats map[PixelFormat]bool
}

// NewPipeline creates an idle pipeline.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Presenter == nil {
		return nil, fmt.Errorf("presenter is required")
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if config.BackingFailureThreshold <= 0 {
		config.BackingFailureThreshold = DefaultBackingFailureThreshold
	}

	p := &Pipeline{
		sink:          config.Sink,
		presenter:     config.Presenter,
		log:           config.LoggerFactory.NewLogger("framefeed-pipeline"),
		threshold:     config.BackingFailureThreshold,
		onError:       config.OnError,
		frames:        NewFrameChannel(),
		images:        newSlot[*ConvertedImage](),
		convert:       Convert,
		warnedFormats: make(map[PixelFormat]bool),
	}
	p.state.Store(int32(PipelineStateIdle))
	return p, nil
}

// State returns the current pipeline state.
func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// OnFrame is the capture entry point. It takes ownership of the frame and
// never blocks; frames delivered before Start wait in the channel, frames
// delivered after Stop are released immediately.
func (p *Pipeline) OnFrame(frame RawFrame) {
	p.frames.Deliver(frame)
}

// Start launches the conversion worker.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case PipelineStateRunning:
		return fmt.Errorf("pipeline already running")
	case PipelineStateStopped:
		return fmt.Errorf("pipeline stopped")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state.Store(int32(PipelineStateRunning))

	p.wg.Add(1)
	go p.processLoop()

	p.log.Debug("pipeline started")
	return nil
}

// Stop stops accepting frames, waits for an in-flight conversion and
// releases every frame and image still held. It may be called from any
// goroutine, including the presentation one. Stop is idempotent.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == PipelineStateStopped {
		return nil
	}
	p.state.Store(int32(PipelineStateStopped))

	p.frames.Close()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	var result *multierror.Error
	if img, ok := p.images.close(); ok {
		img.Release()
	}
	if err := p.presenter.Post(p.releaseDisplayed); err != nil {
		if !errors.Is(err, ErrPresenterClosed) {
			result = multierror.Append(result, fmt.Errorf("release displayed image: %w", err))
		}
		p.releaseDisplayed()
	}

	s := p.Stats()
	p.log.Debugf("pipeline stopped: delivered=%d converted=%d displayed=%d dropped=%d",
		s.FramesDelivered, s.FramesConverted, s.FramesDisplayed, s.FramesDropped)
	return result.ErrorOrNil()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	cs := p.frames.Stats()
	return PipelineStats{
		FramesDelivered:   cs.Delivered,
		FramesDropped:     cs.Dropped,
		FramesConverted:   p.converted.Load(),
		FramesDisplayed:   p.shown.Load(),
		ImagesDropped:     p.imagesDropped.Load(),
		LockBusy:          p.lockBusy.Load(),
		InvalidGeometry:   p.invalid.Load(),
		UnsupportedFormat: p.unsupported.Load(),
		BackingFailures:   p.backing.Load(),
	}
}

func (p *Pipeline) processLoop() {
	defer p.wg.Done()

	for {
		frame, err := p.frames.Take(p.ctx)
		if err != nil {
			return
		}
		p.processFrame(frame)
	}
}

func (p *Pipeline) processFrame(frame RawFrame) {
	p.log.Tracef("frame %d: %v %dx%d stride %d", frame.Seq, frame.Buffer.Format(),
		frame.Buffer.Width(), frame.Buffer.Height(), frame.Buffer.BytesPerRow())

	lb, err := Acquire(frame.Buffer)
	if err != nil {
		if errors.Is(err, ErrBufferBusy) {
			p.lockBusy.Add(1)
		} else {
			p.invalid.Add(1)
		}
		p.log.Debugf("frame %d dropped: %v", frame.Seq, err)
		return
	}
	defer lb.Release()

	img, err := p.convert(lb)
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		p.unsupported.Add(1)
		if !p.warnedFormats[lb.Format()] {
			p.warnedFormats[lb.Format()] = true
			p.log.Warnf("dropping %v frames: %v", lb.Format(), err)
		}
		return
	case errors.Is(err, ErrBackingFailure):
		p.backing.Add(1)
		p.backingStreak++
		p.log.Warnf("frame %d dropped: %v", frame.Seq, err)
		if p.backingStreak%p.threshold == 0 {
			serr := fmt.Errorf("%w: %d in a row", ErrSustainedBackingFailure, p.backingStreak)
			p.log.Error(serr.Error())
			if p.onError != nil {
				p.onError(serr)
			}
		}
		return
	case err != nil:
		p.log.Warnf("frame %d dropped: %v", frame.Seq, err)
		return
	}
	p.backingStreak = 0
	p.converted.Add(1)

	img.Timestamp = frame.Timestamp
	img.Seq = frame.Seq
	p.present(img)
}

// present hands img to the presentation goroutine. Only the latest image
// waits there; a drain task is posted when the hand-off slot goes from idle
// to pending, so at most one task is outstanding.
func (p *Pipeline) present(img *ConvertedImage) {
	old, replaced, ok := p.images.put(img)
	if !ok {
		img.Release()
		return
	}
	if replaced {
		p.imagesDropped.Add(1)
		old.Release()
		return
	}
	if err := p.presenter.Post(p.drainImage); err != nil {
		if pending, ok := p.images.tryTake(); ok {
			pending.Release()
		}
		p.log.Debugf("presenter unavailable: %v", err)
	}
}

// drainImage runs on the presentation goroutine.
func (p *Pipeline) drainImage() {
	img, ok := p.images.tryTake()
	if !ok {
		return
	}
	p.sink.Display(img)
	p.shown.Add(1)

	var old *ConvertedImage
	p.displayMu.Lock()
	if p.retired {
		old = img
	} else {
		old, p.displayed = p.displayed, img
	}
	p.displayMu.Unlock()

	if old != nil {
		old.Release()
	}
}

// ReleaseDisplayed releases the last displayed image once the pipeline is
// stopped. Stop already asks the presenter to do this; call it after the
// presentation loop has exited when the presenter may drop queued tasks on
// shutdown, as toolkit main loops do. It is a no-op before Stop and after
// the image has been released.
func (p *Pipeline) ReleaseDisplayed() {
	if p.State() == PipelineStateStopped {
		p.releaseDisplayed()
	}
}

func (p *Pipeline) releaseDisplayed() {
	p.displayMu.Lock()
	img := p.displayed
	p.displayed = nil
	p.retired = true
	p.displayMu.Unlock()

	if img != nil {
		img.Release()
	}
}

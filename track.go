package framefeed

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Re-export pion's RTPCodecType for convenience
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is active and producing frames
	TrackStateEnded                   // Track has ended
	TrackStateMuted                   // Track is muted (still active but not producing)
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	case TrackStateMuted:
		return "muted"
	default:
		return "unknown"
	}
}

// VideoTrack is a live stream of raw frames from a capture device.
type VideoTrack interface {
	io.Closer

	// ID returns the unique identifier for this track.
	ID() string

	// Kind returns the track kind, always RTPCodecTypeVideo.
	Kind() RTPCodecType

	// Label returns a human-readable label for the track source.
	Label() string

	// State returns the current track state.
	State() TrackState

	// Muted returns whether the track is muted. Muted tracks drop frames.
	Muted() bool

	// SetMuted sets the muted state.
	SetMuted(muted bool)

	// OnEnded sets a callback for when the track ends.
	OnEnded(callback func())

	// OnFrame sets the callback that receives each captured frame. The
	// callback owns the frame and must release it.
	OnFrame(callback FrameCallback)

	// Settings returns the actual video settings.
	Settings() VideoTrackSettings
}

// VideoTrackSettings describes the actual video track settings, which may
// differ from the requested constraints.
type VideoTrackSettings struct {
	Width       int
	Height      int
	FrameRate   int
	DeviceID    string
	PixelFormat PixelFormat
}

// BaseTrack provides common functionality for tracks.
type BaseTrack struct {
	id      string
	label   string
	kind    RTPCodecType
	state   atomic.Int32
	muted   atomic.Bool
	endedCb func()
	mu      sync.RWMutex
}

// NewBaseTrack creates a new base track in the live state.
func NewBaseTrack(id, label string, kind RTPCodecType) *BaseTrack {
	t := &BaseTrack{
		id:    id,
		label: label,
		kind:  kind,
	}
	t.state.Store(int32(TrackStateLive))
	return t
}

func (t *BaseTrack) ID() string         { return t.id }
func (t *BaseTrack) Kind() RTPCodecType { return t.kind }
func (t *BaseTrack) Label() string      { return t.label }

func (t *BaseTrack) State() TrackState {
	return TrackState(t.state.Load())
}

// SetState changes the track state. The ended callback runs once, on its
// own goroutine, when the track first ends.
func (t *BaseTrack) SetState(state TrackState) {
	old := TrackState(t.state.Swap(int32(state)))
	if state == TrackStateEnded && old != TrackStateEnded {
		t.mu.RLock()
		cb := t.endedCb
		t.mu.RUnlock()
		if cb != nil {
			go cb()
		}
	}
}

func (t *BaseTrack) Muted() bool     { return t.muted.Load() }
func (t *BaseTrack) SetMuted(m bool) { t.muted.Store(m) }

func (t *BaseTrack) OnEnded(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endedCb = callback
}

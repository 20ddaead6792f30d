package framefeed

import (
	"context"
	"sync"
	"sync/atomic"
)

// slot is a single-item mailbox. put overwrites, take blocks until an item is
// pending. All state is guarded by mu.
type slot[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	item    T
	pending bool
	closed  bool

	// stamp, if set, runs on each stored item while mu is held.
	stamp func(*T)
}

func newSlot[T any]() *slot[T] {
	s := &slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// put stores v. If an item was pending it is returned as old with replaced
// set. ok is false once the slot is closed, in which case v was not stored.
func (s *slot[T]) put(v T) (old T, replaced, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return old, false, false
	}
	if s.pending {
		old, replaced = s.item, true
	}
	if s.stamp != nil {
		s.stamp(&v)
	}
	s.item = v
	s.pending = true
	s.cond.Signal()
	return old, replaced, true
}

// take waits for a pending item and clears the slot.
func (s *slot[T]) take(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.pending && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}

	var zero T
	if s.pending {
		v := s.item
		s.item, s.pending = zero, false
		return v, nil
	}
	if s.closed {
		return zero, ErrChannelClosed
	}
	return zero, ctx.Err()
}

// tryTake clears and returns the pending item, if any.
func (s *slot[T]) tryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.pending {
		return zero, false
	}
	v := s.item
	s.item, s.pending = zero, false
	return v, true
}

// close rejects further puts, wakes waiters and hands back the pending item.
func (s *slot[T]) close() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.closed = true
	s.cond.Broadcast()
	if !s.pending {
		return zero, false
	}
	v := s.item
	s.item, s.pending = zero, false
	return v, true
}

// ChannelStats is a snapshot of FrameChannel counters.
type ChannelStats struct {
	Delivered uint64 // Frames accepted by Deliver
	Dropped   uint64 // Pending frames replaced before a consumer took them
	Taken     uint64 // Frames handed to the consumer
	Rejected  uint64 // Frames delivered after Close or without a buffer
}

// FrameChannel hands the most recent frame from one producer to one consumer.
//
// It holds at most one pending frame. A delivery while a frame is pending
// replaces it and releases the replaced buffer, so the consumer always gets
// the freshest frame and slow consumers see gaps, never a backlog.
type FrameChannel struct {
	slot *slot[RawFrame]
	seq  uint64 // guarded by slot.mu

	delivered atomic.Uint64
	dropped   atomic.Uint64
	taken     atomic.Uint64
	rejected  atomic.Uint64
}

// NewFrameChannel creates an idle channel.
func NewFrameChannel() *FrameChannel {
	c := &FrameChannel{slot: newSlot[RawFrame]()}
	c.slot.stamp = func(f *RawFrame) {
		c.seq++
		f.Seq = c.seq
	}
	return c
}

// Deliver publishes frame, taking ownership of its buffer. It never blocks
// beyond the slot mutex. After Close the frame is released and Deliver
// returns false; frames without a buffer are rejected the same way.
//
// Seq is assigned when the frame is stored, so the pending frame always
// carries the highest number handed out, whichever goroutine delivered it.
func (c *FrameChannel) Deliver(frame RawFrame) bool {
	if frame.Buffer == nil {
		c.rejected.Add(1)
		return false
	}

	old, replaced, ok := c.slot.put(frame)
	if !ok {
		c.rejected.Add(1)
		frame.Release()
		return false
	}
	c.delivered.Add(1)
	if replaced {
		c.dropped.Add(1)
		old.Release()
	}
	return true
}

// Take blocks until a frame is pending, ctx is done or the channel closes
// (ErrChannelClosed). The caller owns the returned frame.
func (c *FrameChannel) Take(ctx context.Context) (RawFrame, error) {
	f, err := c.slot.take(ctx)
	if err != nil {
		return RawFrame{}, err
	}
	c.taken.Add(1)
	return f, nil
}

// TryTake returns the pending frame without blocking.
func (c *FrameChannel) TryTake() (RawFrame, bool) {
	f, ok := c.slot.tryTake()
	if ok {
		c.taken.Add(1)
	}
	return f, ok
}

// Close stops accepting frames and releases the pending one. Blocked Take
// calls return ErrChannelClosed. Close is idempotent.
func (c *FrameChannel) Close() {
	if f, ok := c.slot.close(); ok {
		f.Release()
	}
}

// Stats returns a snapshot of the channel counters.
func (c *FrameChannel) Stats() ChannelStats {
	return ChannelStats{
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
		Taken:     c.taken.Load(),
		Rejected:  c.rejected.Load(),
	}
}

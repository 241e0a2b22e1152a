package manager

import (
	iface "CourtVision/interface"
	"fmt"
)

// FrameBuffer is a fixed-capacity FIFO window over the most recent frames.
// It stores private copies, so callers may keep drawing on the frames they
// pushed. Stored frames are never modified in place, which keeps snapshots
// valid after later pushes.
type FrameBuffer struct {
	slots []iface.Frame
	start int
	size  int
}

func NewFrameBuffer(capacity int) (*FrameBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("frame buffer capacity must be positive, got %d", capacity)
	}
	return &FrameBuffer{slots: make([]iface.Frame, capacity)}, nil
}

// Push appends a copy of frame, evicting the oldest frame once full.
func (b *FrameBuffer) Push(frame iface.Frame) {
	c := frame.Clone()
	if b.size < len(b.slots) {
		b.slots[(b.start+b.size)%len(b.slots)] = c
		b.size++
		return
	}
	b.slots[b.start] = c
	b.start = (b.start + 1) % len(b.slots)
}

func (b *FrameBuffer) IsFull() bool {
	return b.size == len(b.slots)
}

func (b *FrameBuffer) Len() int {
	return b.size
}

func (b *FrameBuffer) Cap() int {
	return len(b.slots)
}

// Snapshot returns the buffered frames oldest first in a new slice.
func (b *FrameBuffer) Snapshot() []iface.Frame {
	out := make([]iface.Frame, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.slots[(b.start+i)%len(b.slots)]
	}
	return out
}

// Reset drops all frames; the buffer is empty again afterwards.
func (b *FrameBuffer) Reset() {
	for i := range b.slots {
		b.slots[i] = iface.Frame{}
	}
	b.start = 0
	b.size = 0
}

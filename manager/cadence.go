package manager

import "fmt"

// Cadence gates the clip classifier. It fires on every Interval-th frame
// index once the buffer is full, plus once on the frame that first fills the
// buffer so a state is available as soon as a whole window exists.
type Cadence struct {
	Interval int
}

func NewCadence(interval int) (Cadence, error) {
	if interval <= 0 {
		return Cadence{}, fmt.Errorf("classify interval must be positive, got %d", interval)
	}
	return Cadence{Interval: interval}, nil
}

// ShouldRun reports whether the classifier runs for the frame at index,
// given the buffer state after that frame was pushed. Frame indices count
// from 0, so the buffer first fills at index Cap()-1.
func (c Cadence) ShouldRun(index int64, buf *FrameBuffer) bool {
	if !buf.IsFull() {
		return false
	}
	if index == int64(buf.Cap()-1) {
		return true
	}
	return index%int64(c.Interval) == 0
}

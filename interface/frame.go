package iface

import (
	"fmt"
	"time"
)

// Frame is one decoded video frame. Data holds packed 8-bit pixels in
// row-major order (BGR for 3 channels, as gocv produces them).
// Nothing downstream of the video source may modify Data.
type Frame struct {
	Index     int64
	Timestamp time.Duration
	Width     int
	Height    int
	Channels  int
	Data      []byte
}

// Validate reports ErrInvalidInput for frames no adapter can consume.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: frame %d has size %dx%d", ErrInvalidInput, f.Index, f.Width, f.Height)
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("%w: frame %d has %d channels", ErrInvalidInput, f.Index, f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return fmt.Errorf("%w: frame %d carries %d bytes, want %d", ErrInvalidInput, f.Index, len(f.Data), want)
	}
	return nil
}

// Clone returns a deep copy so that later in-place drawing on the source
// buffer cannot alias the copy.
func (f Frame) Clone() Frame {
	c := f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return c
}

// NewBlankFrame allocates a zeroed frame, mostly used for warm-up runs.
func NewBlankFrame(width, height, channels int) Frame {
	return Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]byte, width*height*channels),
	}
}

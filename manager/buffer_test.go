package manager

import (
	iface "CourtVision/interface"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(i int64) iface.Frame {
	f := iface.NewBlankFrame(4, 2, 3)
	f.Index = i
	for j := range f.Data {
		f.Data[j] = byte(i)
	}
	return f
}

func indices(frames []iface.Frame) []int64 {
	out := make([]int64, len(frames))
	for i, f := range frames {
		out[i] = f.Index
	}
	return out
}

func TestFrameBuffer_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := NewFrameBuffer(0)
	assert.Error(t, err)
	_, err = NewFrameBuffer(-3)
	assert.Error(t, err)
}

func TestFrameBuffer_SlidingWindow(t *testing.T) {
	buf, err := NewFrameBuffer(3)
	require.NoError(t, err)

	t.Run("Test Fill", func(t *testing.T) {
		assert.False(t, buf.IsFull())
		assert.Empty(t, buf.Snapshot())
		buf.Push(testFrame(0))
		buf.Push(testFrame(1))
		assert.False(t, buf.IsFull())
		assert.Equal(t, []int64{0, 1}, indices(buf.Snapshot()))
		buf.Push(testFrame(2))
		assert.True(t, buf.IsFull())
		assert.Equal(t, []int64{0, 1, 2}, indices(buf.Snapshot()))
	})

	t.Run("Test Evict Oldest", func(t *testing.T) {
		buf.Push(testFrame(3))
		buf.Push(testFrame(4))
		assert.Equal(t, 3, buf.Len())
		assert.Equal(t, []int64{2, 3, 4}, indices(buf.Snapshot()))
	})

	t.Run("Test Reset", func(t *testing.T) {
		buf.Reset()
		assert.Equal(t, 0, buf.Len())
		assert.False(t, buf.IsFull())
		assert.Equal(t, 3, buf.Cap())
	})
}

func TestFrameBuffer_BoundAndOrderForAnyPushSequence(t *testing.T) {
	for capacity := 1; capacity <= 7; capacity++ {
		buf, err := NewFrameBuffer(capacity)
		require.NoError(t, err)
		everFull := false
		for i := int64(0); i < 40; i++ {
			buf.Push(testFrame(i))
			require.LessOrEqual(t, buf.Len(), capacity)

			snap := indices(buf.Snapshot())
			for j := 1; j < len(snap); j++ {
				require.Equal(t, snap[j-1]+1, snap[j], "snapshot must be arrival ordered")
			}
			require.Equal(t, i, snap[len(snap)-1])

			if everFull {
				require.True(t, buf.IsFull(), "full must stay true once reached")
			}
			everFull = everFull || buf.IsFull()
		}
	}
}

func TestFrameBuffer_StoresCopies(t *testing.T) {
	buf, err := NewFrameBuffer(2)
	require.NoError(t, err)

	f := testFrame(7)
	buf.Push(f)
	f.Data[0] = 0xFF

	snap := buf.Snapshot()
	assert.Equal(t, byte(7), snap[0].Data[0])

	// a snapshot stays valid after later pushes evict its frames
	buf.Push(testFrame(8))
	buf.Push(testFrame(9))
	assert.Equal(t, int64(7), snap[0].Index)
	assert.Equal(t, byte(7), snap[0].Data[0])
}

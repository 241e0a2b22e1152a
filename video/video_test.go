package video

import (
	iface "CourtVision/interface"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "output_match1.mp4"), OutputPath("out", "/data/videos/match1.mov"))
	assert.Equal(t, "output_clip.mp4", OutputPath("", "clip.mp4"))
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.mp4"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFrameMatRoundTrip(t *testing.T) {
	f := iface.NewBlankFrame(8, 4, 3)
	for i := range f.Data {
		f.Data[i] = byte(i)
	}
	m, err := FrameToMat(f)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 8, m.Cols())
	assert.Equal(t, 4, m.Rows())

	back, err := MatToFrame(m, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), back.Index)
	assert.Equal(t, f.Data, back.Data)

	_, err = FrameToMat(iface.Frame{Width: 1})
	assert.ErrorIs(t, err, iface.ErrInvalidInput)
}

func TestSourceSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.avi")
	sink, err := Create(path, "MJPG", 10, 32, 24)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		f := iface.NewBlankFrame(32, 24, 3)
		for j := range f.Data {
			f.Data[j] = byte(i * 40)
		}
		require.NoError(t, sink.WriteFrame(f))
	}
	assert.Equal(t, 5, sink.Frames())
	require.NoError(t, sink.Close())

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	info := src.Info()
	assert.Equal(t, 32, info.Width)
	assert.Equal(t, 24, info.Height)

	var got []int64
	for {
		f, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, 32, f.Width)
		got = append(got, f.Index)
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, got)
}

func TestRenderer_DoesNotMutateInput(t *testing.T) {
	f := iface.NewBlankFrame(64, 48, 3)
	orig := f.Clone()

	mask := iface.Mask{Width: 64, Height: 48, Data: make([]uint8, 64*48)}
	for i := 0; i < 64*10; i++ {
		mask.Data[64*30+i] = 1
	}
	ball := iface.BoxDetection(iface.BoundingBox{X1: 40, Y1: 30, X2: 46, Y2: 36, Confidence: 0.9, Label: "ball"})
	res := iface.FrameResult{
		Index:   7,
		Actions: []iface.BoundingBox{{X1: 5, Y1: 30, X2: 20, Y2: 45, Confidence: 0.8, Label: "spike"}},
		Ball:    &ball,
		Players: []iface.Pose{{
			Box: iface.BoundingBox{X1: 20, Y1: 26, X2: 40, Y2: 46},
			Keypoints: map[iface.KeypointName]iface.Keypoint{
				iface.LeftShoulder: {X: 25, Y: 30, Confidence: 0.9},
				iface.LeftHip:      {X: 26, Y: 40, Confidence: 0.9},
			},
		}},
		Court:     []iface.Segmentation{{Mask: mask, Box: iface.BoundingBox{X1: 0, Y1: 30, X2: 64, Y2: 40}}},
		GameState: iface.ClassificationResult{State: iface.StatePlay, Confidence: 0.9},
	}

	out, err := NewRenderer().RenderFrame(f, res)
	require.NoError(t, err)
	assert.Equal(t, orig.Data, f.Data, "input frame untouched")
	assert.Equal(t, f.Width, out.Width)
	assert.NotEqual(t, f.Data, out.Data)
}

func TestBlendMask(t *testing.T) {
	f := iface.NewBlankFrame(2, 1, 3)
	m := iface.Mask{Width: 2, Height: 1, Data: []uint8{1, 0}}
	blendMask(f, m, color.RGBA{R: 200, G: 100, B: 0}, 0.5)
	assert.Equal(t, []byte{0, 50, 100, 0, 0, 0}, f.Data)

	blendMask(f, iface.Mask{Width: 3, Height: 1, Data: []uint8{1, 1, 1}}, color.RGBA{R: 255}, 1)
	assert.Equal(t, []byte{0, 50, 100, 0, 0, 0}, f.Data, "size mismatch is ignored")

	t.Run("Test short mask data", func(t *testing.T) {
		f := iface.NewBlankFrame(4, 4, 3)
		short := iface.Mask{Width: 4, Height: 4, Data: []uint8{1, 1, 1, 1}}
		assert.NotPanics(t, func() {
			blendMask(f, short, color.RGBA{R: 255}, 1)
		})
		assert.Equal(t, make([]byte, 4*4*3), f.Data)
	})

	t.Run("Test long mask data", func(t *testing.T) {
		f := iface.NewBlankFrame(2, 1, 3)
		long := iface.Mask{Width: 2, Height: 1, Data: []uint8{0, 0, 1, 1, 1}}
		assert.NotPanics(t, func() {
			blendMask(f, long, color.RGBA{R: 255}, 1)
		})
		assert.Equal(t, make([]byte, 2*1*3), f.Data)
	})
}

package iface

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Validate(t *testing.T) {
	t.Run("Test Valid", func(t *testing.T) {
		assert.NoError(t, NewBlankFrame(4, 3, 3).Validate())
		assert.NoError(t, NewBlankFrame(1, 1, 1).Validate())
	})

	t.Run("Test Invalid", func(t *testing.T) {
		cases := map[string]Frame{
			"zero width":      {Width: 0, Height: 2, Channels: 3},
			"negative height": {Width: 2, Height: -1, Channels: 3},
			"two channels":    {Width: 1, Height: 1, Channels: 2, Data: make([]byte, 2)},
			"short data":      {Width: 2, Height: 2, Channels: 3, Data: make([]byte, 11)},
			"nil data":        {Width: 2, Height: 2, Channels: 1},
		}
		for name, f := range cases {
			err := f.Validate()
			assert.True(t, errors.Is(err, ErrInvalidInput), name)
		}
	})
}

func TestFrame_Clone(t *testing.T) {
	f := NewBlankFrame(2, 2, 1)
	f.Index = 9
	c := f.Clone()
	f.Data[0] = 200

	assert.Equal(t, int64(9), c.Index)
	assert.Equal(t, byte(0), c.Data[0])
}

func TestKeypointName(t *testing.T) {
	t.Run("Test Round Trip", func(t *testing.T) {
		for k := Nose; k <= RightAnkle; k++ {
			parsed, err := ParseKeypointName(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, parsed)
		}
	})

	t.Run("Test Unknown", func(t *testing.T) {
		_, err := ParseKeypointName("tail")
		assert.Error(t, err)
		assert.False(t, KeypointName(17).Valid())
		_, err = KeypointName(-1).MarshalText()
		assert.Error(t, err)
	})

	t.Run("Test JSON Map Keys", func(t *testing.T) {
		p := Pose{Keypoints: map[KeypointName]Keypoint{LeftWrist: {X: 1, Y: 2, Confidence: 0.5}}}
		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"left_wrist"`)

		var back Pose
		require.NoError(t, json.Unmarshal(data, &back))
		kp, ok := back.Keypoint(LeftWrist)
		assert.True(t, ok)
		assert.Equal(t, float32(0.5), kp.Confidence)
		_, ok = back.Keypoint(Nose)
		assert.False(t, ok)
	})

	t.Run("Test Skeleton Uses Valid Names", func(t *testing.T) {
		for _, limb := range Skeleton {
			assert.True(t, limb[0].Valid())
			assert.True(t, limb[1].Valid())
		}
	})
}

func TestDetection(t *testing.T) {
	box := BoundingBox{X1: 10, Y1: 20, X2: 30, Y2: 60, Confidence: 0.8, Label: "ball"}

	t.Run("Test Box", func(t *testing.T) {
		d := BoxDetection(box)
		assert.Equal(t, KindBoundingBox, d.Kind)
		assert.Nil(t, d.Segment)
		assert.Nil(t, d.Pose)
		assert.Equal(t, float32(0.8), d.Confidence())
		assert.Equal(t, box, d.Bounds())
	})

	t.Run("Test Segment", func(t *testing.T) {
		d := SegmentDetection(Segmentation{Box: box, Confidence: 0.6})
		assert.Equal(t, KindSegmentation, d.Kind)
		assert.Equal(t, float32(0.6), d.Confidence())
		assert.Equal(t, box, d.Bounds())
	})

	t.Run("Test Pose", func(t *testing.T) {
		d := PoseDetection(Pose{Box: box})
		assert.Equal(t, KindPose, d.Kind)
		assert.Equal(t, float32(0.8), d.Confidence())
	})

	t.Run("Test Geometry", func(t *testing.T) {
		assert.Equal(t, Position{X: 20, Y: 40}, box.Center())
		assert.Equal(t, float32(800), box.Area())
		assert.Equal(t, float32(0), BoundingBox{X1: 5, X2: 1, Y2: 3}.Area())
		assert.Equal(t, Position{X: 30, Y: 60}, box.Corners().RB)
	})

	t.Run("Test Kind JSON", func(t *testing.T) {
		data, err := json.Marshal(BoxDetection(box))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"kind":"bbox"`)
		assert.NotContains(t, string(data), `"pose"`)
	})
}

func TestMask(t *testing.T) {
	m := Mask{Width: 3, Height: 2, Data: []uint8{0, 1, 0, 1, 1, 0}}
	assert.True(t, m.At(1, 0))
	assert.False(t, m.At(2, 1))
	assert.False(t, m.At(3, 0))
	assert.False(t, m.At(-1, 0))
	assert.Equal(t, 3, m.Pixels())
	assert.True(t, m.Valid())

	t.Run("Test data length mismatch", func(t *testing.T) {
		for _, bad := range []Mask{
			{Width: 4, Height: 4, Data: []uint8{1, 1, 1, 1}},
			{Width: 2, Height: 1, Data: []uint8{1, 1, 1}},
			{Width: 2, Height: 2},
		} {
			assert.False(t, bad.Valid())
			assert.NotPanics(t, func() {
				assert.False(t, bad.At(bad.Width-1, bad.Height-1))
			})
			assert.Zero(t, bad.Pixels())
		}
	})
}

func TestDetection_NilVariant(t *testing.T) {
	for _, d := range []Detection{
		{Kind: KindBoundingBox},
		{Kind: KindSegmentation},
		{Kind: KindPose},
		{},
	} {
		assert.NotPanics(t, func() {
			assert.Zero(t, d.Confidence())
			assert.Equal(t, BoundingBox{}, d.Bounds())
		}, d.Kind.String())
	}
}

func TestGameState(t *testing.T) {
	for label, want := range map[string]GameState{
		"play":    StatePlay,
		"no-play": StateNoPlay,
		"no_play": StateNoPlay,
		"NoPlay":  StateNoPlay,
		"":        StateUnknown,
	} {
		got, err := ParseGameState(label)
		require.NoError(t, err, label)
		assert.Equal(t, want, got, label)
	}
	_, err := ParseGameState("timeout")
	assert.Error(t, err)

	data, err := json.Marshal(ClassificationResult{State: StateNoPlay, Confidence: 0.7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"no-play","confidence":0.7}`, string(data))
	var back ClassificationResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, StateNoPlay, back.State)
	assert.Equal(t, StateUnknown, Unclassified().State)
}

func TestParseDetectorKind(t *testing.T) {
	for _, k := range AllDetectors {
		got, err := ParseDetectorKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseDetectorKind("referee")
	assert.Error(t, err)
}

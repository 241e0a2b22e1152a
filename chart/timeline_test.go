package chart

import (
	iface "CourtVision/interface"
	"CourtVision/session"
	"CourtVision/video"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotter"
)

func frameResult(i int64, state iface.GameState, conf float32, players int) iface.FrameResult {
	return iface.FrameResult{
		Index:     i,
		Players:   make([]iface.Pose, players),
		GameState: iface.ClassificationResult{State: state, Confidence: conf},
	}
}

func TestTimeline(t *testing.T) {
	dir := t.TempDir()
	tl := NewTimeline(dir)
	run := session.RunInfo{ID: "r1", Video: video.Info{Path: "/videos/final.mp4"}}

	require.NoError(t, tl.Start(run))
	require.NoError(t, tl.Consume(iface.Frame{}, frameResult(0, iface.StateUnknown, 0, 1)))
	require.NoError(t, tl.Consume(iface.Frame{}, frameResult(1, iface.StatePlay, 0.75, 4)))
	require.NoError(t, tl.Consume(iface.Frame{}, frameResult(2, iface.StateNoPlay, 0.75, 2)))

	assert.Equal(t, plotter.XYs{{X: 1, Y: 0.75}, {X: 2, Y: 0.25}}, tl.Points())

	require.NoError(t, tl.Finish(run, 3))
	path := filepath.Join(dir, "timeline_final.png")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestTimeline_EmptyRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	tl := NewTimeline(dir)
	run := session.RunInfo{ID: "r2", Video: video.Info{Path: "empty.mp4"}}
	require.NoError(t, tl.Start(run))
	require.NoError(t, tl.Finish(run, 0))

	_, err := os.Stat(tl.Path("empty.mp4"))
	assert.True(t, os.IsNotExist(err))
}

func TestTimeline_StartResets(t *testing.T) {
	tl := NewTimeline(t.TempDir())
	require.NoError(t, tl.Consume(iface.Frame{}, frameResult(0, iface.StatePlay, 1, 0)))
	require.NoError(t, tl.Start(session.RunInfo{}))
	assert.Empty(t, tl.Points())
}

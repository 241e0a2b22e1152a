package store

import (
	iface "CourtVision/interface"
	"CourtVision/session"
	"CourtVision/video"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(i int64, state iface.GameState, conf float32) iface.FrameResult {
	res := iface.FrameResult{
		Index:     i,
		Actions:   []iface.BoundingBox{},
		Players:   []iface.Pose{{}, {}},
		Court:     []iface.Segmentation{},
		GameState: iface.ClassificationResult{State: state, Confidence: conf},
	}
	if i%2 == 0 {
		ball := iface.BoxDetection(iface.BoundingBox{Confidence: 0.5})
		res.Ball = &ball
	}
	return res
}

func TestStore_Migrations(t *testing.T) {
	s := openTest(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// applying again is a no-op
	require.NoError(t, s.MigrateUp())
}

func TestStore_RecordsRun(t *testing.T) {
	s := openTest(t)
	run := session.RunInfo{ID: "run-1", Video: video.Info{Path: "match.mp4"}, Started: time.Now()}

	require.NoError(t, s.Start(run))
	states := []iface.GameState{
		iface.StateUnknown, iface.StateUnknown, iface.StatePlay, iface.StatePlay,
		iface.StatePlay, iface.StateNoPlay, iface.StateNoPlay,
	}
	confs := []float32{0, 0, 0.5, 0.75, 1, 0.5, 0.5}
	for i, st := range states {
		require.NoError(t, s.Consume(iface.Frame{}, result(int64(i), st, confs[i])))
	}
	require.NoError(t, s.Finish(run, int64(len(states))))

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "match.mp4", runs[0].Video)
	assert.Equal(t, int64(7), runs[0].Frames)
	assert.True(t, runs[0].FinishedAt.Valid)

	frames, err := s.FrameResults("run-1")
	require.NoError(t, err)
	require.Len(t, frames, 7)
	assert.Equal(t, FrameRow{FrameIndex: 2, GameState: iface.StatePlay, Confidence: 0.5, HasBall: true, PlayerCount: 2}, frames[2])
	assert.False(t, frames[3].HasBall)

	spans, err := s.GameStateSpans("run-1")
	require.NoError(t, err)
	want := []Span{
		{State: iface.StateUnknown, StartFrame: 0, EndFrame: 1, MeanConfidence: 0},
		{State: iface.StatePlay, StartFrame: 2, EndFrame: 4, MeanConfidence: 0.75},
		{State: iface.StateNoPlay, StartFrame: 5, EndFrame: 6, MeanConfidence: 0.5},
	}
	if diff := cmp.Diff(want, spans); diff != "" {
		t.Errorf("GameStateSpans mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(3), spans[1].Frames())
}

func TestStore_FlushesInBatches(t *testing.T) {
	s := openTest(t)
	run := session.RunInfo{ID: "run-big", Video: video.Info{Path: "long.mp4"}, Started: time.Now()}
	require.NoError(t, s.Start(run))
	for i := 0; i < flushEvery+10; i++ {
		require.NoError(t, s.Consume(iface.Frame{}, result(int64(i), iface.StatePlay, 1)))
	}
	assert.Len(t, s.pending, 10)

	require.NoError(t, s.Finish(run, int64(flushEvery+10)))
	frames, err := s.FrameResults("run-big")
	require.NoError(t, err)
	assert.Len(t, frames, flushEvery+10)

	spans, err := s.GameStateSpans("run-big")
	require.NoError(t, err)
	assert.Len(t, spans, 1)
}

func TestStore_UnknownRun(t *testing.T) {
	s := openTest(t)
	spans, err := s.GameStateSpans("nope")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

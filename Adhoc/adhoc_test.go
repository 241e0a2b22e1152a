package Adhoc

import (
	iface "CourtVision/interface"
	"CourtVision/session"
	"CourtVision/video"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coordinator struct {
	mu         sync.Mutex
	registered []RegisterRequest
	progress   []ProgressReport
	reject     bool
}

func (c *coordinator) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c.mu.Lock()
		c.registered = append(c.registered, req)
		reject := c.reject
		c.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RegisterResponse{Id: req.Id, Success: true})
	})
	mux.HandleFunc("/api/progress", func(w http.ResponseWriter, r *http.Request) {
		var p ProgressReport
		_ = json.NewDecoder(r.Body).Decode(&p)
		c.mu.Lock()
		c.progress = append(c.progress, p)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (c *coordinator) heartbeats() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registered)
}

func newTestReporter(t *testing.T, c *coordinator, interval time.Duration) *Reporter {
	srv := httptest.NewServer(c.handler())
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewReporter(u.Hostname(), port, interval)
}

func TestReporter_Heartbeat(t *testing.T) {
	t.Run("Test Register", func(t *testing.T) {
		c := &coordinator{}
		r := newTestReporter(t, c, time.Second)
		r.IP, r.Port = "10.0.0.2", 50051
		require.NoError(t, r.Heartbeat(context.Background()))
		require.Len(t, c.registered, 1)
		assert.Equal(t, r.ID(), c.registered[0].Id)
		assert.Equal(t, "10.0.0.2", c.registered[0].IP)
		assert.Equal(t, Role, c.registered[0].Role)
	})

	t.Run("Test Rejected", func(t *testing.T) {
		c := &coordinator{reject: true}
		r := newTestReporter(t, c, time.Second)
		assert.Error(t, r.Heartbeat(context.Background()))
	})

	t.Run("Test Alive Loop", func(t *testing.T) {
		c := &coordinator{}
		r := newTestReporter(t, c, 20*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go r.SendAliveMessage(ctx, &wg)
		assert.Eventually(t, func() bool { return c.heartbeats() >= 3 }, 2*time.Second, 10*time.Millisecond)
		cancel()
		wg.Wait()
	})
}

func TestReporter_Progress(t *testing.T) {
	c := &coordinator{}
	r := newTestReporter(t, c, time.Second)
	r.SetProgressEvery(2)
	run := session.RunInfo{ID: "run-1", Video: video.Info{Path: "match.mp4", TotalFrames: 5}}

	require.NoError(t, r.Start(run))
	for i := int64(0); i < 5; i++ {
		res := iface.FrameResult{Index: i, GameState: iface.ClassificationResult{State: iface.StatePlay, Confidence: 0.8}}
		require.NoError(t, r.Consume(iface.Frame{}, res))
	}
	require.NoError(t, r.Finish(run, 5))

	require.Len(t, c.progress, 4)
	assert.Equal(t, int64(0), c.progress[0].Frame)
	assert.Equal(t, int64(2), c.progress[1].Frame)
	assert.Equal(t, "play", c.progress[2].GameState)
	assert.Equal(t, int64(4), c.progress[2].Frame)
	assert.True(t, c.progress[3].Finished)
	for _, p := range c.progress {
		assert.Equal(t, r.ID(), p.Id)
		assert.Equal(t, "run-1", p.RunID)
	}
}

func TestReporter_UnreachableDoesNotFail(t *testing.T) {
	r := NewReporter("127.0.0.1", 1, time.Second)
	run := session.RunInfo{ID: "run-2", Video: video.Info{Path: "x.mp4"}}
	assert.NoError(t, r.Start(run))
	assert.NoError(t, r.Finish(run, 0))
}

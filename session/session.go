package session

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"CourtVision/manager"
	"CourtVision/video"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunInfo identifies the processing of one input video.
type RunInfo struct {
	ID      string
	Video   video.Info
	Started time.Time
}

// Consumer receives every fused result of a run, in frame order.
type Consumer interface {
	Start(run RunInfo) error
	Consume(frame iface.Frame, result iface.FrameResult) error
	Finish(run RunInfo, frames int64) error
}

// FrameSource is satisfied by *video.Source.
type FrameSource interface {
	Info() video.Info
	Next() (iface.Frame, bool, error)
	Close() error
}

// Summary reports one video. Frames counts results handed to the consumers;
// Rejected counts decoded frames the manager refused as invalid input, which
// no consumer sees.
type Summary struct {
	RunID    string
	Video    string
	Frames   int64
	Rejected int64
	Skipped  bool
	Duration time.Duration
	Err      error
}

type Runner struct {
	open          func(path string) (FrameSource, error)
	newManager    func() (*manager.Manager, error)
	consumers     []Consumer
	progressEvery int
	log           *zap.Logger
}

type Option func(*Runner)

func WithSourceOpener(open func(path string) (FrameSource, error)) Option {
	return func(r *Runner) { r.open = open }
}

func WithConsumers(c ...Consumer) Option {
	return func(r *Runner) { r.consumers = append(r.consumers, c...) }
}

// WithProgressEvery logs progress every n frames; 0 disables it.
func WithProgressEvery(n int) Option {
	return func(r *Runner) { r.progressEvery = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner builds a batch driver. newManager is called once per video so
// that no buffer or game state leaks between videos.
func NewRunner(newManager func() (*manager.Manager, error), opts ...Option) *Runner {
	r := &Runner{
		open: func(path string) (FrameSource, error) {
			return video.Open(path)
		},
		newManager:    newManager,
		progressEvery: 30,
		log:           logger.Named("session"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes the inputs one after the other. Missing videos are skipped;
// other failures are reported per video and joined into the returned error.
func (r *Runner) Run(ctx context.Context, inputs []string) ([]Summary, error) {
	var summaries []Summary
	var errs []error
	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		s := r.process(ctx, path)
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, s.Err))
		}
		summaries = append(summaries, s)
	}
	return summaries, errors.Join(errs...)
}

func (r *Runner) process(ctx context.Context, path string) Summary {
	sum := Summary{Video: path}
	src, err := r.open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.log.Warn("video not found, skipping", zap.String("video", path))
			sum.Skipped = true
			return sum
		}
		r.log.Error("cannot open video", zap.String("video", path), zap.Error(err))
		sum.Err = err
		return sum
	}
	defer src.Close()

	m, err := r.newManager()
	if err != nil {
		sum.Err = err
		return sum
	}
	run := RunInfo{ID: uuid.NewString(), Video: src.Info(), Started: time.Now()}
	sum.RunID = run.ID
	log := r.log.With(zap.String("run", run.ID), zap.String("video", path))
	log.Info("processing video",
		zap.Float64("fps", run.Video.FPS), zap.Int("total_frames", run.Video.TotalFrames),
		zap.Int("width", run.Video.Width), zap.Int("height", run.Video.Height))

	for i, c := range r.consumers {
		if err := c.Start(run); err != nil {
			r.finish(run, r.consumers[:i], 0, log)
			sum.Err = err
			return sum
		}
	}

	frames, rejected, err := r.loop(ctx, src, m, run, log)
	m.Wait()
	sum.Frames = frames
	sum.Rejected = rejected
	if rejected > 0 {
		log.Warn("frames rejected as invalid input", zap.Int64("rejected", rejected))
	}
	sum.Duration = time.Since(run.Started)
	if ferr := r.finish(run, r.consumers, frames, log); err == nil {
		err = ferr
	}
	if err != nil {
		log.Error("video processing stopped", zap.Int64("frames", frames), zap.Error(err))
		sum.Err = err
		return sum
	}
	log.Info("finished video", zap.Int64("frames", frames), zap.Duration("elapsed", sum.Duration))
	return sum
}

func (r *Runner) loop(ctx context.Context, src FrameSource, m *manager.Manager, run RunInfo, log *zap.Logger) (processed, rejected int64, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return processed, rejected, err
		}
		frame, ok, err := src.Next()
		if err != nil {
			return processed, rejected, err
		}
		if !ok {
			return processed, rejected, nil
		}
		res, err := m.Analyze(ctx, frame)
		if err != nil {
			rejected++
			log.Warn("frame rejected", zap.Int64("frame", frame.Index), zap.Int64("rejected", rejected), zap.Error(err))
			continue
		}
		for _, c := range r.consumers {
			if err := c.Consume(frame, res); err != nil {
				return processed, rejected, err
			}
		}
		processed++
		if r.progressEvery > 0 && processed%int64(r.progressEvery) == 0 {
			log.Info("progress", zap.Int64("processed", processed), zap.Int("total", run.Video.TotalFrames),
				zap.Stringer("game_state", res.GameState.State))
		}
	}
}

func (r *Runner) finish(run RunInfo, consumers []Consumer, frames int64, log *zap.Logger) error {
	var errs []error
	for _, c := range consumers {
		if err := c.Finish(run, frames); err != nil {
			log.Error("consumer finish failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

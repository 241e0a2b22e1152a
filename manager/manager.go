package manager

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	WindowSize       int
	ClassifyInterval int
	EnabledDetectors []iface.DetectorKind
	// ParallelDetectors fans the detection adapters of one frame out over
	// goroutines. Results are joined before Analyze returns.
	ParallelDetectors bool
	// AsyncClassification runs the clip classifier in the background. The
	// displayed game state may then lag by more than ClassifyInterval frames.
	AsyncClassification bool
}

func DefaultConfig() Config {
	return Config{
		WindowSize:       16,
		ClassifyInterval: 8,
		EnabledDetectors: append([]iface.DetectorKind(nil), iface.AllDetectors...),
	}
}

func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.ClassifyInterval <= 0 {
		return fmt.Errorf("classify interval must be positive, got %d", c.ClassifyInterval)
	}
	for _, k := range c.EnabledDetectors {
		if _, err := iface.ParseDetectorKind(string(k)); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) enabled(kind iface.DetectorKind) bool {
	for _, k := range c.EnabledDetectors {
		if k == kind {
			return true
		}
	}
	return false
}

// Observer receives timing and failure events, e.g. for metrics.
type Observer interface {
	FrameAnalyzed(elapsed time.Duration)
	AdapterFailed(adapter string, err error)
	ClassifierRun(result iface.ClassificationResult, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) FrameAnalyzed(time.Duration)                                    {}
func (nopObserver) AdapterFailed(string, error)                                    {}
func (nopObserver) ClassifierRun(iface.ClassificationResult, time.Duration, error) {}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.obs = o
		}
	}
}

const classifierName = "classifier"

// Manager fuses the per-frame detectors and the windowed game state
// classifier into one FrameResult per input frame. Each Manager owns its
// state; run one per video.
type Manager struct {
	cfg        Config
	detectors  []iface.DetectionAdapter
	classifier iface.ClipClassifier
	log        *zap.Logger
	obs        Observer

	// mu serializes Analyze: buffer, cadence, index and disabled adapters.
	mu       sync.Mutex
	buffer   *FrameBuffer
	cadence  Cadence
	index    int64
	disabled map[string]bool

	// stateMu guards the held classification, shared with the async worker.
	// generation bumps on Reset; results from an older generation are dropped.
	stateMu    sync.Mutex
	last       iface.ClassificationResult
	inflight   bool
	generation uint64
	// pending.Add only runs under mu.
	pending       sync.WaitGroup
	classifierOff atomic.Bool
}

// New wires adapters into a Manager. Adapters whose kind is not enabled are
// ignored and never invoked. A nil classifier disables game state, which then
// stays unknown.
func New(cfg Config, detectors []iface.DetectionAdapter, classifier iface.ClipClassifier, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buf, err := NewFrameBuffer(cfg.WindowSize)
	if err != nil {
		return nil, err
	}
	cadence, err := NewCadence(cfg.ClassifyInterval)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:        cfg,
		classifier: classifier,
		log:        logger.Named("manager"),
		obs:        nopObserver{},
		buffer:     buf,
		cadence:    cadence,
		disabled:   map[string]bool{},
		last:       iface.Unclassified(),
	}
	for _, opt := range opts {
		opt(m)
	}

	seen := map[iface.DetectorKind]bool{}
	for _, d := range detectors {
		if d == nil {
			continue
		}
		kind := d.Kind()
		if seen[kind] {
			return nil, fmt.Errorf("duplicate %s detector", kind)
		}
		seen[kind] = true
		if !cfg.enabled(kind) {
			m.log.Info("detector disabled by configuration", zap.String("adapter", string(kind)))
			continue
		}
		m.detectors = append(m.detectors, d)
	}
	sort.SliceStable(m.detectors, func(i, j int) bool {
		return detectorOrder(m.detectors[i].Kind()) < detectorOrder(m.detectors[j].Kind())
	})
	for _, k := range cfg.EnabledDetectors {
		if !seen[k] {
			m.log.Warn("detector enabled but no adapter provided", zap.String("adapter", string(k)))
		}
	}
	if classifier != nil && classifier.WindowSize() != cfg.WindowSize {
		return nil, fmt.Errorf("classifier window %d does not match buffer window %d", classifier.WindowSize(), cfg.WindowSize)
	}
	return m, nil
}

func detectorOrder(kind iface.DetectorKind) int {
	for i, k := range iface.AllDetectors {
		if k == kind {
			return i
		}
	}
	return len(iface.AllDetectors)
}

type detectOutput struct {
	kind       iface.DetectorKind
	detections []iface.Detection
	err        error
}

// Analyze processes one frame. Only ErrInvalidInput is returned; adapter and
// classifier failures degrade their fields and are logged.
func (m *Manager) Analyze(ctx context.Context, frame iface.Frame) (iface.FrameResult, error) {
	if err := frame.Validate(); err != nil {
		return iface.FrameResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	index := m.index
	result := iface.FrameResult{
		Index:   index,
		Actions: []iface.BoundingBox{},
		Players: []iface.Pose{},
		Court:   []iface.Segmentation{},
	}
	for _, out := range m.detect(ctx, frame) {
		if out.err != nil {
			m.adapterFailed(index, string(out.kind), out.err)
			continue
		}
		fuse(&result, out.kind, out.detections)
	}

	m.buffer.Push(frame)
	if m.classifier != nil && !m.classifierOff.Load() && m.cadence.ShouldRun(index, m.buffer) {
		m.classify(ctx, index, m.buffer.Snapshot())
	}
	m.index++

	result.GameState = m.GameState()
	m.obs.FrameAnalyzed(time.Since(start))
	return result, nil
}

func (m *Manager) detect(ctx context.Context, frame iface.Frame) []detectOutput {
	active := make([]iface.DetectionAdapter, 0, len(m.detectors))
	for _, d := range m.detectors {
		if !m.disabled[string(d.Kind())] {
			active = append(active, d)
		}
	}
	outs := make([]detectOutput, len(active))
	if m.cfg.ParallelDetectors && len(active) > 1 {
		var wg sync.WaitGroup
		for i, d := range active {
			wg.Add(1)
			go func(i int, d iface.DetectionAdapter) {
				defer wg.Done()
				outs[i] = runDetector(ctx, d, frame)
			}(i, d)
		}
		wg.Wait()
		return outs
	}
	for i, d := range active {
		outs[i] = runDetector(ctx, d, frame)
	}
	return outs
}

func runDetector(ctx context.Context, d iface.DetectionAdapter, frame iface.Frame) (out detectOutput) {
	out.kind = d.Kind()
	defer func() {
		if r := recover(); r != nil {
			out.detections = nil
			out.err = fmt.Errorf("%w: panic: %v", iface.ErrInference, r)
		}
	}()
	out.detections, out.err = d.Infer(ctx, frame)
	return out
}

func (m *Manager) adapterFailed(index int64, adapter string, err error) {
	m.obs.AdapterFailed(adapter, err)
	if errors.Is(err, iface.ErrModelUnavailable) {
		m.disabled[adapter] = true
		m.log.Warn("model unavailable, adapter disabled for this run",
			zap.Int64("frame", index), zap.String("adapter", adapter), zap.Error(err))
		return
	}
	m.log.Warn("adapter failed, field left empty for this frame",
		zap.Int64("frame", index), zap.String("adapter", adapter), zap.Error(err))
}

// fuse copies one adapter's detections into its result field. Detections of
// an unexpected variant for that field are dropped.
func fuse(result *iface.FrameResult, kind iface.DetectorKind, detections []iface.Detection) {
	switch kind {
	case iface.DetectorAction:
		for _, d := range detections {
			if d.Kind == iface.KindBoundingBox && d.Box != nil {
				result.Actions = append(result.Actions, *d.Box)
			}
		}
	case iface.DetectorBall:
		var best *iface.Detection
		for i := range detections {
			d := detections[i]
			box := d.Kind == iface.KindBoundingBox && d.Box != nil
			seg := d.Kind == iface.KindSegmentation && d.Segment != nil
			if !box && !seg {
				continue
			}
			if best == nil || d.Confidence() > best.Confidence() {
				best = &d
			}
		}
		result.Ball = best
	case iface.DetectorPlayer:
		for _, d := range detections {
			switch {
			case d.Kind == iface.KindPose && d.Pose != nil:
				result.Players = append(result.Players, *d.Pose)
			case d.Kind == iface.KindBoundingBox && d.Box != nil:
				result.Players = append(result.Players, iface.Pose{Box: *d.Box, Keypoints: map[iface.KeypointName]iface.Keypoint{}})
			}
		}
	case iface.DetectorCourt:
		for _, d := range detections {
			if d.Kind == iface.KindSegmentation && d.Segment != nil {
				result.Court = append(result.Court, *d.Segment)
			}
		}
	}
}

func (m *Manager) classify(ctx context.Context, index int64, clip []iface.Frame) {
	m.stateMu.Lock()
	gen := m.generation
	if !m.cfg.AsyncClassification {
		m.stateMu.Unlock()
		m.runClassifier(ctx, gen, index, clip)
		return
	}
	if m.inflight {
		m.stateMu.Unlock()
		m.log.Debug("classification still running, trigger skipped", zap.Int64("frame", index))
		return
	}
	m.inflight = true
	m.stateMu.Unlock()

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.runClassifier(context.WithoutCancel(ctx), gen, index, clip)
		m.stateMu.Lock()
		m.inflight = false
		m.stateMu.Unlock()
	}()
}

func (m *Manager) runClassifier(ctx context.Context, gen uint64, index int64, clip []iface.Frame) {
	start := time.Now()
	res, err := safeClassify(ctx, m.classifier, clip)
	if err == nil {
		err = checkClassification(res)
	}
	m.obs.ClassifierRun(res, time.Since(start), err)
	if err != nil {
		if errors.Is(err, iface.ErrModelUnavailable) {
			m.disableClassifier(index, err)
			return
		}
		m.log.Warn("game state classification failed, keeping previous state",
			zap.Int64("frame", index), zap.String("adapter", classifierName),
			zap.Stringer("kept", m.GameState().State), zap.Error(err))
		return
	}
	m.stateMu.Lock()
	stale := gen != m.generation
	if !stale {
		m.last = res
	}
	m.stateMu.Unlock()
	if stale {
		m.log.Debug("classification finished after reset, result dropped", zap.Int64("frame", index))
		return
	}
	m.log.Debug("game state classified", zap.Int64("frame", index),
		zap.Stringer("state", res.State), zap.Float32("confidence", res.Confidence))
}

func (m *Manager) disableClassifier(index int64, err error) {
	m.classifierOff.Store(true)
	m.log.Warn("classifier unavailable, game state disabled for this run",
		zap.Int64("frame", index), zap.String("adapter", classifierName), zap.Error(err))
}

func safeClassify(ctx context.Context, c iface.ClipClassifier, clip []iface.Frame) (res iface.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", iface.ErrInference, r)
		}
	}()
	res, err = c.Classify(ctx, clip)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) && !errors.Is(err, iface.ErrInference) {
		err = fmt.Errorf("%w: %w", iface.ErrInference, err)
	}
	return res, err
}

func checkClassification(res iface.ClassificationResult) error {
	if res.State == iface.StateUnknown {
		return fmt.Errorf("%w: classifier returned unknown state", iface.ErrInference)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f outside [0,1]", iface.ErrInference, res.Confidence)
	}
	return nil
}

// GameState returns the last successfully computed classification.
func (m *Manager) GameState() iface.ClassificationResult {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.last
}

// Wait blocks until a background classification, if any, has finished.
// Analyze calls block meanwhile.
func (m *Manager) Wait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Wait()
}

type Status struct {
	FramesAnalyzed int64                      `json:"framesAnalyzed"`
	BufferedFrames int                        `json:"bufferedFrames"`
	WindowSize     int                        `json:"windowSize"`
	Interval       int                        `json:"classifyInterval"`
	GameState      iface.ClassificationResult `json:"gameState"`
	Active         []string                   `json:"activeAdapters"`
	Disabled       []string                   `json:"disabledAdapters"`
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		FramesAnalyzed: m.index,
		BufferedFrames: m.buffer.Len(),
		WindowSize:     m.cfg.WindowSize,
		Interval:       m.cfg.ClassifyInterval,
		GameState:      m.GameState(),
		Active:         []string{},
		Disabled:       []string{},
	}
	for _, d := range m.detectors {
		if m.disabled[string(d.Kind())] {
			st.Disabled = append(st.Disabled, string(d.Kind()))
		} else {
			st.Active = append(st.Active, string(d.Kind()))
		}
	}
	if m.classifier != nil {
		if m.classifierOff.Load() {
			st.Disabled = append(st.Disabled, classifierName)
		} else {
			st.Active = append(st.Active, classifierName)
		}
	}
	return st
}

// Reset starts a new sequence: the buffer, frame index and held game state
// are cleared. Adapters disabled as unavailable stay disabled.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Wait()
	m.buffer.Reset()
	m.index = 0
	m.stateMu.Lock()
	m.generation++
	m.last = iface.Unclassified()
	m.stateMu.Unlock()
}

package engine

import (
	iface "CourtVision/interface"
	"context"
	"errors"
	"fmt"
)

// Detector adapts a YOLO-style single frame model to iface.DetectionAdapter.
type Detector struct {
	kind       iface.DetectorKind
	task       string
	model      *Model
	maxResults int
}

func NewDetector(kind iface.DetectorKind, task string, model *Model) (*Detector, error) {
	switch task {
	case TaskDetect, TaskSegment, TaskPose:
	default:
		return nil, fmt.Errorf("unknown task %q for %s detector", task, kind)
	}
	if model == nil {
		return nil, fmt.Errorf("%s detector needs a model", kind)
	}
	return &Detector{kind: kind, task: task, model: model}, nil
}

func NewActionDetector(model *Model) (*Detector, error) {
	return NewDetector(iface.DetectorAction, TaskDetect, model)
}

// NewBallDetector returns at most one detection per frame, the most
// confident. task is TaskDetect or TaskSegment.
func NewBallDetector(model *Model, task string) (*Detector, error) {
	if task == TaskPose {
		return nil, errors.New("ball detector does not support pose models")
	}
	d, err := NewDetector(iface.DetectorBall, task, model)
	if err != nil {
		return nil, err
	}
	d.maxResults = 1
	return d, nil
}

func NewPlayerDetector(model *Model, task string) (*Detector, error) {
	if task == TaskSegment {
		return nil, errors.New("player detector does not support segmentation models")
	}
	return NewDetector(iface.DetectorPlayer, task, model)
}

func NewCourtSegmenter(model *Model) (*Detector, error) {
	return NewDetector(iface.DetectorCourt, TaskSegment, model)
}

func (d *Detector) Kind() iface.DetectorKind {
	return d.kind
}

func (d *Detector) Infer(ctx context.Context, frame iface.Frame) ([]iface.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", iface.ErrInference, err)
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	input, lb, err := letterboxTensor(frame, d.model.inputSize())
	if err != nil {
		return nil, err
	}
	outs, err := d.model.Forward(input)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: %s model produced no output", iface.ErrInference, d.kind)
	}
	conf, iou := d.model.thresholds()
	names := d.model.names()

	detections := []iface.Detection{}
	switch d.task {
	case TaskDetect:
		boxes, err := decodeBoxes(outs[0], names, conf, iou, lb)
		if err != nil {
			return nil, err
		}
		for _, b := range boxes {
			detections = append(detections, iface.BoxDetection(b))
		}
	case TaskPose:
		poses, err := decodePoses(outs[0], names, conf, iou, lb)
		if err != nil {
			return nil, err
		}
		for _, p := range poses {
			detections = append(detections, iface.PoseDetection(p))
		}
	case TaskSegment:
		if len(outs) < 2 {
			return nil, fmt.Errorf("%w: segmentation model needs prototype output, got %d outputs", iface.ErrInference, len(outs))
		}
		segs, err := decodeSegments(outs[0], outs[1], names, conf, iou, lb)
		if err != nil {
			return nil, err
		}
		for _, s := range segs {
			detections = append(detections, iface.SegmentDetection(s))
		}
	}
	if d.maxResults > 0 && len(detections) > d.maxResults {
		detections = detections[:d.maxResults]
	}
	return detections, nil
}

// GameStateClassifier adapts a video classification model (VideoMAE style)
// that takes a [1,T,3,H,W] clip and returns one logit per class name.
type GameStateClassifier struct {
	model  *Model
	window int
	mean   []float32
	std    []float32
	states []iface.GameState
}

func NewGameStateClassifier(model *Model, window int, mean, std []float32) (*GameStateClassifier, error) {
	if model == nil {
		return nil, errors.New("classifier needs a model")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	if len(mean) != 3 || len(std) != 3 {
		return nil, errors.New("mean and std need one value per channel")
	}
	for _, s := range std {
		if s == 0 {
			return nil, errors.New("std must not be zero")
		}
	}
	names := model.names()
	states := make([]iface.GameState, len(names))
	known := false
	for i, n := range names {
		s, err := iface.ParseGameState(n)
		if err != nil {
			return nil, err
		}
		states[i] = s
		known = known || s != iface.StateUnknown
	}
	if !known {
		return nil, fmt.Errorf("classifier names %v contain no play or no-play label", names)
	}
	return &GameStateClassifier{model: model, window: window, mean: mean, std: std, states: states}, nil
}

func (c *GameStateClassifier) WindowSize() int {
	return c.window
}

func (c *GameStateClassifier) Classify(ctx context.Context, clip []iface.Frame) (iface.ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return iface.Unclassified(), fmt.Errorf("%w: %w", iface.ErrInference, err)
	}
	if len(clip) != c.window {
		return iface.Unclassified(), fmt.Errorf("%w: clip has %d frames, want %d", iface.ErrInvalidInput, len(clip), c.window)
	}
	for _, f := range clip {
		if err := f.Validate(); err != nil {
			return iface.Unclassified(), err
		}
	}
	input, err := clipTensor(clip, c.model.inputSize(), c.mean, c.std)
	if err != nil {
		return iface.Unclassified(), err
	}
	outs, err := c.model.Forward(input)
	if err != nil {
		return iface.Unclassified(), err
	}
	if len(outs) == 0 || len(outs[0].Data) != len(c.states) {
		return iface.Unclassified(), fmt.Errorf("%w: expected %d logits", iface.ErrInference, len(c.states))
	}
	return pickState(outs[0].Data, c.states), nil
}

// pickState applies softmax and returns the most probable known state.
func pickState(logits []float32, states []iface.GameState) iface.ClassificationResult {
	probs := softmax(logits)
	best := iface.Unclassified()
	for i, p := range probs {
		if states[i] == iface.StateUnknown {
			continue
		}
		if best.State == iface.StateUnknown || p > best.Confidence {
			best = iface.ClassificationResult{State: states[i], Confidence: p}
		}
	}
	return best
}

// Unavailable stands in for a model that failed to load. Every call fails
// with ErrModelUnavailable so the orchestrator disables it once.
type Unavailable struct {
	kind iface.DetectorKind
	err  error
}

func NewUnavailable(kind iface.DetectorKind, err error) *Unavailable {
	return &Unavailable{kind: kind, err: unavailableErr(err)}
}

func (u *Unavailable) Kind() iface.DetectorKind {
	return u.kind
}

func (u *Unavailable) Infer(context.Context, iface.Frame) ([]iface.Detection, error) {
	return nil, u.err
}

type UnavailableClassifier struct {
	window int
	err    error
}

func NewUnavailableClassifier(window int, err error) *UnavailableClassifier {
	return &UnavailableClassifier{window: window, err: unavailableErr(err)}
}

func (u *UnavailableClassifier) WindowSize() int {
	return u.window
}

func (u *UnavailableClassifier) Classify(context.Context, []iface.Frame) (iface.ClassificationResult, error) {
	return iface.Unclassified(), u.err
}

func unavailableErr(err error) error {
	if err == nil {
		return iface.ErrModelUnavailable
	}
	if errors.Is(err, iface.ErrModelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", iface.ErrModelUnavailable, err)
}

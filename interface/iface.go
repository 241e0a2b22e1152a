package iface

import (
	"context"
	"fmt"
)

// DetectorKind names one of the per-frame detection models.
type DetectorKind string

const (
	DetectorAction DetectorKind = "action"
	DetectorBall   DetectorKind = "ball"
	DetectorPlayer DetectorKind = "player"
	DetectorCourt  DetectorKind = "court"
)

// AllDetectors is the default enabled set, in the order results are logged.
var AllDetectors = []DetectorKind{DetectorAction, DetectorBall, DetectorPlayer, DetectorCourt}

func ParseDetectorKind(s string) (DetectorKind, error) {
	for _, k := range AllDetectors {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown detector %q", s)
}

// DetectionAdapter wraps one single-frame model. Implementations must not
// modify the frame, return an empty slice when nothing is found, and use
// ErrInvalidInput, ErrModelUnavailable and ErrInference for failures.
type DetectionAdapter interface {
	Kind() DetectorKind
	Infer(ctx context.Context, frame Frame) ([]Detection, error)
}

// ClipClassifier wraps a window-based model. Classify must be given exactly
// WindowSize frames, oldest first.
type ClipClassifier interface {
	WindowSize() int
	Classify(ctx context.Context, clip []Frame) (ClassificationResult, error)
}

// EngineConfig is what a model was loaded with. Target names the DNN
// backend (Cpu, Cuda, OpenCL, Vulkan) and only applies when UseGPU is set.
type EngineConfig struct {
	UseGPU      bool
	Target      string
	ModelPath   string
	ConfigPath  string
	Names       []string
	Conf        float32
	Iou         float32
	InputSize   int
	InputName   string
	OutputNames []string
}

package engine

import (
	"CourtVision/config"
	iface "CourtVision/interface"
	"CourtVision/logger"
	"fmt"

	"go.uber.org/zap"
)

const warmUpRuns = 3

// Models is the set of adapters built from configuration.
type Models struct {
	Detectors  []iface.DetectionAdapter
	Classifier iface.ClipClassifier
	loaded     []*Model
}

// Close releases every loaded network.
func (m *Models) Close() {
	for _, model := range m.loaded {
		model.Destroy()
	}
	m.loaded = nil
}

// Load builds one adapter per enabled detector plus the game state
// classifier. A model that cannot be loaded is replaced by an adapter that
// reports ErrModelUnavailable; Load itself only fails on configuration
// errors.
func Load(cfg *config.Config, open Opener) (*Models, error) {
	log := logger.Named("engine")
	mc, err := cfg.Manager()
	if err != nil {
		return nil, err
	}
	out := &Models{}
	for _, kind := range mc.EnabledDetectors {
		mcfg := cfg.Model(kind)
		model, err := loadModel(mcfg, cfg.Models.Backend, open)
		if err == nil && mcfg.UseGPU {
			err = model.WarmUp(warmUpRuns, 1, 3, mcfg.InputSize, mcfg.InputSize)
		}
		if err != nil {
			log.Warn("model unavailable", zap.String("adapter", string(kind)), zap.String("path", mcfg.ModelPath), zap.Error(err))
			if model != nil {
				model.Destroy()
			}
			out.Detectors = append(out.Detectors, NewUnavailable(kind, err))
			continue
		}
		adapter, err := newAdapter(kind, mcfg.Task, model)
		if err != nil {
			model.Destroy()
			out.Close()
			return nil, err
		}
		out.loaded = append(out.loaded, model)
		out.Detectors = append(out.Detectors, adapter)
		log.Info("model loaded", zap.String("adapter", string(kind)), zap.String("path", mcfg.ModelPath), zap.String("task", mcfg.Task))
	}

	ccfg := cfg.Models.Classifier
	window := mc.WindowSize
	model, err := loadModel(ccfg, cfg.Models.Backend, open)
	if err == nil && ccfg.UseGPU {
		err = model.WarmUp(warmUpRuns, 1, window, 3, ccfg.InputSize, ccfg.InputSize)
	}
	if err != nil {
		log.Warn("model unavailable", zap.String("adapter", "classifier"), zap.String("path", ccfg.ModelPath), zap.Error(err))
		if model != nil {
			model.Destroy()
		}
		out.Classifier = NewUnavailableClassifier(window, err)
		return out, nil
	}
	cls, err := NewGameStateClassifier(model, window, ccfg.Mean, ccfg.Std)
	if err != nil {
		model.Destroy()
		out.Close()
		return nil, err
	}
	out.loaded = append(out.loaded, model)
	out.Classifier = cls
	log.Info("model loaded", zap.String("adapter", "classifier"), zap.String("path", ccfg.ModelPath), zap.Int("window", window))
	return out, nil
}

func newAdapter(kind iface.DetectorKind, task string, model *Model) (iface.DetectionAdapter, error) {
	switch kind {
	case iface.DetectorAction:
		return NewActionDetector(model)
	case iface.DetectorBall:
		return NewBallDetector(model, task)
	case iface.DetectorPlayer:
		return NewPlayerDetector(model, task)
	case iface.DetectorCourt:
		return NewCourtSegmenter(model)
	}
	return nil, fmt.Errorf("unknown detector %q", kind)
}

func loadModel(m config.Model, target string, open Opener) (*Model, error) {
	ec, err := EngineConfig(m, target)
	if err != nil {
		return nil, err
	}
	model := &Model{}
	model.New(open)
	if err := model.LoadModel(ec); err != nil {
		return model, err
	}
	return model, nil
}

// EngineConfig resolves a model section, reading the names file if set.
func EngineConfig(m config.Model, target string) (iface.EngineConfig, error) {
	names := m.Names
	if len(names) == 0 && m.NamesFile != "" {
		var err error
		names, err = ReadLines(m.NamesFile)
		if err != nil {
			return iface.EngineConfig{}, fmt.Errorf("%w: names file: %w", iface.ErrModelUnavailable, err)
		}
	}
	return iface.EngineConfig{
		UseGPU:      m.UseGPU,
		Target:      target,
		ModelPath:   m.ModelPath,
		ConfigPath:  m.ConfigPath,
		Names:       names,
		Conf:        m.Conf,
		Iou:         m.Iou,
		InputSize:   m.InputSize,
		InputName:   m.InputName,
		OutputNames: m.OutputNames,
	}, nil
}

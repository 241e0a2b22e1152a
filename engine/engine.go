package engine

import (
	iface "CourtVision/interface"
	"errors"
	"fmt"
	"sync"
)

// Opener loads a network for a model configuration.
type Opener func(cfg iface.EngineConfig) (Backend, error)

// Model tracks one loaded network through its lifecycle:
// UNREGISTERED -> REGISTERED -> IDLE <-> BUSY.
type Model struct {
	ModelPath    string
	ConfigPath   string
	Names        []string
	Conf         float32
	Iou          float32
	UseGPU       bool
	Target       string
	InputSize    int
	InputName    string
	OutputNames  []string
	State        int
	ErrorMessage string

	mu      sync.Mutex
	open    Opener
	backend Backend
}

func (d *Model) New(open Opener) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = open
	d.State = REGISTERED
	return d.open != nil
}

func (d *Model) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return iface.EngineConfig{
		UseGPU:      d.UseGPU,
		Target:      d.Target,
		ModelPath:   d.ModelPath,
		ConfigPath:  d.ConfigPath,
		Names:       append([]string(nil), d.Names...),
		Conf:        d.Conf,
		Iou:         d.Iou,
		InputSize:   d.InputSize,
		InputName:   d.InputName,
		OutputNames: append([]string(nil), d.OutputNames...),
	}
}

// LoadModel opens the network. Any failure leaves the model REGISTERED and
// is reported as ErrModelUnavailable.
func (d *Model) LoadModel(cfg iface.EngineConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case 0, UNREGISTERED:
		return fmt.Errorf("%w: model not registered", iface.ErrModelUnavailable)
	case BUSY:
		return fmt.Errorf("%w: model is busy", iface.ErrInference)
	}
	if d.open == nil {
		return fmt.Errorf("%w: no backend opener", iface.ErrModelUnavailable)
	}
	if cfg.ModelPath == "" {
		d.ErrorMessage = "no model path configured"
		return fmt.Errorf("%w: %s", iface.ErrModelUnavailable, d.ErrorMessage)
	}
	if cfg.InputSize <= 0 {
		d.ErrorMessage = fmt.Sprintf("input size must be positive, got %d", cfg.InputSize)
		return fmt.Errorf("%w: %s", iface.ErrModelUnavailable, d.ErrorMessage)
	}
	backend, err := d.open(cfg)
	if err != nil {
		d.ErrorMessage = err.Error()
		return fmt.Errorf("%w: %s: %w", iface.ErrModelUnavailable, cfg.ModelPath, err)
	}
	if d.backend != nil {
		_ = d.backend.Close()
	}
	d.backend = backend
	d.ModelPath = cfg.ModelPath
	d.ConfigPath = cfg.ConfigPath
	d.Names = append([]string(nil), cfg.Names...)
	d.Conf = cfg.Conf
	d.Iou = cfg.Iou
	d.UseGPU = cfg.UseGPU
	d.Target = cfg.Target
	d.InputSize = cfg.InputSize
	d.InputName = cfg.InputName
	d.OutputNames = append([]string(nil), cfg.OutputNames...)
	d.ErrorMessage = ""
	d.State = IDLE
	return nil
}

// Forward runs one inference. Concurrent callers get an error rather than
// queueing; a panicking backend is reported as ErrInference.
func (d *Model) Forward(input Tensor) (out []Tensor, err error) {
	if err := input.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", iface.ErrInvalidInput, err)
	}
	d.mu.Lock()
	switch d.State {
	case 0, UNREGISTERED:
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: model not registered", iface.ErrModelUnavailable)
	case REGISTERED:
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: model not loaded", iface.ErrModelUnavailable)
	case BUSY:
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: model is busy", iface.ErrInference)
	}
	d.State = BUSY
	backend, inputName, outputNames := d.backend, d.InputName, d.OutputNames
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: backend panic: %v", iface.ErrInference, r)
		}
		d.mu.Lock()
		if d.State == BUSY {
			d.State = IDLE
		}
		d.mu.Unlock()
	}()
	out, err = backend.Forward(input, inputName, outputNames)
	if err != nil && !errors.Is(err, iface.ErrInference) {
		err = fmt.Errorf("%w: %w", iface.ErrInference, err)
	}
	return out, err
}

// WarmUp pushes n zero tensors of the given shape through the network.
func (d *Model) WarmUp(n int, shape ...int) error {
	input := NewTensor(shape...)
	for i := 0; i < n; i++ {
		if _, err := d.Forward(input); err != nil {
			return err
		}
	}
	return nil
}

func (d *Model) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend != nil {
		_ = d.backend.Close()
	}
	d.backend = nil
	d.ModelPath = ""
	d.Conf = 0
	d.Iou = 0
	d.UseGPU = false
	d.open = nil
	d.State = UNREGISTERED
}

func (d *Model) SetInputSize(size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InputSize = size
}

func (d *Model) SetBlobName(inputName string, outputNames ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InputName = inputName
	d.OutputNames = append([]string(nil), outputNames...)
}

func (d *Model) inputSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.InputSize
}

func (d *Model) thresholds() (conf, iou float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Conf, d.Iou
}

func (d *Model) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Names
}

package engine

import (
	iface "CourtVision/interface"
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

type gocvBackend struct {
	net     gocv.Net
	outputs []string
}

// OpenGocv loads models through the OpenCV DNN module.
func OpenGocv(cfg iface.EngineConfig) (Backend, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
	}
	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", cfg.ModelPath)
	}
	backend, target := preferredTarget(cfg.Target, cfg.UseGPU)
	net.SetPreferableBackend(backend)
	net.SetPreferableTarget(target)
	return &gocvBackend{net: net, outputs: getOutputLayers(net)}, nil
}

func preferredTarget(name string, useGPU bool) (gocv.NetBackendType, gocv.NetTargetType) {
	if !useGPU {
		return gocv.NetBackendDefault, gocv.NetTargetCPU
	}
	switch name {
	case "Cuda":
		return gocv.NetBackendCUDA, gocv.NetTargetCUDA
	case "OpenCL":
		return gocv.NetBackendOpenCV, gocv.NetTargetFP32
	case "Vulkan":
		return gocv.NetBackendVKCOM, gocv.NetTargetVulkan
	default:
		return gocv.NetBackendDefault, gocv.NetTargetCPU
	}
}

func getOutputLayers(net gocv.Net) []string {
	layerNames := net.GetLayerNames()
	var outputLayers []string
	for _, i := range net.GetUnconnectedOutLayers() {
		if i-1 >= 0 && i-1 < len(layerNames) {
			outputLayers = append(outputLayers, layerNames[i-1])
		}
	}
	return outputLayers
}

func (b *gocvBackend) Forward(input Tensor, inputName string, outputNames []string) ([]Tensor, error) {
	blob := gocv.NewMatWithSizes(input.Shape, gocv.MatTypeCV32F)
	defer blob.Close()
	dst, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	copy(dst, input.Data)

	b.net.SetInput(blob, inputName)
	if len(outputNames) == 0 {
		outputNames = b.outputs
	}
	outputs := b.net.ForwardLayers(outputNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	tensors := make([]Tensor, 0, len(outputs))
	for i, m := range outputs {
		if m.Empty() {
			return nil, fmt.Errorf("output %d is empty", i)
		}
		data, err := m.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		tensors = append(tensors, Tensor{
			Shape: append([]int(nil), m.Size()...),
			Data:  append([]float32(nil), data...),
		})
	}
	return tensors, nil
}

func (b *gocvBackend) Close() error {
	return b.net.Close()
}

package engine

import (
	iface "CourtVision/interface"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	mu      sync.Mutex
	outputs []Tensor
	err     error
	panics  bool
	block   chan struct{}
	inputs  []Tensor
	closed  bool
}

func (m *MockBackend) Forward(input Tensor, inputName string, outputNames []string) ([]Tensor, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if m.panics {
		panic("native crash")
	}
	return m.outputs, m.err
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func openMock(b *MockBackend) Opener {
	return func(iface.EngineConfig) (Backend, error) {
		return b, nil
	}
}

func TestModel_All(t *testing.T) {
	backend := &MockBackend{outputs: []Tensor{NewTensor(1, 2)}}
	cfg := iface.EngineConfig{
		ModelPath: "model/test_model.onnx",
		Names:     []string{"person", "car", "bicycle"},
		Conf:      0.5,
		Iou:       0.4,
		InputSize: 640,
	}
	d := &Model{}

	t.Run("Test Forward Before New", func(t *testing.T) {
		_, err := d.Forward(NewTensor(1, 3))
		assert.ErrorIs(t, err, iface.ErrModelUnavailable)
	})

	t.Run("Test New", func(t *testing.T) {
		assert.True(t, d.New(openMock(backend)))
		assert.Equal(t, REGISTERED, d.State)
	})

	t.Run("Test Forward Before Load", func(t *testing.T) {
		_, err := d.Forward(NewTensor(1, 3))
		assert.ErrorIs(t, err, iface.ErrModelUnavailable)
	})

	t.Run("Test LoadModel", func(t *testing.T) {
		require.NoError(t, d.LoadModel(cfg))
		assert.Equal(t, IDLE, d.State)
	})

	t.Run("Test CheckConfig", func(t *testing.T) {
		got := d.CheckConfig()
		assert.Equal(t, cfg.ModelPath, got.ModelPath)
		assert.Equal(t, float32(0.5), got.Conf)
		assert.Equal(t, float32(0.4), got.Iou)
		assert.False(t, got.UseGPU)
		assert.Equal(t, []string{"person", "car", "bicycle"}, got.Names)
	})

	t.Run("Test Forward", func(t *testing.T) {
		out, err := d.Forward(NewTensor(1, 3))
		require.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, IDLE, d.State)
	})

	t.Run("Test Forward Rejects Bad Tensor", func(t *testing.T) {
		_, err := d.Forward(Tensor{Shape: []int{2, 2}, Data: make([]float32, 3)})
		assert.ErrorIs(t, err, iface.ErrInvalidInput)
	})

	t.Run("Test SetBlobName", func(t *testing.T) {
		d.SetInputSize(1280)
		d.SetBlobName("images", "output0", "output1")
		got := d.CheckConfig()
		assert.Equal(t, 1280, got.InputSize)
		assert.Equal(t, "images", got.InputName)
		assert.Equal(t, []string{"output0", "output1"}, got.OutputNames)
	})

	t.Run("Test Destroy", func(t *testing.T) {
		d.Destroy()
		assert.Equal(t, "", d.ModelPath)
		assert.Equal(t, float32(0), d.Conf)
		assert.Equal(t, float32(0), d.Iou)
		assert.False(t, d.UseGPU)
		assert.Equal(t, UNREGISTERED, d.State)
		assert.True(t, backend.closed)
	})
}

func TestModel_LoadFailures(t *testing.T) {
	t.Run("Test Opener Error", func(t *testing.T) {
		d := &Model{}
		d.New(func(iface.EngineConfig) (Backend, error) { return nil, errors.New("no such file") })
		err := d.LoadModel(iface.EngineConfig{ModelPath: "x.onnx", InputSize: 640})
		assert.ErrorIs(t, err, iface.ErrModelUnavailable)
		assert.Equal(t, REGISTERED, d.State)
		assert.Equal(t, "no such file", d.ErrorMessage)
	})

	t.Run("Test Missing Path", func(t *testing.T) {
		d := &Model{}
		d.New(openMock(&MockBackend{}))
		assert.ErrorIs(t, d.LoadModel(iface.EngineConfig{InputSize: 640}), iface.ErrModelUnavailable)
	})

	t.Run("Test Nil Opener", func(t *testing.T) {
		d := &Model{}
		assert.False(t, d.New(nil))
		assert.ErrorIs(t, d.LoadModel(iface.EngineConfig{ModelPath: "x.onnx", InputSize: 640}), iface.ErrModelUnavailable)
	})
}

func TestModel_ForwardFailures(t *testing.T) {
	load := func(t *testing.T, b *MockBackend) *Model {
		d := &Model{}
		d.New(openMock(b))
		require.NoError(t, d.LoadModel(iface.EngineConfig{ModelPath: "x.onnx", InputSize: 640}))
		return d
	}

	t.Run("Test Backend Error", func(t *testing.T) {
		d := load(t, &MockBackend{err: errors.New("shape mismatch")})
		_, err := d.Forward(NewTensor(1))
		assert.ErrorIs(t, err, iface.ErrInference)
		assert.Equal(t, IDLE, d.State)
	})

	t.Run("Test Backend Panic", func(t *testing.T) {
		d := load(t, &MockBackend{panics: true})
		_, err := d.Forward(NewTensor(1))
		assert.ErrorIs(t, err, iface.ErrInference)
		assert.Equal(t, IDLE, d.State)
	})

	t.Run("Test Busy", func(t *testing.T) {
		b := &MockBackend{block: make(chan struct{})}
		d := load(t, b)
		done := make(chan error)
		go func() {
			_, err := d.Forward(NewTensor(1))
			done <- err
		}()
		require.Eventually(t, func() bool {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.State == BUSY
		}, time.Second, time.Millisecond)

		_, err := d.Forward(NewTensor(1))
		assert.ErrorIs(t, err, iface.ErrInference)
		close(b.block)
		assert.NoError(t, <-done)
	})

	t.Run("Test WarmUp", func(t *testing.T) {
		b := &MockBackend{}
		d := load(t, b)
		require.NoError(t, d.WarmUp(3, 1, 3, 8, 8))
		assert.Equal(t, 3, b.calls())
		assert.Equal(t, []int{1, 3, 8, 8}, b.inputs[0].Shape)
	})
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(path, []byte("play\r\nno-play\r\n\n"), 0o644))
	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"play", "no-play"}, lines)

	_, err = ReadLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

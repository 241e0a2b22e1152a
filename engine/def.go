package engine

import (
	"fmt"
	"os"
	"strings"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

const (
	TaskDetect  = "detect"
	TaskSegment = "segment"
	TaskPose    = "pose"
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

func (t Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) check() error {
	if len(t.Shape) == 0 || t.Len() != len(t.Data) {
		return fmt.Errorf("tensor shape %v does not match %d values", t.Shape, len(t.Data))
	}
	return nil
}

// Backend runs a loaded network. Forward must be safe to call from one
// goroutine at a time; Model takes care of that.
type Backend interface {
	Forward(input Tensor, inputName string, outputNames []string) ([]Tensor, error)
	Close() error
}

// ReadLines reads a names file, one label per line. CRLF endings and blank
// lines are dropped.
func ReadLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(b), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

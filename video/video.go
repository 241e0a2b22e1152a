package video

import (
	iface "CourtVision/interface"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

type Info struct {
	Path        string
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
}

// Source decodes a video file frame by frame.
type Source struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	info    Info
	index   int64
}

// Open fails with an error wrapping os.ErrNotExist when path is missing.
func Open(path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: no decoder", path)
	}
	info := Info{
		Path:        path,
		FPS:         capture.Get(gocv.VideoCaptureFPS),
		TotalFrames: int(capture.Get(gocv.VideoCaptureFrameCount)),
		Width:       int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}
	if info.FPS <= 0 {
		info.FPS = 30
	}
	return &Source{capture: capture, mat: gocv.NewMat(), info: info}, nil
}

func (s *Source) Info() Info {
	return s.info
}

// Next returns the next frame; ok is false at the end of the stream.
func (s *Source) Next() (frame iface.Frame, ok bool, err error) {
	if !s.capture.Read(&s.mat) || s.mat.Empty() {
		return iface.Frame{}, false, nil
	}
	ts := time.Duration(float64(s.index) / s.info.FPS * float64(time.Second))
	frame, err = MatToFrame(s.mat, s.index, ts)
	if err != nil {
		return iface.Frame{}, false, err
	}
	s.index++
	return frame, true, nil
}

func (s *Source) Close() error {
	return errors.Join(s.mat.Close(), s.capture.Close())
}

// Sink encodes frames into a video file.
type Sink struct {
	writer *gocv.VideoWriter
	path   string
	frames int
}

func Create(path, codec string, fps float64, width, height int) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	writer, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("create video %s: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("create video %s: codec %s not available", path, codec)
	}
	return &Sink{writer: writer, path: path}, nil
}

func (s *Sink) Write(m gocv.Mat) error {
	if err := s.writer.Write(m); err != nil {
		return fmt.Errorf("write %s frame %d: %w", s.path, s.frames, err)
	}
	s.frames++
	return nil
}

func (s *Sink) WriteFrame(f iface.Frame) error {
	m, err := FrameToMat(f)
	if err != nil {
		return err
	}
	defer m.Close()
	return s.Write(m)
}

func (s *Sink) Frames() int {
	return s.frames
}

func (s *Sink) Path() string {
	return s.path
}

func (s *Sink) Close() error {
	return s.writer.Close()
}

// OutputPath names the annotated copy of input inside dir.
func OutputPath(dir, input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, "output_"+stem+".mp4")
}

// MatToFrame copies an 8-bit Mat into a Frame.
func MatToFrame(m gocv.Mat, index int64, ts time.Duration) (iface.Frame, error) {
	f := iface.Frame{
		Index:     index,
		Timestamp: ts,
		Width:     m.Cols(),
		Height:    m.Rows(),
		Channels:  m.Channels(),
		Data:      m.ToBytes(),
	}
	if err := f.Validate(); err != nil {
		return iface.Frame{}, err
	}
	return f, nil
}

// FrameToMat returns a Mat that owns a copy of the frame's pixels.
func FrameToMat(f iface.Frame) (gocv.Mat, error) {
	if err := f.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	default:
		mt = gocv.MatTypeCV8UC4
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer src.Close()
	return src.Clone(), nil
}

// DecodeImage turns an encoded image (jpeg, png, ...) into a BGR Frame.
func DecodeImage(buf []byte, index int64) (iface.Frame, error) {
	m, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return iface.Frame{}, fmt.Errorf("%w: %w", iface.ErrInvalidInput, err)
	}
	defer m.Close()
	if m.Empty() {
		return iface.Frame{}, fmt.Errorf("%w: image could not be decoded", iface.ErrInvalidInput)
	}
	return MatToFrame(m, index, 0)
}

package engine

import (
	iface "CourtVision/interface"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// Letterbox maps between frame pixels and the square, padded network input.
type Letterbox struct {
	Width, Height int
	Size          int
	Scale         float32
	PadX, PadY    float32
}

func NewLetterbox(width, height, size int) Letterbox {
	scale := math.Min(float64(size)/float64(width), float64(size)/float64(height))
	nw := int(math.Round(float64(width) * scale))
	nh := int(math.Round(float64(height) * scale))
	return Letterbox{
		Width:  width,
		Height: height,
		Size:   size,
		Scale:  float32(scale),
		PadX:   float32((size - nw) / 2),
		PadY:   float32((size - nh) / 2),
	}
}

func (l Letterbox) resized() (int, int) {
	return int(math.Round(float64(l.Width) * float64(l.Scale))), int(math.Round(float64(l.Height) * float64(l.Scale)))
}

// ToFrame converts an input-space point to frame pixels, clamped to the frame.
func (l Letterbox) ToFrame(x, y float32) (float32, float32) {
	fx := (x - l.PadX) / l.Scale
	fy := (y - l.PadY) / l.Scale
	return clamp(fx, 0, float32(l.Width)), clamp(fy, 0, float32(l.Height))
}

// ToInput converts a frame pixel to input space.
func (l Letterbox) ToInput(x, y float32) (float32, float32) {
	return x*l.Scale + l.PadX, y*l.Scale + l.PadY
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// frameMat wraps a frame as a 3-channel BGR Mat owned by the caller.
func frameMat(f iface.Frame) (gocv.Mat, error) {
	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.NewMat(), fmt.Errorf("%w: %d channels", iface.ErrInvalidInput, f.Channels)
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %w", iface.ErrInvalidInput, err)
	}
	defer src.Close()
	if f.Channels == 3 {
		return src.Clone(), nil
	}
	bgr := gocv.NewMat()
	if f.Channels == 1 {
		gocv.CvtColor(src, &bgr, gocv.ColorGrayToBGR)
	} else {
		gocv.CvtColor(src, &bgr, gocv.ColorBGRAToBGR)
	}
	return bgr, nil
}

// letterboxTensor scales the frame into a size x size RGB input in [0,1],
// padding with grey, as a [1,3,size,size] tensor.
func letterboxTensor(f iface.Frame, size int) (Tensor, Letterbox, error) {
	lb := NewLetterbox(f.Width, f.Height, size)
	src, err := frameMat(f)
	if err != nil {
		return Tensor{}, lb, err
	}
	defer src.Close()

	nw, nh := lb.resized()
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(nw, nh), 0, 0, gocv.InterpolationLinear)

	left, top := int(lb.PadX), int(lb.PadY)
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(resized, &padded, top, size-nh-top, left, size-nw-left,
		gocv.BorderConstant, color.RGBA{R: 114, G: 114, B: 114, A: 0})

	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	data, err := blob.DataPtrFloat32()
	if err != nil {
		return Tensor{}, lb, fmt.Errorf("%w: %w", iface.ErrInference, err)
	}
	return Tensor{Shape: []int{1, 3, size, size}, Data: append([]float32(nil), data...)}, lb, nil
}

// clipTensor resizes every frame of the clip to size x size and normalizes
// it into a [1,T,3,size,size] tensor.
func clipTensor(clip []iface.Frame, size int, mean, std []float32) (Tensor, error) {
	t := NewTensor(1, len(clip), 3, size, size)
	plane := size * size
	for i, f := range clip {
		src, err := frameMat(f)
		if err != nil {
			return Tensor{}, err
		}
		resized := gocv.NewMat()
		gocv.Resize(src, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
		bgr := resized.ToBytes()
		resized.Close()
		src.Close()
		if len(bgr) != plane*3 {
			return Tensor{}, fmt.Errorf("%w: resized frame %d has %d bytes", iface.ErrInference, f.Index, len(bgr))
		}
		normalizeInto(t.Data[i*3*plane:(i+1)*3*plane], bgr, plane, mean, std)
	}
	return t, nil
}

// normalizeInto writes interleaved BGR bytes as planar RGB, scaled to [0,1]
// then standardized per channel.
func normalizeInto(dst []float32, bgr []byte, plane int, mean, std []float32) {
	for p := 0; p < plane; p++ {
		for c := 0; c < 3; c++ {
			v := float32(bgr[p*3+2-c]) / 255
			dst[c*plane+p] = (v - mean[c]) / std[c]
		}
	}
}

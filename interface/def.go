package iface

import "fmt"

type Position struct {
	X, Y float32
}

type Box struct {
	LT Position
	RT Position
	RB Position
	LB Position
}

// BoundingBox is an axis-aligned detection in frame pixel coordinates.
type BoundingBox struct {
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
	Confidence float32 `json:"confidence"`
	Label      string  `json:"label"`
}

func (b BoundingBox) Corners() Box {
	return Box{
		LT: Position{X: b.X1, Y: b.Y1},
		RT: Position{X: b.X2, Y: b.Y1},
		RB: Position{X: b.X2, Y: b.Y2},
		LB: Position{X: b.X1, Y: b.Y2},
	}
}

func (b BoundingBox) Center() Position {
	return Position{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

func (b BoundingBox) Area() float32 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Mask is a binary frame-sized mask, one byte per pixel (0 or 1).
type Mask struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Data   []uint8 `json:"-"`
}

// Valid reports whether Data holds exactly Width*Height bytes.
func (m Mask) Valid() bool {
	return m.Width > 0 && m.Height > 0 && len(m.Data) == m.Width*m.Height
}

// At is false outside the mask and for every pixel of an invalid mask.
func (m Mask) At(x, y int) bool {
	if !m.Valid() || x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Data[y*m.Width+x] != 0
}

// Pixels counts set pixels.
func (m Mask) Pixels() int {
	if !m.Valid() {
		return 0
	}
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

type Segmentation struct {
	Mask       Mask        `json:"mask"`
	Box        BoundingBox `json:"box"`
	Confidence float32     `json:"confidence"`
	Label      string      `json:"label"`
}

type Pose struct {
	Box       BoundingBox               `json:"box"`
	Keypoints map[KeypointName]Keypoint `json:"keypoints"`
}

// Keypoint returns the named keypoint; ok is false when it was not detected.
func (p Pose) Keypoint(name KeypointName) (Keypoint, bool) {
	kp, ok := p.Keypoints[name]
	return kp, ok
}

type DetectionKind int

const (
	KindBoundingBox DetectionKind = iota + 1
	KindSegmentation
	KindPose
)

func (k DetectionKind) String() string {
	switch k {
	case KindBoundingBox:
		return "bbox"
	case KindSegmentation:
		return "segmentation"
	case KindPose:
		return "pose"
	default:
		return "unknown"
	}
}

func (k DetectionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DetectionKind) UnmarshalText(b []byte) error {
	for _, v := range []DetectionKind{KindBoundingBox, KindSegmentation, KindPose} {
		if v.String() == string(b) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown detection kind %q", b)
}

// Detection is a tagged union; exactly the field matching Kind is set.
type Detection struct {
	Kind    DetectionKind `json:"kind"`
	Box     *BoundingBox  `json:"box,omitempty"`
	Segment *Segmentation `json:"segment,omitempty"`
	Pose    *Pose         `json:"pose,omitempty"`
}

func BoxDetection(b BoundingBox) Detection {
	return Detection{Kind: KindBoundingBox, Box: &b}
}

func SegmentDetection(s Segmentation) Detection {
	return Detection{Kind: KindSegmentation, Segment: &s}
}

func PoseDetection(p Pose) Detection {
	return Detection{Kind: KindPose, Pose: &p}
}

// Confidence returns the score of whichever variant is set, 0 when the
// variant named by Kind is nil.
func (d Detection) Confidence() float32 {
	switch {
	case d.Kind == KindBoundingBox && d.Box != nil:
		return d.Box.Confidence
	case d.Kind == KindSegmentation && d.Segment != nil:
		return d.Segment.Confidence
	case d.Kind == KindPose && d.Pose != nil:
		return d.Pose.Box.Confidence
	}
	return 0
}

// Bounds returns the bounding box of whichever variant is set.
func (d Detection) Bounds() BoundingBox {
	switch {
	case d.Kind == KindBoundingBox && d.Box != nil:
		return *d.Box
	case d.Kind == KindSegmentation && d.Segment != nil:
		return d.Segment.Box
	case d.Kind == KindPose && d.Pose != nil:
		return d.Pose.Box
	}
	return BoundingBox{}
}

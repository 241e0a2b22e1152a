package engine

import (
	iface "CourtVision/interface"
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// Keypoints scoring below keypointMinConfidence are reported as absent.
const keypointMinConfidence = 0.5

const maskThreshold = 0.5

type candidate struct {
	box    iface.BoundingBox
	class  int
	anchor int
}

// anchors reads a YOLO head of shape [1, attrs, N].
type anchors struct {
	attrs, n int
	data     []float32
}

func newAnchors(t Tensor, minAttrs int) (anchors, error) {
	if err := t.check(); err != nil {
		return anchors{}, fmt.Errorf("%w: %w", iface.ErrInference, err)
	}
	if len(t.Shape) != 3 || t.Shape[0] != 1 || t.Shape[1] < minAttrs {
		return anchors{}, fmt.Errorf("%w: unexpected output shape %v", iface.ErrInference, t.Shape)
	}
	return anchors{attrs: t.Shape[1], n: t.Shape[2], data: t.Data}, nil
}

func (a anchors) at(attr, anchor int) float32 {
	return a.data[attr*a.n+anchor]
}

// candidates keeps anchors whose best class score reaches conf, with boxes
// mapped back to frame pixels.
func (a anchors) candidates(numClasses int, conf float32, lb Letterbox) []candidate {
	var out []candidate
	for i := 0; i < a.n; i++ {
		best, score := 0, float32(-1)
		for c := 0; c < numClasses; c++ {
			if s := a.at(4+c, i); s > score {
				best, score = c, s
			}
		}
		if score < conf {
			continue
		}
		cx, cy, w, h := a.at(0, i), a.at(1, i), a.at(2, i), a.at(3, i)
		x1, y1 := lb.ToFrame(cx-w/2, cy-h/2)
		x2, y2 := lb.ToFrame(cx+w/2, cy+h/2)
		out = append(out, candidate{
			box:    iface.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2, Confidence: score},
			class:  best,
			anchor: i,
		})
	}
	return out
}

// nms runs class-aware non-maximum suppression and returns the survivors
// sorted by descending confidence.
func nms(cands []candidate, iou float32) []candidate {
	byClass := map[int][]candidate{}
	for _, c := range cands {
		byClass[c.class] = append(byClass[c.class], c)
	}
	var kept []candidate
	for _, group := range byClass {
		rects := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, c := range group {
			rects[i] = image.Rect(int(c.box.X1), int(c.box.Y1), int(math.Ceil(float64(c.box.X2))), int(math.Ceil(float64(c.box.Y2))))
			scores[i] = c.box.Confidence
		}
		for _, idx := range gocv.NMSBoxes(rects, scores, 0, iou) {
			kept = append(kept, group[idx])
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].box.Confidence != kept[j].box.Confidence {
			return kept[i].box.Confidence > kept[j].box.Confidence
		}
		return kept[i].anchor < kept[j].anchor
	})
	return kept
}

func label(names []string, class int) string {
	if class >= 0 && class < len(names) {
		return names[class]
	}
	return fmt.Sprintf("class_%d", class)
}

// decodeBoxes decodes a [1, 4+C, N] detection head.
func decodeBoxes(out Tensor, names []string, conf, iou float32, lb Letterbox) ([]iface.BoundingBox, error) {
	a, err := newAnchors(out, 5)
	if err != nil {
		return nil, err
	}
	boxes := []iface.BoundingBox{}
	for _, c := range nms(a.candidates(a.attrs-4, conf, lb), iou) {
		c.box.Label = label(names, c.class)
		boxes = append(boxes, c.box)
	}
	return boxes, nil
}

// decodePoses decodes a single-class [1, 5+17*3, N] pose head.
func decodePoses(out Tensor, names []string, conf, iou float32, lb Letterbox) ([]iface.Pose, error) {
	a, err := newAnchors(out, 5+iface.KeypointCount*3)
	if err != nil {
		return nil, err
	}
	if a.attrs != 5+iface.KeypointCount*3 {
		return nil, fmt.Errorf("%w: pose output has %d attributes", iface.ErrInference, a.attrs)
	}
	poses := []iface.Pose{}
	for _, c := range nms(a.candidates(1, conf, lb), iou) {
		c.box.Label = label(names, 0)
		if len(names) == 0 {
			c.box.Label = "person"
		}
		kps := map[iface.KeypointName]iface.Keypoint{}
		for k := 0; k < iface.KeypointCount; k++ {
			base := 5 + k*3
			score := a.at(base+2, c.anchor)
			if score < keypointMinConfidence {
				continue
			}
			x, y := lb.ToFrame(a.at(base, c.anchor), a.at(base+1, c.anchor))
			kps[iface.KeypointName(k)] = iface.Keypoint{X: x, Y: y, Confidence: score}
		}
		poses = append(poses, iface.Pose{Box: c.box, Keypoints: kps})
	}
	return poses, nil
}

// decodeSegments decodes a [1, 4+C+M, N] head with its [1, M, mh, mw]
// prototype masks into frame-sized binary masks cropped to each box.
func decodeSegments(out, protos Tensor, names []string, conf, iou float32, lb Letterbox) ([]iface.Segmentation, error) {
	if err := protos.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", iface.ErrInference, err)
	}
	if len(protos.Shape) != 4 || protos.Shape[0] != 1 {
		return nil, fmt.Errorf("%w: unexpected prototype shape %v", iface.ErrInference, protos.Shape)
	}
	m, mh, mw := protos.Shape[1], protos.Shape[2], protos.Shape[3]
	a, err := newAnchors(out, 5+m)
	if err != nil {
		return nil, err
	}
	numClasses := a.attrs - 4 - m

	segs := []iface.Segmentation{}
	for _, c := range nms(a.candidates(numClasses, conf, lb), iou) {
		c.box.Label = label(names, c.class)
		coef := make([]float32, m)
		for k := range coef {
			coef[k] = a.at(4+numClasses+k, c.anchor)
		}
		segs = append(segs, iface.Segmentation{
			Mask:       frameMask(coef, protos.Data, mh, mw, c.box, lb),
			Box:        c.box,
			Confidence: c.box.Confidence,
			Label:      c.box.Label,
		})
	}
	return segs, nil
}

func frameMask(coef, protos []float32, mh, mw int, box iface.BoundingBox, lb Letterbox) iface.Mask {
	mask := iface.Mask{Width: lb.Width, Height: lb.Height, Data: make([]uint8, lb.Width*lb.Height)}
	plane := mh * mw
	cache := make(map[int]bool)
	sx := float32(mw) / float32(lb.Size)
	sy := float32(mh) / float32(lb.Size)

	x0, y0 := int(box.X1), int(box.Y1)
	x1 := min(int(math.Ceil(float64(box.X2))), lb.Width)
	y1 := min(int(math.Ceil(float64(box.Y2))), lb.Height)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			ix, iy := lb.ToInput(float32(x)+0.5, float32(y)+0.5)
			px := min(max(int(ix*sx), 0), mw-1)
			py := min(max(int(iy*sy), 0), mh-1)
			p := py*mw + px
			on, ok := cache[p]
			if !ok {
				var v float32
				for k, w := range coef {
					v += w * protos[k*plane+p]
				}
				on = sigmoid(v) > maskThreshold
				cache[p] = on
			}
			if on {
				mask.Data[y*lb.Width+x] = 1
			}
		}
	}
	return mask
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

// softmax subtracts the largest logit before exponentiating.
func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v - maxV))
		sum += exps[i]
	}
	for i := range exps {
		out[i] = float32(exps[i] / sum)
	}
	return out
}

package video

import (
	iface "CourtVision/interface"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	actionColor = color.RGBA{R: 255, G: 64, B: 64, A: 0}
	ballColor   = color.RGBA{R: 255, G: 215, B: 0, A: 0}
	playerColor = color.RGBA{R: 0, G: 200, B: 255, A: 0}
	courtColor  = color.RGBA{R: 0, G: 160, B: 80, A: 0}
	playColor   = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	noPlayColor = color.RGBA{R: 200, G: 0, B: 0, A: 0}
	textColor   = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Renderer draws a FrameResult onto a copy of its frame.
type Renderer struct {
	Thickness int
	// MaskAlpha is the opacity of court masks.
	MaskAlpha float64
	FontScale float64
}

func NewRenderer() *Renderer {
	return &Renderer{Thickness: 2, MaskAlpha: 0.35, FontScale: 0.5}
}

// Render returns the annotated image; the caller closes it. frame is not
// modified.
func (r *Renderer) Render(frame iface.Frame, res iface.FrameResult) (gocv.Mat, error) {
	if err := frame.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	base := frame.Clone()
	for _, seg := range res.Court {
		blendMask(base, seg.Mask, courtColor, r.MaskAlpha)
	}
	canvas, err := FrameToMat(base)
	if err != nil {
		return gocv.NewMat(), err
	}

	for _, box := range res.Actions {
		r.drawBox(&canvas, box, actionColor)
	}
	for _, seg := range res.Court {
		r.drawBox(&canvas, seg.Box, courtColor)
	}
	for _, p := range res.Players {
		r.drawPose(&canvas, p)
	}
	if res.Ball != nil {
		r.drawBall(&canvas, *res.Ball)
	}
	r.drawBanner(&canvas, res)
	return canvas, nil
}

// RenderFrame is Render returning a Frame instead of a Mat.
func (r *Renderer) RenderFrame(frame iface.Frame, res iface.FrameResult) (iface.Frame, error) {
	m, err := r.Render(frame, res)
	if err != nil {
		return iface.Frame{}, err
	}
	defer m.Close()
	return MatToFrame(m, frame.Index, frame.Timestamp)
}

func rect(b iface.BoundingBox) image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

func (r *Renderer) drawBox(canvas *gocv.Mat, b iface.BoundingBox, c color.RGBA) {
	gocv.Rectangle(canvas, rect(b), c, r.Thickness)
	if b.Label == "" {
		return
	}
	label := fmt.Sprintf("%s %.2f", b.Label, b.Confidence)
	gocv.PutText(canvas, label, image.Pt(int(b.X1), max(int(b.Y1)-5, 10)), gocv.FontHersheySimplex, r.FontScale, c, 1)
}

func (r *Renderer) drawBall(canvas *gocv.Mat, d iface.Detection) {
	b := d.Bounds()
	center := b.Center()
	radius := max(int((b.X2-b.X1+b.Y2-b.Y1)/4), 3)
	gocv.Circle(canvas, image.Pt(int(center.X), int(center.Y)), radius, ballColor, r.Thickness)
}

func (r *Renderer) drawPose(canvas *gocv.Mat, p iface.Pose) {
	gocv.Rectangle(canvas, rect(p.Box), playerColor, 1)
	for _, limb := range iface.Skeleton {
		a, okA := p.Keypoint(limb[0])
		b, okB := p.Keypoint(limb[1])
		if !okA || !okB {
			continue
		}
		gocv.Line(canvas, image.Pt(int(a.X), int(a.Y)), image.Pt(int(b.X), int(b.Y)), playerColor, r.Thickness)
	}
	for _, kp := range p.Keypoints {
		gocv.Circle(canvas, image.Pt(int(kp.X), int(kp.Y)), 3, playerColor, -1)
	}
}

func (r *Renderer) drawBanner(canvas *gocv.Mat, res iface.FrameResult) {
	bg := color.RGBA{R: 64, G: 64, B: 64, A: 0}
	switch res.GameState.State {
	case iface.StatePlay:
		bg = playColor
	case iface.StateNoPlay:
		bg = noPlayColor
	}
	text := fmt.Sprintf("frame %d  %s %.2f", res.Index, res.GameState.State, res.GameState.Confidence)
	gocv.Rectangle(canvas, image.Rect(0, 0, min(canvas.Cols(), 260), min(canvas.Rows(), 24)), bg, -1)
	gocv.PutText(canvas, text, image.Pt(6, 17), gocv.FontHersheySimplex, r.FontScale, textColor, 1)
}

// blendMask tints the pixels of f covered by m. f must be a private copy.
func blendMask(f iface.Frame, m iface.Mask, c color.RGBA, alpha float64) {
	if !m.Valid() || m.Width != f.Width || m.Height != f.Height || f.Channels < 3 ||
		len(f.Data) != f.Width*f.Height*f.Channels {
		return
	}
	// frames are BGR
	tint := [3]float64{float64(c.B), float64(c.G), float64(c.R)}
	for p, on := range m.Data {
		if on == 0 {
			continue
		}
		px := f.Data[p*f.Channels : p*f.Channels+3]
		for i := range px {
			px[i] = uint8(float64(px[i])*(1-alpha) + tint[i]*alpha)
		}
	}
}

package chart

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"CourtVision/session"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Timeline charts the probability of play over a run and saves it as
// timeline_<stem>.png when the run finishes. It is a session.Consumer.
type Timeline struct {
	OutputDir string

	play    plotter.XYs
	players plotter.XYs
	maxPlay int
	log     *zap.Logger
}

func NewTimeline(outputDir string) *Timeline {
	return &Timeline{OutputDir: outputDir, log: logger.Named("chart")}
}

func (t *Timeline) Start(session.RunInfo) error {
	t.play = t.play[:0]
	t.players = t.players[:0]
	t.maxPlay = 0
	return nil
}

// Consume records P(play) per frame. Frames before the first classification
// are left out.
func (t *Timeline) Consume(_ iface.Frame, res iface.FrameResult) error {
	x := float64(res.Index)
	switch res.GameState.State {
	case iface.StatePlay:
		t.play = append(t.play, plotter.XY{X: x, Y: float64(res.GameState.Confidence)})
	case iface.StateNoPlay:
		t.play = append(t.play, plotter.XY{X: x, Y: 1 - float64(res.GameState.Confidence)})
	}
	t.players = append(t.players, plotter.XY{X: x, Y: float64(len(res.Players))})
	t.maxPlay = max(t.maxPlay, len(res.Players))
	return nil
}

func (t *Timeline) Points() plotter.XYs {
	return append(plotter.XYs(nil), t.play...)
}

func (t *Timeline) Finish(run session.RunInfo, _ int64) error {
	if len(t.players) == 0 {
		return nil
	}
	path := t.Path(run.Video.Path)
	if err := t.Save(path, filepath.Base(run.Video.Path)); err != nil {
		return err
	}
	t.log.Info("timeline saved", zap.String("run", run.ID), zap.String("path", path))
	return nil
}

func (t *Timeline) Path(video string) string {
	stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	return filepath.Join(t.OutputDir, fmt.Sprintf("timeline_%s.png", stem))
}

// Save writes the chart to path. Player counts are scaled into [0,1].
func (t *Timeline) Save(path, title string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Game State", title)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "P(play)"
	p.Y.Min = 0
	p.Y.Max = 1

	if len(t.play) > 0 {
		playLine, err := plotter.NewLine(t.play)
		if err != nil {
			return fmt.Errorf("play line: %w", err)
		}
		playLine.Width = vg.Points(1.5)
		playLine.Color = color.RGBA{G: 160, A: 255}
		p.Add(playLine)
		p.Legend.Add("P(play)", playLine)
	}

	if t.maxPlay > 0 {
		scaled := make(plotter.XYs, len(t.players))
		for i, pt := range t.players {
			scaled[i] = plotter.XY{X: pt.X, Y: pt.Y / float64(t.maxPlay)}
		}
		playersLine, err := plotter.NewLine(scaled)
		if err != nil {
			return fmt.Errorf("players line: %w", err)
		}
		playersLine.Width = vg.Points(1)
		playersLine.Color = color.RGBA{B: 200, A: 255}
		p.Add(playersLine)
		p.Legend.Add(fmt.Sprintf("players / %d", t.maxPlay), playersLine)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

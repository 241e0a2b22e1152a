package session

import (
	iface "CourtVision/interface"
	"CourtVision/video"
)

// VideoOutput renders every result and writes output_<stem>.mp4 into Dir.
type VideoOutput struct {
	Dir      string
	Codec    string
	Renderer *video.Renderer

	sink *video.Sink
}

func NewVideoOutput(dir, codec string) *VideoOutput {
	return &VideoOutput{Dir: dir, Codec: codec, Renderer: video.NewRenderer()}
}

func (o *VideoOutput) Start(run RunInfo) error {
	sink, err := video.Create(video.OutputPath(o.Dir, run.Video.Path), o.Codec, run.Video.FPS, run.Video.Width, run.Video.Height)
	if err != nil {
		return err
	}
	o.sink = sink
	return nil
}

func (o *VideoOutput) Consume(frame iface.Frame, result iface.FrameResult) error {
	m, err := o.Renderer.Render(frame, result)
	if err != nil {
		return err
	}
	defer m.Close()
	return o.sink.Write(m)
}

func (o *VideoOutput) Finish(RunInfo, int64) error {
	if o.sink == nil {
		return nil
	}
	err := o.sink.Close()
	o.sink = nil
	return err
}

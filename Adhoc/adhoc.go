package Adhoc

import (
	iface "CourtVision/interface"
	"CourtVision/logger"
	"CourtVision/session"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TimeOutSeconds = 5
	Role           = "courtvision"
)

type RegisterRequest struct {
	Id        string `json:"id"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	Role      string `json:"role"`
	TimeStamp int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type ProgressReport struct {
	Id          string  `json:"id"`
	RunID       string  `json:"runId"`
	Video       string  `json:"video"`
	Frame       int64   `json:"frame"`
	TotalFrames int     `json:"totalFrames"`
	GameState   string  `json:"gameState"`
	Confidence  float32 `json:"confidence"`
	Finished    bool    `json:"finished"`
	TimeStamp   int64   `json:"timestamp"`
}

// Reporter keeps a coordinator informed: a periodic heartbeat while the
// process is up and progress reports while videos are processed. Reporting
// failures are logged and never stop processing.
type Reporter struct {
	id       string
	client   *resty.Client
	interval time.Duration
	every    int64
	log      *zap.Logger

	IP   string
	Port int

	mu    sync.Mutex
	run   session.RunInfo
	total int
}

func NewReporter(host string, port int, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	client := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s:%d", host, port)).
		SetTimeout(TimeOutSeconds*time.Second).
		SetHeader("Content-Type", "application/json")
	return &Reporter{
		id:       uuid.NewString(),
		client:   client,
		interval: interval,
		every:    30,
		log:      logger.Named("adhoc"),
	}
}

func (r *Reporter) ID() string {
	return r.id
}

// SetProgressEvery sets how many frames pass between progress reports.
func (r *Reporter) SetProgressEvery(n int) {
	if n > 0 {
		r.every = int64(n)
	}
}

// Heartbeat registers this instance once.
func (r *Reporter) Heartbeat(ctx context.Context) error {
	var respBody RegisterResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(RegisterRequest{
			Id:        r.id,
			IP:        r.IP,
			Port:      r.Port,
			Role:      Role,
			TimeStamp: time.Now().Unix(),
		}).
		SetResult(&respBody).
		Post("/api/register")
	if err != nil {
		return fmt.Errorf("register request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	if !respBody.Success {
		return fmt.Errorf("registration of %s rejected", r.id)
	}
	return nil
}

// SendAliveMessage sends a heartbeat right away and then once per interval
// until ctx is done.
func (r *Reporter) SendAliveMessage(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	safeDoRequest := func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error(fmt.Sprintf("SendAliveMessage panic recovered: %v", p))
			}
		}()
		if err := r.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("heartbeat failed", zap.Error(err))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}

func (r *Reporter) report(p ProgressReport) {
	p.Id = r.id
	p.TimeStamp = time.Now().Unix()
	resp, err := r.client.R().SetBody(p).Post("/api/progress")
	if err != nil {
		r.log.Warn("progress report failed", zap.String("run", p.RunID), zap.Error(err))
		return
	}
	if resp.IsError() {
		r.log.Warn("progress report rejected", zap.String("run", p.RunID), zap.String("status", resp.Status()))
	}
}

func (r *Reporter) Start(run session.RunInfo) error {
	r.mu.Lock()
	r.run = run
	r.total = run.Video.TotalFrames
	r.mu.Unlock()
	r.report(ProgressReport{RunID: run.ID, Video: run.Video.Path, TotalFrames: run.Video.TotalFrames, GameState: iface.StateUnknown.String()})
	return nil
}

func (r *Reporter) Consume(_ iface.Frame, res iface.FrameResult) error {
	if (res.Index+1)%r.every != 0 {
		return nil
	}
	r.mu.Lock()
	run, total := r.run, r.total
	r.mu.Unlock()
	r.report(ProgressReport{
		RunID:       run.ID,
		Video:       run.Video.Path,
		Frame:       res.Index + 1,
		TotalFrames: total,
		GameState:   res.GameState.State.String(),
		Confidence:  res.GameState.Confidence,
	})
	return nil
}

func (r *Reporter) Finish(run session.RunInfo, frames int64) error {
	r.report(ProgressReport{RunID: run.ID, Video: run.Video.Path, Frame: frames, TotalFrames: run.Video.TotalFrames, Finished: true})
	return nil
}

// GetOutboundIP returns the local address used to reach the internet. No
// packet is sent.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

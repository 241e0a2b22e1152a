package main

import (
	adhoc "CourtVision/Adhoc"
	"CourtVision/chart"
	"CourtVision/config"
	"CourtVision/engine"
	"CourtVision/logger"
	"CourtVision/manager"
	"CourtVision/monitor"
	"CourtVision/session"
	"CourtVision/store"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process [video...]",
		Short: "Analyze video files and write annotated outputs",
		Long:  "Analyze each video in turn. Videos given as arguments replace video.inputs from the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			inputs := args
			if len(inputs) == 0 {
				inputs = cfg.Video.Inputs
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no input videos: pass them as arguments or set video.inputs")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runProcess(ctx, cfg, inputs)
		},
	}
}

func runProcess(ctx context.Context, cfg *config.Config, inputs []string) error {
	log := logger.Named("main")
	metrics := monitor.NewMetrics()
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(ctx, cfg.Server.MetricsPort, metrics)
	}()

	models, err := engine.Load(cfg, engine.OpenGocv)
	if err != nil {
		return err
	}
	defer models.Close()
	mc, err := cfg.Manager()
	if err != nil {
		return err
	}
	newManager := func() (*manager.Manager, error) {
		return manager.New(mc, models.Detectors, models.Classifier, manager.WithObserver(metrics))
	}

	var consumers []session.Consumer
	if cfg.Video.Render {
		consumers = append(consumers, session.NewVideoOutput(cfg.Video.OutputDir, cfg.Video.Codec))
	}
	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		consumers = append(consumers, st)
	}
	if cfg.Chart.OutputDir != "" {
		consumers = append(consumers, chart.NewTimeline(cfg.Chart.OutputDir))
	}
	if cfg.Report.Enabled {
		rep := newReporter(cfg)
		rep.SetProgressEvery(cfg.Video.ProgressEvery)
		consumers = append(consumers, rep)
		wg.Add(1)
		go rep.SendAliveMessage(ctx, &wg)
	}

	runner := session.NewRunner(newManager,
		session.WithConsumers(consumers...),
		session.WithProgressEvery(cfg.Video.ProgressEvery))
	sums, err := runner.Run(ctx, inputs)
	for _, s := range sums {
		if s.Skipped || s.Err != nil || st == nil {
			continue
		}
		spans, serr := st.GameStateSpans(s.RunID)
		if serr != nil {
			log.Warn("cannot read game state spans", zap.String("run", s.RunID), zap.Error(serr))
			continue
		}
		for _, sp := range spans {
			log.Info("game state span", zap.String("video", s.Video), zap.Stringer("state", sp.State),
				zap.Int64("start", sp.StartFrame), zap.Int64("end", sp.EndFrame),
				zap.Float64("mean_confidence", sp.MeanConfidence))
		}
	}
	return err
}

func newReporter(cfg *config.Config) *adhoc.Reporter {
	rep := adhoc.NewReporter(cfg.Report.Host, cfg.Report.Port, time.Duration(cfg.Report.IntervalSeconds)*time.Second)
	if ip, err := adhoc.GetOutboundIP(); err == nil {
		rep.IP = ip
	} else {
		logger.Log().Warn("Failed to get outbound IP", zap.Error(err))
	}
	rep.Port = cfg.Server.RPCPort
	return rep
}

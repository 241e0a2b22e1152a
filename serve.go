package main

import (
	"CourtVision/engine"
	backend "CourtVision/gRPC"
	"CourtVision/logger"
	"CourtVision/manager"
	"CourtVision/monitor"
	"CourtVision/web"
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve live analysis over gRPC, HTTP and websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			log := logger.Named("main")
			if cfg.Logging.Mode != "development" {
				gin.SetMode(gin.ReleaseMode)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics := monitor.NewMetrics()
			var wg sync.WaitGroup
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
			live, err := manager.New(mc, models.Detectors, models.Classifier, manager.WithObserver(metrics))
			if err != nil {
				return err
			}

			hub := web.NewHub()
			rpc := backend.NewServer(live, metrics, cfg.Server.WorkersNum)
			rpc.OnResult = hub.Broadcast
			log.Info("Starting gRPC Server", zap.Int("port", cfg.Server.RPCPort))
			grpcServer, err := backend.StartGRPCServer(cfg.Server.RPCPort, rpc)
			if err != nil {
				return err
			}

			if cfg.Report.Enabled {
				rep := newReporter(cfg)
				wg.Add(1)
				go rep.SendAliveMessage(ctx, &wg)
			} else {
				log.Info("report.enabled is false, skipping registration")
			}

			httpErr := web.NewServer(live, hub, metrics).Run(ctx, cfg.Server.HTTPPort)
			if httpErr != nil {
				log.Error("http server failed", zap.Error(httpErr))
				stop()
			}
			<-ctx.Done()
			grpcServer.GracefulStop()
			rpc.Stop()
			live.Wait()
			wg.Wait()
			log.Info("Safely exited")
			return httpErr
		},
	}
}

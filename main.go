package main

import (
	"CourtVision/config"
	"CourtVision/logger"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "courtvision",
		Short:         "Multi-model sports video analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.AddCommand(processCmd(), serveCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the config, initialises logging and prints the banner.
func setup() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Options{Mode: cfg.Logging.Mode, Level: cfg.Logging.Level}); err != nil {
		return nil, err
	}
	printBanner(cfg)
	return cfg, nil
}

func printBanner(cfg *config.Config) {
	CPUNum := runtime.NumCPU()
	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("CPU Cores: %d\n", CPUNum)
	fmt.Println(" Backend:", cfg.Models.Backend)
	fmt.Println(" Window / Interval:", cfg.Pipeline.WindowSize, "/", cfg.Pipeline.ClassifyInterval)
	fmt.Println(" Detectors:", strings.Join(cfg.Pipeline.EnabledDetectors, ", "))
	fmt.Println(strings.Repeat("#", 64))
	if cfg.Server.WorkersNum > CPUNum {
		fmt.Println(strings.Repeat("!", 64))
		fmt.Println("Please noted that workersNum exceeds CPU cores, which may lead to performance degradation.")
		fmt.Println(strings.Repeat("!", 64))
	}
	if cfg.Models.Action.UseGPU || cfg.Models.Ball.UseGPU || cfg.Models.Player.UseGPU || cfg.Models.Court.UseGPU || cfg.Models.Classifier.UseGPU {
		fmt.Println("GPU enabled: every loaded model is warmed up before the first frame.")
	}
	fmt.Println("")
}

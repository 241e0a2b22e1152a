package config

import (
	iface "CourtVision/interface"
	"CourtVision/manager"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Pipeline struct {
	WindowSize          int      `yaml:"windowSize"`
	ClassifyInterval    int      `yaml:"classifyInterval"`
	EnabledDetectors    []string `yaml:"enabledDetectors"`
	ParallelDetectors   bool     `yaml:"parallelDetectors"`
	AsyncClassification bool     `yaml:"asyncClassification"`
}

// Model describes one network. Names maps output class indices to labels;
// NamesFile is read instead when Names is empty.
type Model struct {
	ModelPath   string    `yaml:"modelPath"`
	ConfigPath  string    `yaml:"configPath"`
	Names       []string  `yaml:"names"`
	NamesFile   string    `yaml:"namesFile"`
	Task        string    `yaml:"task"`
	Conf        float32   `yaml:"conf"`
	Iou         float32   `yaml:"iou"`
	InputSize   int       `yaml:"inputSize"`
	InputName   string    `yaml:"inputName"`
	OutputNames []string  `yaml:"outputNames"`
	UseGPU      bool      `yaml:"useGPU"`
	Mean        []float32 `yaml:"mean"`
	Std         []float32 `yaml:"std"`
}

type Models struct {
	// Backend selects the DNN target: Cpu, Cuda, OpenCL or Vulkan.
	Backend    string `yaml:"backend"`
	Action     Model  `yaml:"action"`
	Ball       Model  `yaml:"ball"`
	Court      Model  `yaml:"court"`
	Player     Model  `yaml:"player"`
	Classifier Model  `yaml:"classifier"`
}

type Video struct {
	Inputs        []string `yaml:"inputs"`
	OutputDir     string   `yaml:"outputDir"`
	Codec         string   `yaml:"codec"`
	ProgressEvery int      `yaml:"progressEvery"`
	Render        bool     `yaml:"render"`
}

type Server struct {
	RPCPort     int `yaml:"RPCPort"`
	HTTPPort    int `yaml:"HTTPPort"`
	MetricsPort int `yaml:"MetricsPort"`
	WorkersNum  int `yaml:"workersNum"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Chart struct {
	OutputDir string `yaml:"outputDir"`
}

type Report struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	IntervalSeconds int    `yaml:"intervalSeconds"`
}

type Logging struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
	Models   Models   `yaml:"models"`
	Video    Video    `yaml:"video"`
	Server   Server   `yaml:"server"`
	Store    Store    `yaml:"store"`
	Chart    Chart    `yaml:"chart"`
	Report   Report   `yaml:"report"`
	Logging  Logging  `yaml:"logging"`
}

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := manager.DefaultConfig()
	if c.Pipeline.WindowSize == 0 {
		c.Pipeline.WindowSize = def.WindowSize
	}
	if c.Pipeline.ClassifyInterval == 0 {
		c.Pipeline.ClassifyInterval = def.ClassifyInterval
	}
	if c.Pipeline.EnabledDetectors == nil {
		for _, k := range def.EnabledDetectors {
			c.Pipeline.EnabledDetectors = append(c.Pipeline.EnabledDetectors, string(k))
		}
	}
	if c.Models.Backend == "" {
		c.Models.Backend = "Cpu"
	}
	for _, m := range []*Model{&c.Models.Action, &c.Models.Ball, &c.Models.Court, &c.Models.Player} {
		m.detectorDefaults()
	}
	if c.Models.Ball.Task == "" {
		c.Models.Ball.Task = "detect"
	}
	if c.Models.Court.Task == "" {
		c.Models.Court.Task = "segment"
	}
	if c.Models.Player.Task == "" {
		c.Models.Player.Task = "pose"
	}
	if c.Models.Action.Task == "" {
		c.Models.Action.Task = "detect"
	}
	cls := &c.Models.Classifier
	if cls.InputSize == 0 {
		cls.InputSize = 224
	}
	if cls.Names == nil && cls.NamesFile == "" {
		cls.Names = []string{"no-play", "play"}
	}
	if cls.Mean == nil {
		cls.Mean = []float32{0.485, 0.456, 0.406}
	}
	if cls.Std == nil {
		cls.Std = []float32{0.229, 0.224, 0.225}
	}
	if c.Video.OutputDir == "" {
		c.Video.OutputDir = "."
	}
	if c.Video.Codec == "" {
		c.Video.Codec = "mp4v"
	}
	if c.Video.ProgressEvery == 0 {
		c.Video.ProgressEvery = 30
	}
	if c.Server.RPCPort == 0 {
		c.Server.RPCPort = 50051
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 50053
	}
	if c.Server.WorkersNum <= 0 {
		c.Server.WorkersNum = 1
	}
	if c.Report.IntervalSeconds == 0 {
		c.Report.IntervalSeconds = 5
	}
	if c.Logging.Mode == "" {
		c.Logging.Mode = "production"
	}
}

func (m *Model) detectorDefaults() {
	if m.Conf == 0 {
		m.Conf = 0.25
	}
	if m.Iou == 0 {
		m.Iou = 0.45
	}
	if m.InputSize == 0 {
		m.InputSize = 640
	}
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Manager(); err != nil {
		errs = append(errs, err)
	}
	switch c.Models.Backend {
	case "Cpu", "Cuda", "OpenCL", "Vulkan":
	default:
		errs = append(errs, fmt.Errorf("unknown models.backend %q", c.Models.Backend))
	}
	check := func(name string, m Model, tasks ...string) {
		if m.Conf < 0 || m.Conf > 1 {
			errs = append(errs, fmt.Errorf("models.%s.conf must be between 0.0 and 1.0, got %f", name, m.Conf))
		}
		if m.Iou < 0 || m.Iou > 1 {
			errs = append(errs, fmt.Errorf("models.%s.iou must be between 0.0 and 1.0, got %f", name, m.Iou))
		}
		if m.InputSize < 0 {
			errs = append(errs, fmt.Errorf("models.%s.inputSize must be positive", name))
		}
		if len(tasks) == 0 {
			return
		}
		for _, t := range tasks {
			if m.Task == t {
				return
			}
		}
		errs = append(errs, fmt.Errorf("models.%s.task %q not one of %v", name, m.Task, tasks))
	}
	check("action", c.Models.Action, "detect")
	check("ball", c.Models.Ball, "detect", "segment")
	check("court", c.Models.Court, "segment")
	check("player", c.Models.Player, "pose", "detect")
	check("classifier", c.Models.Classifier)
	if cls := c.Models.Classifier; len(cls.Mean) != 3 || len(cls.Std) != 3 {
		errs = append(errs, errors.New("models.classifier mean and std need 3 values"))
	}
	if c.Video.ProgressEvery < 0 {
		errs = append(errs, errors.New("video.progressEvery must not be negative"))
	}
	return errors.Join(errs...)
}

// Manager converts the pipeline section into the orchestrator configuration.
func (c *Config) Manager() (manager.Config, error) {
	mc := manager.Config{
		WindowSize:          c.Pipeline.WindowSize,
		ClassifyInterval:    c.Pipeline.ClassifyInterval,
		ParallelDetectors:   c.Pipeline.ParallelDetectors,
		AsyncClassification: c.Pipeline.AsyncClassification,
		EnabledDetectors:    []iface.DetectorKind{},
	}
	for _, name := range c.Pipeline.EnabledDetectors {
		k, err := iface.ParseDetectorKind(name)
		if err != nil {
			return manager.Config{}, fmt.Errorf("pipeline.enabledDetectors: %w", err)
		}
		mc.EnabledDetectors = append(mc.EnabledDetectors, k)
	}
	if err := mc.Validate(); err != nil {
		return manager.Config{}, fmt.Errorf("pipeline: %w", err)
	}
	return mc, nil
}

// Model returns the model section for a detector kind.
func (c *Config) Model(kind iface.DetectorKind) Model {
	switch kind {
	case iface.DetectorAction:
		return c.Models.Action
	case iface.DetectorBall:
		return c.Models.Ball
	case iface.DetectorCourt:
		return c.Models.Court
	case iface.DetectorPlayer:
		return c.Models.Player
	}
	return Model{}
}

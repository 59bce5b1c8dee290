package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	Download bool   `yaml:"download"`

	Epochs     int     `yaml:"epochs"`
	MaxSteps   int     `yaml:"max_steps"`
	BatchSize  int     `yaml:"batch_size"`
	NumWorkers int     `yaml:"num_workers"`
	Seed       int64   `yaml:"seed"`
	LogEvery   int     `yaml:"log_every"`
	LossPlot   string  `yaml:"loss_plot"`
	Optimizer  string  `yaml:"optimizer"`
	LR         float64 `yaml:"learning_rate"`

	Temperature   float64 `yaml:"temperature"`
	FeatureDim    int     `yaml:"feature_dim"`
	ProjectionDim int     `yaml:"projection_dim"`

	CropSize     int     `yaml:"crop_size"`
	CropScaleMin float64 `yaml:"crop_scale_min"`
	CropScaleMax float64 `yaml:"crop_scale_max"`
	FlipProb     float64 `yaml:"flip_prob"`
}

// Defaults reproduces the reference SimCLR run on CIFAR-10.
func Defaults() *Config {
	return &Config{
		DataDir:       "./data",
		Download:      true,
		Epochs:        1,
		BatchSize:     256,
		NumWorkers:    2,
		Seed:          42,
		LogEvery:      20,
		Optimizer:     "adam",
		LR:            1e-3,
		Temperature:   0.5,
		FeatureDim:    128,
		ProjectionDim: 64,
		CropSize:      32,
		CropScaleMin:  0.08,
		CropScaleMax:  1.0,
		FlipProb:      0.5,
	}
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir     string
	NoDownload  bool
	Epochs      int
	MaxSteps    int
	BatchSize   int
	NumWorkers  int
	Seed        int64
	LogEvery    int
	LR          float64
	Temperature float64
	Optimizer   string
	LossPlot    string
}

// Load reads a Config from YAML on top of Defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML over Defaults. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.NoDownload {
		c.Download = false
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.MaxSteps > 0 {
		c.MaxSteps = o.MaxSteps
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.LR > 0 {
		c.LR = o.LR
	}
	if o.Temperature > 0 {
		c.Temperature = o.Temperature
	}
	if o.Optimizer != "" {
		c.Optimizer = o.Optimizer
	}
	if o.LossPlot != "" {
		c.LossPlot = o.LossPlot
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be >= 0 (got %d)", c.MaxSteps)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if c.LR <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LR)
	}
	if c.Temperature <= 0 {
		return fmt.Errorf("temperature must be > 0 (got %g)", c.Temperature)
	}
	switch strings.ToLower(c.Optimizer) {
	case "adam", "sgd":
	default:
		return fmt.Errorf("optimizer must be adam or sgd (got %q)", c.Optimizer)
	}
	if c.FeatureDim <= 0 || c.ProjectionDim <= 0 {
		return fmt.Errorf("feature_dim and projection_dim must be > 0 (got %d, %d)", c.FeatureDim, c.ProjectionDim)
	}
	if c.CropSize <= 0 {
		return fmt.Errorf("crop_size must be > 0 (got %d)", c.CropSize)
	}
	if c.CropScaleMin <= 0 || c.CropScaleMin > c.CropScaleMax || c.CropScaleMax > 1 {
		return fmt.Errorf("crop scale range must satisfy 0 < min <= max <= 1 (got %g-%g)", c.CropScaleMin, c.CropScaleMax)
	}
	if c.FlipProb < 0 || c.FlipProb > 1 {
		return fmt.Errorf("flip_prob must be in [0, 1] (got %g)", c.FlipProb)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 20
	}
	return nil
}

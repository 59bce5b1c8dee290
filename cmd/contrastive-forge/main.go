package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"contrastive-forge/internal/config"
	"contrastive-forge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults reproduce the reference run)")
	dataDir := flag.String("data-dir", "", "Dataset cache directory")
	noDownload := flag.Bool("no-download", false, "Fail instead of downloading CIFAR-10")
	epochs := flag.Int("epochs", 0, "Number of passes over the training set")
	maxSteps := flag.Int("max-steps", 0, "Stop after N steps (0 = no cap)")
	batchSize := flag.Int("batch-size", 0, "Pairs per batch")
	numWorkers := flag.Int("num-workers", 0, "Number of data loader workers")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N steps")
	lr := flag.Float64("lr", 0, "Learning rate")
	temperature := flag.Float64("temperature", 0, "NT-Xent temperature")
	optimizer := flag.String("optimizer", "", "adam or sgd")
	lossPlot := flag.String("loss-plot", "", "Write the loss curve to this PNG")

	flag.Parse()

	cfg := config.Defaults()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:     *dataDir,
		NoDownload:  *noDownload,
		Epochs:      *epochs,
		MaxSteps:    *maxSteps,
		BatchSize:   *batchSize,
		NumWorkers:  *numWorkers,
		Seed:        *seed,
		LogEvery:    *logEvery,
		LR:          *lr,
		Temperature: *temperature,
		Optimizer:   *optimizer,
		LossPlot:    *lossPlot,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		DataDir:       cfg.DataDir,
		Download:      cfg.Download,
		Epochs:        cfg.Epochs,
		MaxSteps:      cfg.MaxSteps,
		BatchSize:     cfg.BatchSize,
		NumWorkers:    cfg.NumWorkers,
		Seed:          cfg.Seed,
		LogEvery:      cfg.LogEvery,
		LossPlot:      cfg.LossPlot,
		Optimizer:     cfg.Optimizer,
		LR:            cfg.LR,
		Temperature:   cfg.Temperature,
		FeatureDim:    cfg.FeatureDim,
		ProjectionDim: cfg.ProjectionDim,
		CropSize:      cfg.CropSize,
		CropScaleMin:  cfg.CropScaleMin,
		CropScaleMax:  cfg.CropScaleMax,
		FlipProb:      cfg.FlipProb,
	}

	res, err := trainer.Run(ctx, runCfg)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	fmt.Printf("Last loss: %v\n", res.FinalLoss)
}

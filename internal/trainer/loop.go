package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"contrastive-forge/internal/augment"
	"contrastive-forge/internal/dataset"
	"contrastive-forge/internal/metrics"
	"contrastive-forge/internal/model"
	"contrastive-forge/internal/optim"
	"contrastive-forge/internal/tensor"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	DataDir  string
	Download bool
	URL      string
	// Data, when set, is trained on directly and DataDir is ignored.
	Data *dataset.Dataset

	Epochs     int
	MaxSteps   int
	BatchSize  int
	NumWorkers int
	Seed       int64
	LogEvery   int
	LossPlot   string

	Optimizer   string
	LR          float64
	Temperature float64

	FeatureDim    int
	ProjectionDim int

	// Zero crop scales fall back to 0.08-1.0. FlipProb is used as given, so
	// leaving it zero disables flipping.
	CropSize     int
	CropScaleMin float64
	CropScaleMax float64
	FlipProb     float64
}

// DefaultSeed replaces a zero Seed for both initialization and sampling.
const DefaultSeed = 42

// Result summarizes a finished run.
type Result struct {
	FinalLoss float64
	Steps     int
	Curve     *metrics.Curve
}

// Run trains a SimCLR model on CIFAR-10 and returns the loss of the last
// batch it processed.
func Run(ctx context.Context, cfg RunConfig) (Result, error) {
	if cfg.BatchSize <= 0 {
		return Result{}, errors.New("trainer: batch size must be > 0")
	}
	if cfg.Temperature <= 0 {
		return Result{}, errors.New("trainer: temperature must be > 0")
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 20
	}
	if cfg.LR <= 0 {
		cfg.LR = 1e-3
	}
	if cfg.CropSize <= 0 {
		cfg.CropSize = dataset.ImageSide
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}

	data, err := loadData(ctx, cfg)
	if err != nil {
		return Result{}, err
	}

	loader, err := dataset.NewLoader(data, cfg.pipeline(), dataset.LoaderOptions{
		BatchSize:  cfg.BatchSize,
		NumWorkers: cfg.NumWorkers,
		Shuffle:    true,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return Result{}, err
	}

	mdl := model.NewSimCLR(model.Options{
		ImageSize:     cfg.CropSize,
		FeatureDim:    cfg.FeatureDim,
		ProjectionDim: cfg.ProjectionDim,
		Seed:          cfg.Seed,
	})
	params := mdl.Parameters()
	opt, err := optim.New(strings.ToLower(cfg.Optimizer), params, cfg.LR)
	if err != nil {
		return Result{}, err
	}
	opts := mdl.Options()
	log.Printf("model=simclr params=%d tensors=%d feature_dim=%d projection_dim=%d seed=%d",
		tensor.Count(params), len(params), opts.FeatureDim, opts.ProjectionDim, opts.Seed)
	log.Printf("optimizer=%s lr=%g temperature=%g", cfg.Optimizer, cfg.LR, cfg.Temperature)
	log.Printf("samples=%d batch_size=%d batches_per_epoch=%d epochs=%d workers=%d",
		data.Len(), cfg.BatchSize, loader.NumBatches(), cfg.Epochs, cfg.NumWorkers)

	r := &run{cfg: cfg, model: mdl, opt: opt, res: Result{Curve: &metrics.Curve{}}}
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		done, err := r.epoch(ctx, loader, epoch)
		if err != nil {
			return r.res, err
		}
		log.Printf("epoch=%d steps=%d loss=%.4f", epoch, r.res.Steps, r.res.FinalLoss)
		if done {
			break
		}
	}
	if r.window.Steps() > 0 {
		logSnapshot(r.res.Steps, r.window.Snapshot())
	}

	if cfg.LossPlot != "" && r.res.Curve.Len() > 0 {
		if err := r.res.Curve.Save(cfg.LossPlot); err != nil {
			return r.res, err
		}
		log.Printf("loss_plot=%s points=%d", cfg.LossPlot, r.res.Curve.Len())
	}
	return r.res, nil
}

type run struct {
	cfg    RunConfig
	model  model.Model
	opt    optim.Optimizer
	res    Result
	window metrics.Window
}

// epoch trains on one loader pass. It reports done once MaxSteps is reached.
func (r *run) epoch(ctx context.Context, loader *dataset.Loader, epoch int) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	batches, errs := loader.Epoch(ctx, epoch)
	defer func() {
		cancel()
		for range batches {
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if r.cfg.MaxSteps > 0 && r.res.Steps >= r.cfg.MaxSteps {
			return true, nil
		}
		startData := time.Now()
		var (
			batch dataset.Batch
			ok    bool
		)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case batch, ok = <-batches:
		}
		if !ok {
			if err := <-errs; err != nil {
				return false, fmt.Errorf("trainer: epoch %d: %w", epoch, err)
			}
			return false, nil
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		loss := Step(r.model, r.opt, batch, r.cfg.Temperature)
		computeTime := time.Since(startCompute)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return false, fmt.Errorf("trainer: non-finite loss at step %d", r.res.Steps+1)
		}

		r.res.Steps++
		r.res.FinalLoss = loss
		r.res.Curve.Record(r.res.Steps, loss)
		r.window.Record(batch.Size(), dataTime, computeTime, loss)

		if r.res.Steps%r.cfg.LogEvery == 0 {
			logSnapshot(r.res.Steps, r.window.Snapshot())
		}
	}
}

func (cfg RunConfig) pipeline() augment.Pipeline {
	return augment.NewPipeline(cfg.CropSize, cfg.CropScaleMin, cfg.CropScaleMax, cfg.FlipProb)
}

func loadData(ctx context.Context, cfg RunConfig) (*dataset.Dataset, error) {
	if cfg.Data != nil {
		return cfg.Data, nil
	}
	dir, err := dataset.EnsureCIFAR10(ctx, dataset.Source{Root: cfg.DataDir, URL: cfg.URL, Download: cfg.Download})
	if err != nil {
		return nil, err
	}
	data, err := dataset.LoadCIFAR10(dir)
	if err != nil {
		return nil, err
	}
	log.Printf("dataset=cifar10 dir=%s samples=%d", dir, data.Len())
	return data, nil
}

func logSnapshot(step int, snap metrics.Snapshot) {
	log.Printf("step=%d images_per_sec=%.1f data_ms=%.2f compute_ms=%.2f loss=%.4f mean_loss=%.4f",
		step,
		snap.ImagesPerSec,
		snap.AvgDataMS,
		snap.AvgComputeMS,
		snap.LastLoss,
		snap.MeanLoss,
	)
}

package trainer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"contrastive-forge/internal/augment"
	"contrastive-forge/internal/dataset"
	"contrastive-forge/internal/model"
	"contrastive-forge/internal/optim"
	"contrastive-forge/internal/tensor"
)

// patternImage draws a distinct diagonal stripe pattern per seed.
func patternImage(seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, dataset.ImageSide, dataset.ImageSide))
	for y := 0; y < dataset.ImageSide; y++ {
		for x := 0; x < dataset.ImageSide; x++ {
			v := uint8(((x*(seed+1) + y*(3-seed%3)) * 17) % 256)
			img.SetRGBA(x, y, color.RGBA{R: v, G: uint8(seed * 60), B: 255 - v, A: 255})
		}
	}
	return img
}

func syntheticData(n int) *dataset.Dataset {
	ds := &dataset.Dataset{Images: make([]dataset.Image, n), Labels: make([]int, n)}
	for i := 0; i < n; i++ {
		ds.Images[i] = dataset.ImageFrom(patternImage(i))
		ds.Labels[i] = i % 10
	}
	return ds
}

func fixedBatch(sources []image.Image, seed int64) dataset.Batch {
	pipeline := augment.NewPipeline(dataset.ImageSide, 0, 0, 0.5)
	rng := rand.New(rand.NewSource(seed))
	n := len(sources)
	v1 := make([]*tensor.Tensor, n)
	v2 := make([]*tensor.Tensor, n)
	labels := make([]int, n)
	for i, src := range sources {
		v1[i], v2[i] = pipeline.Pair(src, rng)
		labels[i] = i
	}
	return dataset.Batch{View1: tensor.Stack(v1), View2: tensor.Stack(v2), Labels: labels}
}

// overfit trains a fresh model on batch for 50 steps and returns the first
// and last losses.
func overfit(t *testing.T, batch dataset.Batch) (first, last float64) {
	t.Helper()
	m := model.NewSimCLR(model.Options{Seed: 42})
	opt := optim.NewAdam(m.Parameters(), 1e-3)
	for step := 0; step < 50; step++ {
		loss := Step(m, opt, batch, 0.5)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Fatalf("step %d: non-finite loss %v", step, loss)
		}
		if step == 0 {
			first = loss
		}
		last = loss
	}
	return first, last
}

func TestStepOverfitsIdenticalImages(t *testing.T) {
	src := patternImage(0)
	first, last := overfit(t, fixedBatch([]image.Image{src, src, src, src}, 7))
	if !(last < first) {
		t.Fatalf("loss did not decrease: first=%.4f last=%.4f", first, last)
	}
}

func TestStepOverfitsDistinctImages(t *testing.T) {
	first, last := overfit(t, fixedBatch([]image.Image{patternImage(0), patternImage(1), patternImage(2), patternImage(3)}, 7))
	if !(last < first) {
		t.Fatalf("loss did not decrease: first=%.4f last=%.4f", first, last)
	}
}

func TestRunOnInMemoryData(t *testing.T) {
	plot := filepath.Join(t.TempDir(), "loss.png")
	res, err := Run(context.Background(), RunConfig{
		Data:        syntheticData(10),
		Epochs:      2,
		BatchSize:   4,
		NumWorkers:  2,
		Seed:        1,
		LogEvery:    2,
		LossPlot:    plot,
		LR:          1e-3,
		Temperature: 0.5,
		FlipProb:    0.5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Steps != 6 {
		t.Fatalf("expected 6 steps over 2 epochs, got %d", res.Steps)
	}
	if math.IsNaN(res.FinalLoss) || res.FinalLoss < 0 {
		t.Fatalf("unexpected final loss %v", res.FinalLoss)
	}
	if last, _ := res.Curve.Last(); last != res.FinalLoss {
		t.Fatalf("curve last %v != final loss %v", last, res.FinalLoss)
	}
	if _, err := os.Stat(plot); err != nil {
		t.Fatalf("loss plot not written: %v", err)
	}
}

func TestRunStopsAtMaxSteps(t *testing.T) {
	res, err := Run(context.Background(), RunConfig{
		Data:        syntheticData(8),
		Epochs:      3,
		MaxSteps:    3,
		BatchSize:   2,
		NumWorkers:  1,
		LR:          1e-3,
		Optimizer:   "SGD",
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Steps != 3 || res.Curve.Len() != 3 {
		t.Fatalf("expected 3 steps, got %d (curve %d)", res.Steps, res.Curve.Len())
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, RunConfig{Data: syntheticData(4), BatchSize: 2, LR: 1e-3, Temperature: 0.5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunMissingDataset(t *testing.T) {
	_, err := Run(context.Background(), RunConfig{DataDir: t.TempDir(), BatchSize: 2, LR: 1e-3, Temperature: 0.5})
	if !errors.Is(err, dataset.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	if _, err := Run(context.Background(), RunConfig{Data: syntheticData(2), Temperature: 0.5}); err == nil {
		t.Fatal("expected batch size error")
	}
	if _, err := Run(context.Background(), RunConfig{Data: syntheticData(2), BatchSize: 2, Optimizer: "lbfgs", Temperature: 0.5}); err == nil {
		t.Fatal("expected optimizer error")
	}
}

func TestRunZeroSeedMatchesDefaultSeed(t *testing.T) {
	train := func(seed int64) float64 {
		res, err := Run(context.Background(), RunConfig{
			Data:        syntheticData(6),
			MaxSteps:    2,
			BatchSize:   3,
			NumWorkers:  2,
			Seed:        seed,
			Temperature: 0.5,
			FlipProb:    0.5,
		})
		if err != nil {
			t.Fatalf("Run(seed=%d): %v", seed, err)
		}
		return res.FinalLoss
	}
	if zero, def := train(0), train(DefaultSeed); zero != def {
		t.Fatalf("seed 0 loss %v differs from seed %d loss %v", zero, DefaultSeed, def)
	}
}

func TestRunConfigPipelineDefaults(t *testing.T) {
	p := RunConfig{CropSize: 32}.pipeline()
	if p.Crop.ScaleMin != 0.08 || p.Crop.ScaleMax != 1 {
		t.Fatalf("zero crop scales should fall back to 0.08-1, got %g-%g", p.Crop.ScaleMin, p.Crop.ScaleMax)
	}
	if p.Flip.P != 0 {
		t.Fatalf("zero FlipProb should disable flipping, got %g", p.Flip.P)
	}
	if p := (RunConfig{CropSize: 32, FlipProb: 0.5}).pipeline(); p.Flip.P != 0.5 {
		t.Fatalf("flip probability not carried through: %g", p.Flip.P)
	}
}

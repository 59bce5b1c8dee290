package dataset

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"contrastive-forge/internal/augment"
)

func syntheticDataset(n int) *Dataset {
	ds := &Dataset{Images: make([]Image, n), Labels: make([]int, n)}
	for i := 0; i < n; i++ {
		for j := range ds.Images[i] {
			ds.Images[i][j] = byte(i*13 + j)
		}
		ds.Labels[i] = i
	}
	return ds
}

func collect(t *testing.T, l *Loader, epoch int) []Batch {
	t.Helper()
	batches, errs := l.Epoch(context.Background(), epoch)
	var out []Batch
	deadline := time.After(10 * time.Second)
	for batches != nil {
		select {
		case b, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			out = append(out, b)
		case <-deadline:
			t.Fatal("timed out waiting for batches")
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("epoch error: %v", err)
	}
	return out
}

func TestLoaderVisitsEveryIndexOnce(t *testing.T) {
	ds := syntheticDataset(10)
	l, err := NewLoader(ds, augment.NewPipeline(32, 0, 0, 0.5), LoaderOptions{BatchSize: 4, NumWorkers: 3, Shuffle: true, Seed: 5})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if l.NumBatches() != 3 {
		t.Fatalf("expected 3 batches, got %d", l.NumBatches())
	}
	batches := collect(t, l, 0)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	seen := make(map[int]int)
	for i, b := range batches {
		if b.Index != i {
			t.Fatalf("batch %d delivered out of order (index %d)", i, b.Index)
		}
		if b.View1.Shape[0] != b.Size() || b.View2.Shape[0] != b.Size() {
			t.Fatalf("view batch dims %v / %v for %d labels", b.View1.Shape, b.View2.Shape, b.Size())
		}
		for _, label := range b.Labels {
			seen[label]++
		}
	}
	if batches[2].Size() != 2 {
		t.Fatalf("final partial batch has %d items, want 2", batches[2].Size())
	}
	for i := 0; i < 10; i++ {
		if seen[i] != 1 {
			t.Fatalf("index %d seen %d times", i, seen[i])
		}
	}
}

func TestLoaderDeterministicAcrossWorkerCounts(t *testing.T) {
	ds := syntheticDataset(9)
	pipeline := augment.NewPipeline(32, 0, 0, 0.5)
	run := func(workers int) ([][]int, [][]float64) {
		l, err := NewLoader(ds, pipeline, LoaderOptions{BatchSize: 2, NumWorkers: workers, Shuffle: true, Seed: 77})
		if err != nil {
			t.Fatalf("NewLoader: %v", err)
		}
		var labels [][]int
		var views [][]float64
		for _, b := range collect(t, l, 1) {
			labels = append(labels, b.Labels)
			views = append(views, b.View1.Data)
		}
		return labels, views
	}
	l1, v1 := run(1)
	l4, v4 := run(4)
	if !reflect.DeepEqual(l1, l4) {
		t.Fatalf("label order depends on worker count: %v vs %v", l1, l4)
	}
	if !reflect.DeepEqual(v1, v4) {
		t.Fatal("augmented views depend on worker count")
	}
}

func TestLoaderEpochsReshuffle(t *testing.T) {
	ds := syntheticDataset(32)
	l, err := NewLoader(ds, augment.NewPipeline(32, 0, 0, 0.5), LoaderOptions{BatchSize: 32, NumWorkers: 1, Shuffle: true, Seed: 3})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	a := collect(t, l, 0)[0].Labels
	b := collect(t, l, 1)[0].Labels
	if reflect.DeepEqual(a, b) {
		t.Fatal("expected a different order in the next epoch")
	}
}

func TestLoaderDropLast(t *testing.T) {
	l, err := NewLoader(syntheticDataset(10), augment.NewPipeline(32, 0, 0, 0.5), LoaderOptions{BatchSize: 4, DropLast: true})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if got := len(collect(t, l, 0)); got != 2 {
		t.Fatalf("expected 2 full batches, got %d", got)
	}
}

func TestLoaderCancel(t *testing.T) {
	l, err := NewLoader(syntheticDataset(64), augment.NewPipeline(32, 0, 0, 0.5), LoaderOptions{BatchSize: 1, NumWorkers: 2})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	batches, errs := l.Epoch(ctx, 0)
	<-batches
	cancel()
	for range batches {
	}
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewLoaderValidates(t *testing.T) {
	if _, err := NewLoader(&Dataset{}, augment.Pipeline{}, LoaderOptions{BatchSize: 1}); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if _, err := NewLoader(syntheticDataset(1), augment.Pipeline{}, LoaderOptions{}); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}

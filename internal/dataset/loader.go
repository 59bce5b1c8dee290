package dataset

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"contrastive-forge/internal/augment"
	"contrastive-forge/internal/tensor"
)

// Batch is B pairs of augmented views plus the (unused) source labels.
type Batch struct {
	Index  int
	View1  *tensor.Tensor // [B, 3, H, W]
	View2  *tensor.Tensor // [B, 3, H, W]
	Labels []int
}

// Size returns the number of pairs in the batch.
func (b Batch) Size() int { return len(b.Labels) }

// LoaderOptions configures batching and the prefetch pool.
type LoaderOptions struct {
	BatchSize  int
	NumWorkers int
	Shuffle    bool
	DropLast   bool
	Seed       int64
}

// Loader turns a Dataset into epochs of augmented pair batches.
type Loader struct {
	data     *Dataset
	pipeline augment.Pipeline
	opts     LoaderOptions
}

// NewLoader validates opts and returns a loader over data.
func NewLoader(data *Dataset, pipeline augment.Pipeline, opts LoaderOptions) (*Loader, error) {
	if data == nil || data.Len() == 0 {
		return nil, errors.New("loader: empty dataset")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.New("loader: batch size must be > 0")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	return &Loader{data: data, pipeline: pipeline, opts: opts}, nil
}

// NumBatches is the number of batches one epoch yields.
func (l *Loader) NumBatches() int {
	n, b := l.data.Len(), l.opts.BatchSize
	if l.opts.DropLast {
		return n / b
	}
	return (n + b - 1) / b
}

type batchJob struct {
	index   int
	indices []int
}

// Epoch streams one pass over the dataset. Batches are augmented on
// NumWorkers goroutines and delivered in index order; the output for a given
// (seed, epoch) does not depend on worker scheduling. Both channels close
// when the pass is done; errCh carries ctx.Err() if the pass was cut short.
func (l *Loader) Epoch(ctx context.Context, epoch int) (<-chan Batch, <-chan error) {
	out := make(chan Batch, l.opts.NumWorkers)
	errCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	jobs := make(chan batchJob, l.opts.NumWorkers)
	results := make(chan Batch, l.opts.NumWorkers)

	go l.produceJobs(ctx, jobs, l.order(epoch))

	var wg sync.WaitGroup
	for i := 0; i < l.opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.worker(ctx, epoch, jobs, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		if err := reorder(ctx, results, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (l *Loader) order(epoch int) []int {
	idx := make([]int, l.data.Len())
	for i := range idx {
		idx[i] = i
	}
	if l.opts.Shuffle {
		rng := rand.New(rand.NewSource(mixSeed(l.opts.Seed, int64(epoch), -1)))
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	return idx
}

func (l *Loader) produceJobs(ctx context.Context, jobs chan<- batchJob, order []int) {
	defer close(jobs)
	for i := 0; i < l.NumBatches(); i++ {
		lo := i * l.opts.BatchSize
		hi := min(lo+l.opts.BatchSize, len(order))
		select {
		case <-ctx.Done():
			return
		case jobs <- batchJob{index: i, indices: order[lo:hi]}:
		}
	}
}

func (l *Loader) worker(ctx context.Context, epoch int, jobs <-chan batchJob, results chan<- Batch) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			batch := l.assemble(epoch, job)
			select {
			case <-ctx.Done():
				return
			case results <- batch:
			}
		}
	}
}

func (l *Loader) assemble(epoch int, job batchJob) Batch {
	rng := rand.New(rand.NewSource(mixSeed(l.opts.Seed, int64(epoch), int64(job.index))))
	v1 := make([]*tensor.Tensor, len(job.indices))
	v2 := make([]*tensor.Tensor, len(job.indices))
	labels := make([]int, len(job.indices))
	for i, idx := range job.indices {
		img := l.data.Images[idx].RGBA()
		v1[i], v2[i] = l.pipeline.Pair(img, rng)
		labels[i] = l.data.Labels[idx]
	}
	return Batch{Index: job.index, View1: tensor.Stack(v1), View2: tensor.Stack(v2), Labels: labels}
}

// reorder forwards batches in Index order, holding early arrivals.
func reorder(ctx context.Context, results <-chan Batch, out chan<- Batch) error {
	pending := make(map[int]Batch)
	next := 0
	for {
		if b, ok := pending[next]; ok {
			delete(pending, next)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- b:
			}
			next++
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-results:
			if !ok {
				return nil
			}
			pending[b.Index] = b
		}
	}
}

// mixSeed derives an independent stream seed (splitmix64 finalizer).
func mixSeed(seed, epoch, index int64) int64 {
	z := uint64(seed)*0x9e3779b97f4a7c15 ^ uint64(epoch)*0xbf58476d1ce4e5b9 ^ uint64(index)*0x94d049bb133111eb
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

package metrics

import "time"

// Window accumulates loader wait and train-step time between log lines.
type Window struct {
	pairs    int
	data     time.Duration
	compute  time.Duration
	steps    int
	lastLoss float64
	sumLoss  float64
}

// Record adds one training step. pairs is the batch size B; each pair
// contributes two augmented images to the throughput figure.
func (w *Window) Record(pairs int, dataTime, computeTime time.Duration, loss float64) {
	w.pairs += pairs
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	w.lastLoss = loss
	w.sumLoss += loss
}

// Steps reports how many steps were recorded since the last Snapshot.
func (w *Window) Steps() int { return w.steps }

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{LastLoss: w.lastLoss}
	total := w.data + w.compute
	if total > 0 {
		snap.ImagesPerSec = float64(2*w.pairs) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
		snap.MeanLoss = w.sumLoss / float64(w.steps)
	}

	*w = Window{lastLoss: w.lastLoss}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	ImagesPerSec float64
	AvgDataMS    float64
	AvgComputeMS float64
	LastLoss     float64
	MeanLoss     float64
}

package metrics

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(32, 20*time.Millisecond, 10*time.Millisecond, 1.2)
	w.Record(32, 10*time.Millisecond, 20*time.Millisecond, 0.8)
	snap := w.Snapshot()
	if math.Abs(snap.ImagesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.ImagesPerSec)
	}
	if math.Abs(snap.AvgDataMS-15) > 1e-9 || math.Abs(snap.AvgComputeMS-15) > 1e-9 {
		t.Fatalf("unexpected timings data=%.3f compute=%.3f", snap.AvgDataMS, snap.AvgComputeMS)
	}
	if w.pairs != 0 || w.Steps() != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.LastLoss != 0.8 || math.Abs(snap.MeanLoss-1.0) > 1e-12 {
		t.Fatalf("expected last loss 0.8 and mean 1.0, got %.2f / %.2f", snap.LastLoss, snap.MeanLoss)
	}
	if again := w.Snapshot(); again.LastLoss != 0.8 || again.ImagesPerSec != 0 {
		t.Fatalf("empty window snapshot %+v", again)
	}
}

func TestCurveSave(t *testing.T) {
	var c Curve
	if _, ok := c.Last(); ok {
		t.Fatal("empty curve should have no last value")
	}
	path := filepath.Join(t.TempDir(), "loss.png")
	if err := c.Save(path); err == nil {
		t.Fatal("expected error for empty curve")
	}
	for i, loss := range []float64{5.5, 5.1, 4.8, 4.9} {
		c.Record(i+1, loss)
	}
	if last, _ := c.Last(); last != 4.9 || c.Len() != 4 {
		t.Fatalf("unexpected curve state last=%v len=%d", last, c.Len())
	}
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read plot: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

package augment

import (
	"image"
	"math/rand"

	"contrastive-forge/internal/tensor"
)

// Pipeline is crop, flip, then conversion to a tensor.
type Pipeline struct {
	Crop RandomResizedCrop
	Flip RandomHorizontalFlip
}

// NewPipeline returns the view pipeline for size x size outputs.
func NewPipeline(size int, scaleMin, scaleMax, flipProb float64) Pipeline {
	crop := NewRandomResizedCrop(size)
	if scaleMin > 0 {
		crop.ScaleMin = scaleMin
	}
	if scaleMax > 0 {
		crop.ScaleMax = scaleMax
	}
	return Pipeline{Crop: crop, Flip: RandomHorizontalFlip{P: flipProb}}
}

// Apply draws one view of img.
func (p Pipeline) Apply(img image.Image, rng *rand.Rand) *tensor.Tensor {
	return ToTensor(p.Flip.Apply(p.Crop.Apply(img, rng), rng))
}

// Pair draws two views of the same source image. Each view consumes fresh
// draws from rng, so the only thing they share is the source.
func (p Pipeline) Pair(img image.Image, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor) {
	return p.Apply(img, rng), p.Apply(img, rng)
}

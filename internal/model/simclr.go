package model

import (
	"fmt"
	"math/rand"

	"contrastive-forge/internal/nn"
	"contrastive-forge/internal/tensor"
)

// Options sizes the network. Zero values fall back to the defaults used by
// the reference run.
type Options struct {
	InChannels    int
	ImageSize     int
	FeatureDim    int
	ProjectionDim int
	Seed          int64
}

const (
	defaultInChannels    = 3
	defaultImageSize     = 32
	defaultFeatureDim    = 128
	defaultProjectionDim = 64
	normEps              = 1e-12
)

var convChannels = []int{32, 64, 128}

// SimCLR is a strided-conv encoder followed by a two-layer projection head.
// Forward returns L2-normalized projections; Encode returns the encoder
// features, which are the representation meant for downstream use.
type SimCLR struct {
	Encoder   nn.Sequential
	Projector nn.Sequential
	normalize nn.L2Normalize
	opts      Options
}

// NewSimCLR constructs the model with seeded PyTorch-style initialization.
func NewSimCLR(opts Options) *SimCLR {
	if opts.InChannels <= 0 {
		opts.InChannels = defaultInChannels
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = defaultImageSize
	}
	if opts.FeatureDim <= 0 {
		opts.FeatureDim = defaultFeatureDim
	}
	if opts.ProjectionDim <= 0 {
		opts.ProjectionDim = defaultProjectionDim
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var encoder nn.Sequential
	in, size := opts.InChannels, opts.ImageSize
	for i, out := range convChannels {
		conv := nn.NewConv2d(rng, fmt.Sprintf("encoder.conv%d", i), in, out, 3, 2, 1)
		encoder = append(encoder, conv, nn.ReLU{})
		in, size = out, conv.OutSize(size)
	}
	encoder = append(encoder,
		nn.Flatten{},
		nn.NewLinear(rng, "encoder.fc", in*size*size, opts.FeatureDim),
	)

	projector := nn.Sequential{
		nn.NewLinear(rng, "projector.fc1", opts.FeatureDim, opts.FeatureDim),
		nn.ReLU{},
		nn.NewLinear(rng, "projector.fc2", opts.FeatureDim, opts.ProjectionDim),
	}

	return &SimCLR{
		Encoder:   encoder,
		Projector: projector,
		normalize: nn.L2Normalize{Eps: normEps},
		opts:      opts,
	}
}

// Forward maps x [B, C, H, W] to unit-norm embeddings [B, ProjectionDim].
func (m *SimCLR) Forward(x *tensor.Tensor) (*tensor.Tensor, nn.Backward) {
	h, backEnc := m.Encoder.Forward(x)
	p, backProj := m.Projector.Forward(h)
	z, backNorm := m.normalize.Forward(p)
	return z, func(grad *tensor.Tensor) *tensor.Tensor {
		return backEnc(backProj(backNorm(grad)))
	}
}

// Encode returns the pre-projection features [B, FeatureDim].
func (m *SimCLR) Encode(x *tensor.Tensor) *tensor.Tensor {
	h, _ := m.Encoder.Forward(x)
	return h
}

// Parameters returns encoder parameters followed by projector parameters.
func (m *SimCLR) Parameters() []*tensor.Param {
	return append(m.Encoder.Parameters(), m.Projector.Parameters()...)
}

// Options returns the resolved sizes.
func (m *SimCLR) Options() Options { return m.opts }

package model

import (
	"contrastive-forge/internal/nn"
	"contrastive-forge/internal/tensor"
)

// Model is the training-loop view of a network: a differentiable map from a
// batch of views to a batch of embeddings, plus its trainable parameters.
type Model interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, nn.Backward)
	Parameters() []*tensor.Param
}

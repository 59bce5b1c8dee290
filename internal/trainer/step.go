package trainer

import (
	"contrastive-forge/internal/dataset"
	"contrastive-forge/internal/loss"
	"contrastive-forge/internal/model"
	"contrastive-forge/internal/optim"
)

// Step runs one contrastive update on batch and returns its NT-Xent loss.
// Both views go through the same parameters; their gradients accumulate
// before the single optimizer step.
func Step(m model.Model, opt optim.Optimizer, batch dataset.Batch, tau float64) float64 {
	opt.ZeroGrad()

	z1, back1 := m.Forward(batch.View1)
	z2, back2 := m.Forward(batch.View2)
	res := loss.NTXent(z1, z2, tau)

	back1(res.Grad1)
	back2(res.Grad2)
	opt.Step()
	return res.Loss
}

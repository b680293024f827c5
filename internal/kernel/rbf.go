package kernel

import (
	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// RBFKernel is the squared-exponential covariance
//
//	k(x, z) = exp(-0.5 · ‖(x - z) / ℓ‖²)
//
// with a single lengthscale hyperparameter ℓ. It computes through
// backend operations, so wrapping the backend in autodiff makes the
// lengthscale and inputs differentiable.
type RBFKernel struct {
	BaseKernel
	lengthscale *Param
	backend     tensor.Backend
}

// NewRBF builds an RBF kernel with the given lengthscale. dtype is the
// compute precision and must match the point batches the kernel is
// applied to.
func NewRBF(backend tensor.Backend, lengthscale float64, dtype tensor.DataType) *RBFKernel {
	raw := tensor.RawZeros(tensor.Shape{1}, dtype, backend.Device())
	switch dtype {
	case tensor.Float32:
		raw.AsFloat32()[0] = float32(lengthscale)
	case tensor.Float64:
		raw.AsFloat64()[0] = lengthscale
	default:
		panic("rbf kernel: compute dtype must be float32 or float64, got " + dtype.String())
	}

	p := &Param{Name: "lengthscale", Value: raw, RequiresGrad: true}
	k := &RBFKernel{
		BaseKernel: BaseKernel{
			batchShape: tensor.Shape{},
			params:     []*Param{p},
		},
		lengthscale: p,
		backend:     backend,
	}
	return k
}

// Name identifies the kernel in diagnostics.
func (k *RBFKernel) Name() string { return "RBFKernel" }

// Lengthscale returns the lengthscale parameter.
func (k *RBFKernel) Lengthscale() *Param { return k.lengthscale }

// Invoke evaluates the kernel. In diag mode x1 and x2 must hold the
// same number of points and only k(x1ᵢ, x2ᵢ) is computed.
func (k *RBFKernel) Invoke(x1, x2 *tensor.RawTensor, diag, lastDimIsBatch bool, _ map[string]any) (operator.Value, error) {
	b := k.backend

	x1p := k.selectActive(x1, b)
	x2p := k.selectActive(x2, b)
	if lastDimIsBatch {
		// (..., n, d) -> (..., d, n, 1): each feature becomes its own
		// batch member with one-dimensional points.
		x1p = b.Unsqueeze(b.Transpose(x1p, swapLastTwoAxes(len(x1p.Shape()))...), len(x1p.Shape()))
		x2p = b.Unsqueeze(b.Transpose(x2p, swapLastTwoAxes(len(x2p.Shape()))...), len(x2p.Shape()))
	}

	x1s := b.Div(x1p, k.lengthscale.Value)
	x2s := b.Div(x2p, k.lengthscale.Value)

	if diag {
		d := b.Sub(x1s, x2s)
		sq := b.SumDim(b.Mul(d, d), len(d.Shape())-1, false)
		return operator.FromRaw(b.Exp(b.MulScalar(sq, -0.5))), nil
	}

	// ‖u - v‖² = ‖u‖² + ‖v‖² - 2·u·v
	x1sq := b.SumDim(b.Mul(x1s, x1s), len(x1s.Shape())-1, true)
	x2sq := b.SumDim(b.Mul(x2s, x2s), len(x2s.Shape())-1, true)
	x2sqT := b.Transpose(x2sq, swapLastTwoAxes(len(x2sq.Shape()))...)

	x2sT := b.Transpose(x2s, swapLastTwoAxes(len(x2s.Shape()))...)
	cross, err := matmulBroadcast(b, x1s, x2sT)
	if err != nil {
		return operator.Value{}, err
	}

	dist2 := b.Sub(b.Add(x1sq, x2sqT), b.MulScalar(cross, 2))
	return operator.FromRaw(b.Exp(b.MulScalar(dist2, -0.5))), nil
}

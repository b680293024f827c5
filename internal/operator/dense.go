package operator

import (
	"github.com/pkg/errors"

	"github.com/meadow-ml/meadow/internal/parallel"
	"github.com/meadow-ml/meadow/internal/tensor"
)

var parCfg = parallel.DefaultConfig()

// Dense is the trivial linear operator: a dense tensor viewed through
// the operator interface. All structured operators densify to this.
type Dense struct {
	raw     *tensor.RawTensor
	backend tensor.Backend
}

// NewDense wraps a dense tensor in a linear operator. The tensor must
// have at least two dimensions.
func NewDense(raw *tensor.RawTensor, backend tensor.Backend) *Dense {
	if len(raw.Shape()) < 2 {
		panic("operator: dense operator needs at least 2 dimensions, got shape " + raw.Shape().String())
	}
	return &Dense{raw: raw, backend: backend}
}

// Shape returns the operator shape.
func (d *Dense) Shape() tensor.Shape {
	return d.raw.Shape()
}

// DType returns the element type.
func (d *Dense) DType() tensor.DataType {
	return d.raw.DType()
}

// Device returns where the data lives.
func (d *Dense) Device() tensor.Device {
	return d.raw.Device()
}

// MatMul multiplies by a dense right-hand side. A vector rhs is
// treated as a single column and the result squeezed back.
func (d *Dense) MatMul(rhs *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := d.raw.Shape()
	cols := shape[len(shape)-1]

	isVector := len(rhs.Shape()) == 1
	if isVector {
		rhs = d.backend.Unsqueeze(rhs, 1)
	}
	rhsShape := rhs.Shape()
	if len(rhsShape) < 2 || rhsShape[len(rhsShape)-2] != cols {
		return nil, errors.Errorf("operator matmul: shape %v is not compatible with rhs %v", shape, rhs.Shape())
	}

	var result *tensor.RawTensor
	if len(shape) == 2 && len(rhsShape) == 2 {
		result = d.backend.MatMul(d.raw, rhs)
	} else {
		batch, _, err := tensor.BroadcastShapes(shape.Batch(), rhsShape.Batch())
		if err != nil {
			return nil, errors.Wrap(err, "operator matmul: batch shapes do not broadcast")
		}
		lhs := d.raw
		if !lhs.Shape().Batch().Equal(batch) {
			lhs = d.backend.Expand(lhs, append(batch.Clone(), shape[len(shape)-2:]...))
		}
		if !rhsShape.Batch().Equal(batch) {
			rhs = d.backend.Expand(rhs, append(batch.Clone(), rhsShape[len(rhsShape)-2:]...))
		}
		result = d.backend.BatchMatMul(lhs, rhs)
	}

	if isVector {
		result = d.backend.Squeeze(result, len(result.Shape())-1)
	}
	return result, nil
}

// Transpose swaps the last two dimensions.
func (d *Dense) Transpose() LinearOperator {
	ndim := len(d.raw.Shape())
	axes := make([]int, ndim)
	for i := range axes {
		axes[i] = i
	}
	axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	return NewDense(d.backend.Transpose(d.raw, axes...), d.backend)
}

// Index applies an index expression to the dense data.
func (d *Dense) Index(idx []tensor.Index) (LinearOperator, error) {
	out, err := tensor.IndexRaw(d.raw, d.backend, idx)
	if err != nil {
		return nil, err
	}
	if len(out.Shape()) < 2 {
		return nil, errors.Errorf("operator index: expression reduces shape %v below 2 dimensions", d.raw.Shape())
	}
	return NewDense(out, d.backend), nil
}

// ToDense returns the underlying tensor.
func (d *Dense) ToDense() (*tensor.RawTensor, error) {
	return d.raw, nil
}

// Diagonal extracts the matrix diagonal of each batch member.
func (d *Dense) Diagonal() (*tensor.RawTensor, error) {
	shape := d.raw.Shape()
	n, m := shape[len(shape)-2], shape[len(shape)-1]
	if n != m {
		return nil, errors.Errorf("operator diagonal: matrix is not square, shape %v", shape)
	}

	outShape := append(shape[:len(shape)-2].Clone(), n)
	out := tensor.RawZeros(outShape, d.raw.DType(), d.raw.Device())

	batch := 1
	for _, s := range shape[:len(shape)-2] {
		batch *= s
	}

	switch d.raw.DType() {
	case tensor.Float32:
		src := d.raw.AsFloat32()
		dst := out.AsFloat32()
		parallel.ForBatch(batch, n, func(b, i int) {
			dst[b*n+i] = src[b*n*n+i*n+i]
		}, parCfg)
	case tensor.Float64:
		src := d.raw.AsFloat64()
		dst := out.AsFloat64()
		parallel.ForBatch(batch, n, func(b, i int) {
			dst[b*n+i] = src[b*n*n+i*n+i]
		}, parCfg)
	default:
		return nil, errors.Errorf("operator diagonal: unsupported dtype %s", d.raw.DType())
	}
	return out, nil
}

// Representation returns the dense tensor itself.
func (d *Dense) Representation() []*tensor.RawTensor {
	return []*tensor.RawTensor{d.raw}
}

// BilinearDerivative computes the gradient of tr(leftᵀ · K · right)
// with respect to the dense data, which is left · rightᵀ.
func (d *Dense) BilinearDerivative(left, right *tensor.RawTensor) ([]*tensor.RawTensor, error) {
	lShape, rShape := left.Shape(), right.Shape()
	if len(lShape) < 2 || len(rShape) < 2 {
		return nil, errors.Errorf("operator bilinear derivative: factors must be at least 2-dimensional, got %v and %v", lShape, rShape)
	}
	if lShape[len(lShape)-1] != rShape[len(rShape)-1] {
		return nil, errors.Errorf("operator bilinear derivative: factor widths differ, %v vs %v", lShape, rShape)
	}

	ndim := len(rShape)
	axes := make([]int, ndim)
	for i := range axes {
		axes[i] = i
	}
	axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	rightT := d.backend.Transpose(right, axes...)

	var grad *tensor.RawTensor
	if len(lShape) == 2 && ndim == 2 {
		grad = d.backend.MatMul(left, rightT)
	} else {
		grad = d.backend.BatchMatMul(left, rightT)
	}
	return []*tensor.RawTensor{reduceToShape(grad, d.raw.Shape(), d.backend)}, nil
}

// reduceToShape sums a gradient down to a target shape, undoing any
// batch broadcasting that happened during the forward computation.
func reduceToShape(grad *tensor.RawTensor, target tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad
	}
	for len(grad.Shape()) > len(target) {
		grad = backend.SumDim(grad, 0, false)
	}
	for i, dim := range target {
		if grad.Shape()[i] != dim && dim == 1 {
			grad = backend.SumDim(grad, i, true)
		}
	}
	return grad
}

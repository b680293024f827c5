// Package operator defines linear operators: lazy handles on matrices
// that expose matrix semantics (matmul, diagonal, indexing) without
// committing to a dense in-memory representation. Kernel evaluation
// produces linear operators so downstream solves can exploit structure
// or chunking instead of materializing the full matrix.
package operator

import (
	"github.com/meadow-ml/meadow/internal/tensor"
)

// LinearOperator is a (batched) matrix exposed through its action
// rather than its storage. The last two shape dimensions are the
// matrix rows and columns; leading dimensions are batch dimensions.
type LinearOperator interface {
	// Shape returns the full operator shape, batch dims included.
	Shape() tensor.Shape

	// DType returns the element type.
	DType() tensor.DataType

	// Device returns where the operator's data lives.
	Device() tensor.Device

	// MatMul multiplies the operator by a dense right-hand side.
	// rhs may be a vector (n,), a matrix (n, k), or batched (..., n, k).
	MatMul(rhs *tensor.RawTensor) (*tensor.RawTensor, error)

	// Transpose swaps the last two dimensions.
	Transpose() LinearOperator

	// Index applies the given index expression to the operator.
	Index(idx []tensor.Index) (LinearOperator, error)

	// ToDense materializes the operator as a dense tensor.
	ToDense() (*tensor.RawTensor, error)

	// Diagonal returns the matrix diagonal, shaped (..., n) for an
	// operator shaped (..., n, n).
	Diagonal() (*tensor.RawTensor, error)

	// Representation returns the flat list of tensors the operator is
	// built from. Gradients with respect to the operator are expressed
	// as gradients with respect to these tensors.
	Representation() []*tensor.RawTensor

	// BilinearDerivative computes the gradients of tr(leftᵀ · K · right)
	// with respect to the representation tensors, given the factors
	// left (..., n, k) and right (..., m, k).
	BilinearDerivative(left, right *tensor.RawTensor) ([]*tensor.RawTensor, error)
}

// Value carries the result of a kernel invocation, which may be either
// a dense tensor or a structured operator. It keeps the result in
// whichever form the kernel produced until a caller commits to one.
type Value struct {
	raw *tensor.RawTensor
	op  LinearOperator
}

// FromRaw wraps a dense tensor in a Value.
func FromRaw(raw *tensor.RawTensor) Value {
	return Value{raw: raw}
}

// FromOperator wraps a linear operator in a Value.
func FromOperator(op LinearOperator) Value {
	return Value{op: op}
}

// IsZero reports whether the value holds nothing.
func (v Value) IsZero() bool {
	return v.raw == nil && v.op == nil
}

// IsOperator reports whether the value holds a structured operator
// rather than a dense tensor.
func (v Value) IsOperator() bool {
	return v.op != nil
}

// Shape returns the shape of the held matrix.
func (v Value) Shape() tensor.Shape {
	if v.op != nil {
		return v.op.Shape()
	}
	return v.raw.Shape()
}

// Operator returns the value as a LinearOperator, wrapping a dense
// tensor in a Dense operator when needed.
func (v Value) Operator(backend tensor.Backend) LinearOperator {
	if v.op != nil {
		return v.op
	}
	return NewDense(v.raw, backend)
}

// Dense returns the value as a dense tensor, materializing a
// structured operator when needed.
func (v Value) Dense() (*tensor.RawTensor, error) {
	if v.op != nil {
		return v.op.ToDense()
	}
	return v.raw, nil
}

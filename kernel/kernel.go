// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package kernel provides lazy, structured evaluation of covariance
// matrices for Gaussian Process computation.
//
// Applying a kernel to two point batches yields a LazyKernelTensor
// that defers matrix evaluation: shape, diagonal, sub-blocks, and
// matvec products are answered on demand, and dense evaluation is
// forced only when unavoidable.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	k := kernel.NewRBF(backend, 1.5, tensor.Float64)
//	x := tensor.Randn[float64](tensor.Shape{100, 3}, backend)
//
//	node, _ := kernel.NewLazyKernelTensor(x.Raw(), x.Raw(), k, backend)
//	diag, _ := node.Diagonal()  // O(n), no full matrix
//	_ = diag
package kernel

import (
	"github.com/meadow-ml/meadow/internal/kernel"
	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// Kernel is the covariance-function capability.
type Kernel = kernel.Kernel

// Param is a kernel hyperparameter with gradient tracking.
type Param = kernel.Param

// BatchIndexer is implemented by kernels whose batch dimensions can be
// sub-selected.
type BatchIndexer = kernel.BatchIndexer

// BatchExpander is implemented by kernels whose batch dimensions can be
// broadcast before indexing.
type BatchExpander = kernel.BatchExpander

// BaseKernel carries the state every kernel shares.
type BaseKernel = kernel.BaseKernel

// LazyKernelTensor is a deferred kernel matrix node.
type LazyKernelTensor = kernel.LazyKernelTensor

// Option configures a LazyKernelTensor at construction.
type Option = kernel.Option

// WithLastDimIsBatch treats the trailing feature dimension as an extra
// batch dimension in the output.
func WithLastDimIsBatch() Option {
	return kernel.WithLastDimIsBatch()
}

// WithExtraParams forwards auxiliary arguments to the kernel on every
// invocation.
func WithExtraParams(extra map[string]any) Option {
	return kernel.WithExtraParams(extra)
}

// NewLazyKernelTensor builds a lazy node over two point batches.
func NewLazyKernelTensor(x1, x2 *tensor.RawTensor, k Kernel, backend tensor.Backend, opts ...Option) (*LazyKernelTensor, error) {
	return kernel.NewLazyKernelTensor(x1, x2, k, backend, opts...)
}

// Apply applies a kernel to two point batches, lazily by default.
func Apply(k Kernel, x1, x2 *tensor.RawTensor, backend tensor.Backend, opts ...Option) (operator.Value, error) {
	return kernel.Apply(k, x1, x2, backend, opts...)
}

// RBFKernel is the squared-exponential covariance.
type RBFKernel = kernel.RBFKernel

// NewRBF builds an RBF kernel with the given lengthscale and compute
// precision.
func NewRBF(backend tensor.Backend, lengthscale float64, dtype tensor.DataType) *RBFKernel {
	return kernel.NewRBF(backend, lengthscale, dtype)
}

// Error types surfaced by kernel evaluation.
type (
	// InvalidArgumentTypeError: a lazy node constructed from
	// non-concrete inputs.
	InvalidArgumentTypeError = kernel.InvalidArgumentTypeError
	// IncompatibleShapeError: inputs and kernel batch shape cannot be
	// combined.
	IncompatibleShapeError = kernel.IncompatibleShapeError
	// ConflictingShapeDefinitionError: kernel exposes two shape
	// protocols at once.
	ConflictingShapeDefinitionError = kernel.ConflictingShapeDefinitionError
	// KernelDiagonalShapeError: diagonal-mode result has the wrong
	// shape.
	KernelDiagonalShapeError = kernel.KernelDiagonalShapeError
	// EvaluationShapeMismatchError: forced evaluation has the wrong
	// shape.
	EvaluationShapeMismatchError = kernel.EvaluationShapeMismatchError
	// CheckpointingDisabledError: checkpointed path used while the
	// chunk size setting is zero.
	CheckpointingDisabledError = kernel.CheckpointingDisabledError
)

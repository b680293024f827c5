// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package operator exposes the linear operator abstraction: lazy
// handles on (batched) matrices that answer matmul, diagonal, and
// indexing queries without committing to dense storage.
package operator

import (
	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// LinearOperator is a matrix exposed through its action rather than
// its storage.
type LinearOperator = operator.LinearOperator

// Value carries a kernel result that may be dense or structured.
type Value = operator.Value

// FromRaw wraps a dense tensor in a Value.
func FromRaw(raw *tensor.RawTensor) Value {
	return operator.FromRaw(raw)
}

// FromOperator wraps a linear operator in a Value.
func FromOperator(op LinearOperator) Value {
	return operator.FromOperator(op)
}

// Dense is the trivial operator over a dense tensor.
type Dense = operator.Dense

// NewDense wraps a dense tensor in a linear operator.
func NewDense(raw *tensor.RawTensor, backend tensor.Backend) *Dense {
	return operator.NewDense(raw, backend)
}

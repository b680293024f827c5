// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/meadow-ml/meadow/internal/tensor"
)

// Index selects elements along a single tensor dimension.
type Index = tensor.Index

// Slice selects a half-open range with a step.
type Slice = tensor.Slice

// Ints selects an arbitrary list of positions along a dimension.
type Ints = tensor.Ints

// Ellipsis stands for "all leading batch dimensions" in a top-level
// index expression.
var Ellipsis = tensor.Ellipsis

// FullSlice returns the slice selecting an entire dimension.
func FullSlice() Slice {
	return tensor.FullSlice()
}

// IsFullIndex reports whether ix selects a whole dimension unchanged.
func IsFullIndex(ix Index) bool {
	return tensor.IsFullIndex(ix)
}

// RankMismatchError reports an index expression with more indices than
// the tensor has dimensions.
type RankMismatchError = tensor.RankMismatchError

// OutOfRangeError reports an index outside a dimension's bounds.
type OutOfRangeError = tensor.OutOfRangeError

// IndexRaw applies per-dimension indices to a raw tensor, returning
// typed errors instead of panicking.
func IndexRaw(x *RawTensor, b Backend, idx []Index) (*RawTensor, error) {
	return tensor.IndexRaw(x, b, idx)
}

// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation
// (backpropagation) using a gradient tape. It wraps any backend to add
// gradient recording.
//
// Example:
//
//	import (
//	    "github.com/meadow-ml/meadow/autodiff"
//	    "github.com/meadow-ml/meadow/backend/cpu"
//	    "github.com/meadow-ml/meadow/tensor"
//	)
//
//	func main() {
//	    base := cpu.New()
//	    backend := autodiff.New(base)
//
//	    backend.Tape().StartRecording()
//	    x := tensor.Randn[float64](tensor.Shape{3, 2}, backend)
//	    y := x.Mul(x) // recorded on the tape
//
//	    grads := autodiff.Backward(y.Raw(), backend)
//	    _ = grads
//	}
package autodiff

import (
	"github.com/meadow-ml/meadow/internal/autodiff"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates an empty gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// TapeHolder is implemented by backends carrying a gradient tape.
type TapeHolder = autodiff.TapeHolder

// TapeOf extracts the gradient tape from a backend, if it has one.
func TapeOf(b tensor.Backend) (*GradientTape, bool) {
	return autodiff.TapeOf(b)
}

// Paused stops tape recording and returns a restore function.
func Paused(b tensor.Backend) func() {
	return autodiff.Paused(b)
}

// Backward runs reverse-mode differentiation from output, seeding its
// gradient with ones.
func Backward(output *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(output, backend)
}

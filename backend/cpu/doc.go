// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go element-wise and shape operations
//   - BLAS-backed matrix multiplication via gonum
//   - Float32 and Float64 compute, Float16 storage
//   - NumPy-compatible broadcasting
//
// # Basic Usage
//
//	import (
//	    "github.com/meadow-ml/meadow/backend/cpu"
//	    "github.com/meadow-ml/meadow/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    z := x.Add(y)
//	    _ = z
//	}
//
// # Thread Safety
//
// The backend itself holds no mutable state and is safe to share.
// Individual tensors are not synchronized; the kernel evaluation model
// is single-threaded.
package cpu

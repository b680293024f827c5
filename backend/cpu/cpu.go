// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/meadow-ml/meadow/internal/backend/cpu"
)

// Backend is the CPU compute backend.
type Backend = cpu.CPUBackend

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return cpu.New()
}

// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the LICENSE file.

// Package settings holds process-wide toggles that alter how kernel
// matrices are evaluated. Each setter returns a restore function so
// callers can scope a change:
//
//	defer settings.SetLazilyEvaluateKernels(false)()
package settings

import "sync/atomic"

var (
	debug       atomic.Bool
	lazyKernels atomic.Bool

	// checkpointChunk is the number of rows per chunk when kernel
	// matmuls and gradients run through the checkpointed path.
	// Zero disables checkpointing.
	checkpointChunk atomic.Int64
)

func init() {
	lazyKernels.Store(true)
}

// Debug reports whether extra validation checks are enabled. Debug
// checks catch mis-specified kernels at the cost of eager evaluation
// of shapes and diagonals.
func Debug() bool {
	return debug.Load()
}

// SetDebug enables or disables debug validation and returns a function
// restoring the previous value.
func SetDebug(on bool) func() {
	prev := debug.Swap(on)
	return func() { debug.Store(prev) }
}

// LazilyEvaluateKernels reports whether kernel calls on training-like
// inputs return lazy tensors (true, the default) or densify eagerly.
func LazilyEvaluateKernels() bool {
	return lazyKernels.Load()
}

// SetLazilyEvaluateKernels switches lazy kernel evaluation on or off
// and returns a function restoring the previous value.
func SetLazilyEvaluateKernels(on bool) func() {
	prev := lazyKernels.Swap(on)
	return func() { lazyKernels.Store(prev) }
}

// CheckpointKernelChunkSize returns the row chunk size for checkpointed
// kernel evaluation. Zero means checkpointing is disabled.
func CheckpointKernelChunkSize() int {
	return int(checkpointChunk.Load())
}

// SetCheckpointKernelChunkSize sets the row chunk size for checkpointed
// kernel evaluation and returns a function restoring the previous
// value. Pass 0 to disable checkpointing.
func SetCheckpointKernelChunkSize(n int) func() {
	prev := checkpointChunk.Swap(int64(n))
	return func() { checkpointChunk.Store(prev) }
}

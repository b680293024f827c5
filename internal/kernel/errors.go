package kernel

import (
	"fmt"

	"github.com/meadow-ml/meadow/internal/tensor"
)

// InvalidArgumentTypeError reports a lazy kernel tensor constructed
// from something other than concrete numeric point batches.
type InvalidArgumentTypeError struct {
	Arg    string
	Reason string
}

func (e *InvalidArgumentTypeError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Arg, e.Reason)
}

// IncompatibleShapeError reports point batches and kernel batch shapes
// that cannot be combined into one kernel matrix shape.
type IncompatibleShapeError struct {
	X1     tensor.Shape
	X2     tensor.Shape
	Kernel tensor.Shape
	Reason string
}

func (e *IncompatibleShapeError) Error() string {
	return fmt.Sprintf("incompatible shapes x1=%v x2=%v kernel_batch=%v: %s", e.X1, e.X2, e.Kernel, e.Reason)
}

// ConflictingShapeDefinitionError reports a kernel exposing both a
// direct size override and the outputs-per-input protocol. Only raised
// under debug mode.
type ConflictingShapeDefinitionError struct {
	Kernel string
}

func (e *ConflictingShapeDefinitionError) Error() string {
	return fmt.Sprintf("kernel %s defines both a size override and outputs-per-input; remove one", e.Kernel)
}

// KernelDiagonalShapeError reports a diagonal-mode kernel result whose
// shape disagrees with the resolved matrix shape. Only raised under
// debug mode.
type KernelDiagonalShapeError struct {
	Got  tensor.Shape
	Want tensor.Shape
}

func (e *KernelDiagonalShapeError) Error() string {
	return fmt.Sprintf("kernel diagonal has shape %v, expected %v", e.Got, e.Want)
}

// EvaluationShapeMismatchError reports a forced-evaluation result whose
// shape disagrees with the resolved matrix shape. Only raised under
// debug mode.
type EvaluationShapeMismatchError struct {
	Got  tensor.Shape
	Want tensor.Shape
}

func (e *EvaluationShapeMismatchError) Error() string {
	return fmt.Sprintf("evaluated kernel has shape %v, expected %v", e.Got, e.Want)
}

// CheckpointingDisabledError reports a checkpointed execution path
// invoked while the checkpoint chunk size setting is zero. This is an
// internal-consistency fault, not a recoverable condition.
type CheckpointingDisabledError struct {
	Op string
}

func (e *CheckpointingDisabledError) Error() string {
	return fmt.Sprintf("checkpointed %s invoked while kernel checkpointing is disabled", e.Op)
}
